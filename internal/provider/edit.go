package provider

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/light"
	"github.com/freeeve/chunkworld/internal/world"
)

var (
	// ErrNotResident is returned when an edit targets a chunk that is not in the near cache.
	ErrNotResident = errors.New("chunk not resident")
	// ErrOutOfChunk is returned for a local block position outside the chunk.
	ErrOutOfChunk = errors.New("block position outside chunk")
)

// BlockInfo is one cell as read through the chunk's variant.
type BlockInfo struct {
	Chunk    world.ChunkPos `json:"chunk"`
	Local    world.BlockPos `json:"local"`
	Block    uint16         `json:"block"`
	Name     string         `json:"name"`
	Light    uint8          `json:"light"`
	Sunlight uint8          `json:"sunlight"`
	Resident bool           `json:"resident"`
}

// voxels returns the resident chunk at pos, or a placeholder.
func (p *Provider) voxels(pos world.ChunkPos) chunk.Voxels {
	if c, ok := p.GetChunk(pos); ok {
		return c
	}
	return chunk.Placeholder{Pos: pos}
}

// BlockAt reads one cell. Positions that are not resident read as air.
func (p *Provider) BlockAt(pos world.ChunkPos, local world.BlockPos) (BlockInfo, error) {
	if !world.InChunk(local.X, local.Y, local.Z) {
		return BlockInfo{}, fmt.Errorf("%w: %v", ErrOutOfChunk, local)
	}
	info := BlockInfo{Chunk: pos, Local: local}
	read := func(v chunk.Voxels) {
		info.Block = v.Block(local.X, local.Y, local.Z)
		info.Light = v.Light(local.X, local.Y, local.Z)
		info.Sunlight = v.Sunlight(local.X, local.Y, local.Z)
	}
	v := p.voxels(pos)
	if c, ok := v.(*chunk.Chunk); ok {
		err := c.Edit(func(*chunk.Editor) error {
			if c.Disposed() {
				return chunk.ErrDisposed
			}
			read(c)
			return nil
		})
		switch {
		case err == nil:
			info.Resident = true
		case errors.Is(err, chunk.ErrDisposed):
			read(chunk.Placeholder{Pos: pos})
		default:
			return BlockInfo{}, err
		}
	} else {
		read(v)
	}
	info.Name = p.cfg.Blocks.Get(info.Block).Name
	return info, nil
}

// SetBlock replaces one block of the resident chunk at pos and returns the
// previous id. Chunks that have not been lit yet only take the new block;
// the pipeline lights them later. Lit chunks are relit across their
// neighborhood, lowering light the edit cut off as well as raising new light.
func (p *Provider) SetBlock(pos world.ChunkPos, local world.BlockPos, id uint16) (uint16, error) {
	if err := p.checkRunning(); err != nil {
		return 0, err
	}
	if !world.InChunk(local.X, local.Y, local.Z) {
		return 0, fmt.Errorf("%w: %v", ErrOutOfChunk, local)
	}
	v := p.voxels(pos)
	c, ok := v.(*chunk.Chunk)
	if !ok {
		_, err := v.SetBlock(local.X, local.Y, local.Z, id)
		return 0, fmt.Errorf("%w: %v: %v", ErrNotResident, pos, err)
	}

	if c.State() < chunk.LightPropagationPending {
		prev, err := c.SetBlock(local.X, local.Y, local.Z, id)
		if err != nil {
			return 0, fmt.Errorf("set block at %v: %w", pos, err)
		}
		// The state only moves under the chunk's lock, so a pass that lit
		// the chunk before this write shows here.
		if c.State() < chunk.LightPropagationPending {
			p.edited(pos, local, prev, id, nil)
			return prev, nil
		}
		_, res, err := p.relight(c, local, id)
		if err != nil {
			return 0, err
		}
		p.edited(pos, local, prev, id, res)
		return prev, nil
	}
	prev, res, err := p.relight(c, local, id)
	if err != nil {
		return 0, err
	}
	p.edited(pos, local, prev, id, res)
	return prev, nil
}

// relight writes id at local and relights every present chunk around c. res
// is nil if c turned out not to be lit.
func (p *Provider) relight(c *chunk.Chunk, local world.BlockPos, id uint16) (prev uint16, res *light.Result, err error) {
	pos := c.Position()
	view := chunk.NewNeighborhood(pos, p.lookup)
	if view.Chunk(pos) != c {
		return 0, nil, fmt.Errorf("%w: %v", ErrNotResident, pos)
	}
	err = view.Edit(func() error {
		if c.Disposed() {
			return chunk.ErrDisposed
		}
		prev = view.Editor(pos).SetBlock(local.X, local.Y, local.Z, id)
		if c.State() >= chunk.LightPropagationPending {
			r := p.merger.Relight(view, view.ToRelative(pos, local))
			res = &r
		}
		return nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("set block at %v: %w", pos, err)
	}
	return prev, res, nil
}

func (p *Provider) edited(pos world.ChunkPos, local world.BlockPos, prev, id uint16, res *light.Result) {
	atomic.AddInt64(&p.edits, 1)
	ev := p.log.Debug().
		Stringer("pos", pos).
		Stringer("local", local).
		Uint16("from", prev).
		Uint16("to", id)
	if res != nil {
		ev = ev.Int("regen", res.Regen).Int("sunlight", res.Sunlight).Int("light", res.Light)
	}
	ev.Msg("block set")
	if prev != id {
		p.subs.emit(Event{Kind: EventChanged, Pos: pos})
	}
}
