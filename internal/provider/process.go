package provider

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/pipeline"
	"github.com/freeeve/chunkworld/internal/store"
	"github.com/freeeve/chunkworld/internal/world"
)

func (p *Provider) handleProcess(ctx context.Context, t pipeline.Task) {
	if t.Kind == pipeline.KindLoad {
		err := p.load(t.Pos)
		// The pending mark must be gone before the failure is recorded, or
		// the retry would be dropped as a duplicate of this run.
		p.pending.Done(t.Kind, t.Pos)
		if err != nil {
			p.failedLoad(t.Pos)
			atomic.AddInt64(&p.loadFailures, 1)
		}
		return
	}
	defer p.pending.Done(t.Kind, t.Pos)
	switch t.Kind {
	case pipeline.KindAdjacencyPass:
		p.adjacencyPass(t.Pos)
	case pipeline.KindInternalLightPass:
		p.internalLightPass(t.Pos)
	case pipeline.KindLightPass:
		p.lightPass(t.Pos)
	case pipeline.KindDeflate:
		p.deflate(t.Pos)
	default:
		p.log.Warn().Stringer("task", t).Msg("unexpected task on process pool")
	}
}

// load reads pos from the store, or generates it if the store has no
// record, and inserts it into the near cache. Only a store failure other
// than a missing or unreadable record is returned.
func (p *Provider) load(pos world.ChunkPos) error {
	if p.cache.Contains(pos) {
		return nil
	}
	c, err := p.store.Get(pos)
	switch {
	case err == nil:
		atomic.AddInt64(&p.loaded, 1)
	case errors.Is(err, store.ErrNotFound):
		c = p.generate(pos)
	case errors.Is(err, chunk.ErrMalformed):
		p.log.Warn().Err(err).Stringer("pos", pos).Msg("stored chunk unreadable, regenerating")
		c = p.generate(pos)
	default:
		p.log.Error().Err(err).Stringer("pos", pos).Msg("load failed, retrying on the next tick")
		return err
	}

	if _, inserted := p.cache.PutIfAbsent(c); !inserted {
		_ = c.Edit(func(e *chunk.Editor) error {
			e.Dispose()
			return nil
		})
		return nil
	}
	p.log.Debug().Stringer("pos", pos).Stringer("state", c.State()).Msg("chunk resident")
	p.requestReview(world.Around(pos))
	return nil
}

func (p *Provider) generate(pos world.ChunkPos) *chunk.Chunk {
	c := p.cfg.Factory.New(pos)
	_ = c.Edit(func(e *chunk.Editor) error {
		p.cfg.Generator.CreateChunk(e)
		return nil
	})
	atomic.AddInt64(&p.generated, 1)
	return c
}

// neighborhood returns the 27-chunk view around pos, or nil if any chunk of
// it is missing.
func (p *Provider) neighborhood(pos world.ChunkPos) *chunk.View {
	v := chunk.NewNeighborhood(pos, p.lookup)
	if !v.Complete() {
		return nil
	}
	return v
}

// target returns the resident chunk at pos if it is still at state s. Any
// other outcome means a racing task or an eviction got there first.
func (p *Provider) target(pos world.ChunkPos, s chunk.State) *chunk.Chunk {
	c, ok := p.GetChunk(pos)
	if !ok || c.State() != s {
		return nil
	}
	return c
}

func (p *Provider) adjacencyPass(pos world.ChunkPos) {
	c := p.target(pos, chunk.AdjacencyPending)
	if c == nil {
		return
	}
	v := p.neighborhood(pos)
	if v == nil || v.Chunk(pos) != c {
		return
	}
	advanced := false
	_ = v.Edit(func() error {
		if v.AnyDisposed() || c.State() != chunk.AdjacencyPending {
			return nil
		}
		p.cfg.Generator.SecondPass(v, pos)
		v.Editor(pos).AdvanceTo(chunk.InternalLightPending)
		advanced = true
		return nil
	})
	p.advancedTo(c, advanced)
}

func (p *Provider) internalLightPass(pos world.ChunkPos) {
	c := p.target(pos, chunk.InternalLightPending)
	if c == nil {
		return
	}
	advanced := false
	_ = c.Edit(func(e *chunk.Editor) error {
		if c.Disposed() || c.State() != chunk.InternalLightPending {
			return nil
		}
		res := p.merger.Internal(e)
		e.AdvanceTo(chunk.LightPropagationPending)
		advanced = true
		p.log.Debug().Stringer("pos", pos).Int("raised", res.Total()).Msg("internal light seeded")
		return nil
	})
	p.advancedTo(c, advanced)
}

func (p *Provider) lightPass(pos world.ChunkPos) {
	c := p.target(pos, chunk.LightPropagationPending)
	if c == nil {
		return
	}
	v := p.neighborhood(pos)
	if v == nil || v.Chunk(pos) != c {
		return
	}
	advanced := false
	_ = v.Edit(func() error {
		if v.AnyDisposed() || c.State() != chunk.LightPropagationPending {
			return nil
		}
		res := p.merger.Merge(v, pos)
		e := v.Editor(pos)
		if p.cfg.Deflate {
			p.logDeflation(pos, e.Deflate(chunk.ChannelSunlight))
		}
		e.AdvanceTo(chunk.FullConnectivityPending)
		advanced = true
		p.log.Debug().
			Stringer("pos", pos).
			Int("regen", res.Regen).
			Int("sunlight", res.Sunlight).
			Int("light", res.Light).
			Msg("light merged")
		return nil
	})
	p.advancedTo(c, advanced)
}

func (p *Provider) advancedTo(c *chunk.Chunk, advanced bool) {
	if !advanced {
		return
	}
	atomic.AddInt64(&p.advanced, 1)
	p.requestReview(world.Around(c.Position()))
}

func (p *Provider) deflate(pos world.ChunkPos) {
	c, ok := p.GetChunk(pos)
	if !ok {
		return
	}
	_ = c.Edit(func(e *chunk.Editor) error {
		if c.Disposed() {
			return nil
		}
		p.logDeflation(pos, e.Deflate())
		return nil
	})
	atomic.AddInt64(&p.deflated, 1)
}

func (p *Provider) logDeflation(pos world.ChunkPos, stats []chunk.DeflateStat) {
	if !p.cfg.LogDeflation {
		return
	}
	for _, s := range stats {
		saved := 0.0
		if s.Before > 0 {
			saved = 100 * float64(s.Before-s.After) / float64(s.Before)
		}
		p.log.Info().
			Stringer("pos", pos).
			Str("channel", s.Channel).
			Str("before", humanize.Bytes(uint64(s.Before))).
			Str("after", humanize.Bytes(uint64(s.After))).
			Stringer("from", s.From).
			Stringer("to", s.To).
			Float64("saved_pct", saved).
			Msg("deflated")
	}
}
