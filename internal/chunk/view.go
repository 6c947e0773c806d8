package chunk

import (
	"fmt"

	"github.com/freeeve/chunkworld/internal/world"
)

// View is a composite over a box of chunks. Block coordinates are relative to
// the minimum corner of the origin chunk, so the origin chunk spans
// [0,SizeX)x[0,SizeY)x[0,SizeZ) and neighbors extend into negative or larger
// coordinates. Cells in absent chunks report ok=false.
type View struct {
	region  world.Region
	origin  world.ChunkPos
	chunks  []*Chunk
	editors []*Editor
}

// NewView collects the chunks of region using lookup. Missing chunks stay nil.
func NewView(region world.Region, origin world.ChunkPos, lookup func(world.ChunkPos) *Chunk) *View {
	v := &View{region: region, origin: origin, chunks: make([]*Chunk, region.Volume())}
	i := 0
	region.Each(func(p world.ChunkPos) {
		v.chunks[i] = lookup(p)
		i++
	})
	return v
}

// NewNeighborhood returns the 3x3x3 view centered on pos.
func NewNeighborhood(pos world.ChunkPos, lookup func(world.ChunkPos) *Chunk) *View {
	return NewView(world.Around(pos), pos, lookup)
}

func (v *View) Region() world.Region   { return v.region }
func (v *View) Origin() world.ChunkPos { return v.origin }

// Chunk returns the chunk at p, or nil if it is absent or outside the view.
func (v *View) Chunk(p world.ChunkPos) *Chunk {
	if !v.region.Contains(p) {
		return nil
	}
	return v.chunks[v.slot(p)]
}

// Chunks returns the present chunks.
func (v *View) Chunks() []*Chunk {
	out := make([]*Chunk, 0, len(v.chunks))
	for _, c := range v.chunks {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Complete reports whether every chunk in the region is present and not disposed.
func (v *View) Complete() bool {
	for _, c := range v.chunks {
		if c == nil || c.Disposed() {
			return false
		}
	}
	return true
}

// AnyDisposed reports whether a present chunk was disposed.
func (v *View) AnyDisposed() bool {
	for _, c := range v.chunks {
		if c != nil && c.Disposed() {
			return true
		}
	}
	return false
}

// Edit borrows every present chunk for the duration of fn. Inside fn the view
// accepts writes.
func (v *View) Edit(fn func() error) error {
	return EditAll(v.chunks, func(eds []*Editor) error {
		v.editors = eds
		defer func() { v.editors = nil }()
		return fn()
	})
}

// Editor returns the borrowed editor of the chunk at p, or nil.
func (v *View) Editor(p world.ChunkPos) *Editor {
	if v.editors == nil || !v.region.Contains(p) {
		return nil
	}
	return v.editors[v.slot(p)]
}

func (v *View) slot(p world.ChunkPos) int {
	dx := int(p.X - v.region.Min.X)
	dy := int(p.Y - v.region.Min.Y)
	dz := int(p.Z - v.region.Min.Z)
	sy := int(v.region.Max.Y - v.region.Min.Y + 1)
	sz := int(v.region.Max.Z - v.region.Min.Z + 1)
	return (dx*sy+dy)*sz + dz
}

// Locate maps a view-relative block coordinate to its chunk position and local offset.
func (v *View) Locate(p world.BlockPos) (world.ChunkPos, world.BlockPos) {
	cp, local := world.ChunkOf(p)
	return world.ChunkPos{X: v.origin.X + cp.X, Y: v.origin.Y + cp.Y, Z: v.origin.Z + cp.Z}, local
}

// ToRelative converts a chunk position plus local offset into view coordinates.
func (v *View) ToRelative(cp world.ChunkPos, local world.BlockPos) world.BlockPos {
	d := world.ChunkPos{X: cp.X - v.origin.X, Y: cp.Y - v.origin.Y, Z: cp.Z - v.origin.Z}
	return d.Origin().Add(local)
}

func (v *View) lookup(p world.BlockPos) (*Chunk, world.ChunkPos, world.BlockPos) {
	cp, local := v.Locate(p)
	return v.Chunk(cp), cp, local
}

// Block returns the block id at p.
func (v *View) Block(p world.BlockPos) (uint16, bool) {
	c, _, l := v.lookup(p)
	if c == nil {
		return 0, false
	}
	return c.Block(l.X, l.Y, l.Z), true
}

// Value reads a channel at p.
func (v *View) Value(channel string, p world.BlockPos) (int, bool) {
	c, _, l := v.lookup(p)
	if c == nil {
		return 0, false
	}
	return c.Get(channel, l.X, l.Y, l.Z), true
}

// Writable reports whether p lies in a chunk borrowed by an active Edit.
func (v *View) Writable(p world.BlockPos) bool {
	cp, _ := v.Locate(p)
	return v.Editor(cp) != nil
}

// SetValue writes a channel at p. The owning chunk must be borrowed through Edit.
func (v *View) SetValue(channel string, p world.BlockPos, val int) int {
	cp, l := v.Locate(p)
	e := v.Editor(cp)
	if e == nil {
		panic(fmt.Sprintf("chunk: write to %v in %v outside a borrowed view", p, cp))
	}
	return e.Set(channel, l.X, l.Y, l.Z, val)
}

// EditorView wraps a chunk already borrowed through e as a writable
// single-chunk view whose origin is that chunk.
func EditorView(e *Editor) *View {
	c := e.Chunk()
	v := NewView(world.Single(c.pos), c.pos, func(world.ChunkPos) *Chunk { return c })
	v.editors = []*Editor{e}
	return v
}
