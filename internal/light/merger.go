package light

import (
	"fmt"

	"github.com/freeeve/chunkworld/internal/block"
	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/world"
)

// Result counts the cells raised per channel by one pass.
type Result struct {
	Regen    int
	Sunlight int
	Light    int
}

func (r Result) Total() int { return r.Regen + r.Sunlight + r.Light }

// Merger computes lighting for chunks: Internal lights one chunk in
// isolation, Merge settles a chunk against its neighborhood.
type Merger struct {
	regen    RegenRules
	sunlight SunlightRules
	light    LightRules
}

// NewMerger creates a merger. Cells at or above skyLevel (world block y) see
// open sky.
func NewMerger(blocks *block.Registry, skyLevel int) *Merger {
	return &Merger{
		regen:    NewRegenRules(blocks, skyLevel),
		sunlight: NewSunlightRules(blocks),
		light:    NewLightRules(blocks),
	}
}

// Internal seeds regen, sunlight and light from the chunk's own contents,
// ignoring every neighbor.
func (m *Merger) Internal(e *chunk.Editor) Result {
	v := chunk.EditorView(e)
	var res Result
	for i, rules := range m.order() {
		p := NewPropagator(v, rules, nil)
		eachCell(world.BlockPos{}, p.Seed)
		res.add(i, p.Run())
	}
	return res
}

// Merge settles target against every present chunk of v. Each channel runs an
// inward phase that writes only target (seeded from target's own sources and
// the neighbors' boundary layers) and then an outward phase seeded from
// target's boundary that may raise any chunk in the view. Regen runs first so
// sunlight sources see the final regen values.
//
// v must be inside Edit. Missing neighbors are skipped; light does not cross
// into or out of them.
func (m *Merger) Merge(v *chunk.View, target world.ChunkPos) Result {
	if v.Editor(target) == nil {
		panic(fmt.Sprintf("light: merge target %v not borrowed in view", target))
	}
	base := v.ToRelative(target, world.BlockPos{})
	inTarget := func(p world.BlockPos) bool {
		rel := p.Sub(base)
		return world.InChunk(rel.X, rel.Y, rel.Z)
	}
	writeTarget := func(p world.BlockPos) bool { return inTarget(p) && v.Writable(p) }

	var (
		res          Result
		regenChanged []world.BlockPos
	)
	for i, rules := range m.order() {
		in := NewPropagator(v, rules, writeTarget)
		eachCell(base, in.Seed)
		eachFace(base, func(cell world.BlockPos, s world.Side) {
			in.Queue(cell.Step(s))
		})
		raised := in.Run()

		out := NewPropagator(v, rules, v.Writable)
		eachFace(base, func(cell world.BlockPos, _ world.Side) {
			out.Queue(cell)
		})
		if rules.Channel() == chunk.ChannelSunlight {
			for _, p := range regenChanged {
				if !inTarget(p) {
					out.Seed(p)
				}
			}
		}
		raised += out.Run()
		if rules.Channel() == chunk.ChannelSunlightRegen {
			regenChanged = out.Changed()
		}
		res.add(i, raised)
	}
	return res
}

func (m *Merger) order() [3]Rules {
	return [3]Rules{m.regen, m.sunlight, m.light}
}

func (r *Result) add(i, n int) {
	switch i {
	case 0:
		r.Regen += n
	case 1:
		r.Sunlight += n
	case 2:
		r.Light += n
	}
}

// eachCell visits every cell of the chunk whose minimum corner is base.
func eachCell(base world.BlockPos, fn func(world.BlockPos)) {
	for y := world.SizeY - 1; y >= 0; y-- {
		for z := 0; z < world.SizeZ; z++ {
			for x := 0; x < world.SizeX; x++ {
				fn(world.BlockPos{X: base.X + x, Y: base.Y + y, Z: base.Z + z})
			}
		}
	}
}

// eachFace visits every boundary cell of the chunk at base together with the
// side it faces. Edge and corner cells are visited once per face.
func eachFace(base world.BlockPos, fn func(world.BlockPos, world.Side)) {
	at := func(x, y, z int, s world.Side) {
		fn(world.BlockPos{X: base.X + x, Y: base.Y + y, Z: base.Z + z}, s)
	}
	for z := 0; z < world.SizeZ; z++ {
		for x := 0; x < world.SizeX; x++ {
			at(x, world.SizeY-1, z, world.Up)
			at(x, 0, z, world.Down)
		}
	}
	for y := 0; y < world.SizeY; y++ {
		for z := 0; z < world.SizeZ; z++ {
			at(0, y, z, world.Left)
			at(world.SizeX-1, y, z, world.Right)
		}
		for x := 0; x < world.SizeX; x++ {
			at(x, y, 0, world.Front)
			at(x, y, world.SizeZ-1, world.Back)
		}
	}
}
