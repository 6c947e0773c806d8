// Package light floods block light, sunlight and sunlight regeneration
// through chunk views.
//
// All three channels use the same raise-only breadth-first propagation: a
// cell only ever takes the maximum of its current value and what a neighbor
// offers, so a pass never lowers a value and always terminates.
package light

import (
	"github.com/freeeve/chunkworld/internal/block"
	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/world"
)

// Rules describe one propagated channel.
type Rules interface {
	Channel() string
	MaxValue() int
	// FixedValue is the value a cell holds on its own, before any flow.
	FixedValue(v *chunk.View, p world.BlockPos) int
	// Propagate returns the value offered to the cell at to by a neighbor
	// holding value across side (the direction of travel).
	Propagate(value int, side world.Side, to world.BlockPos, v *chunk.View) int
	CanSpreadOutOf(v *chunk.View, p world.BlockPos) bool
	CanSpreadInto(v *chunk.View, p world.BlockPos) bool
}

// zeroSourcer is implemented by rules whose zero-valued cells still spread.
type zeroSourcer interface {
	ZeroSource(v *chunk.View, p world.BlockPos) bool
}

type opacity struct {
	blocks *block.Registry
}

func (o opacity) block(v *chunk.View, p world.BlockPos) (block.Block, bool) {
	id, ok := v.Block(p)
	if !ok {
		return block.Block{}, false
	}
	return o.blocks.Get(id), true
}

func (o opacity) transparent(v *chunk.View, p world.BlockPos) bool {
	b, ok := o.block(v, p)
	return ok && !b.Opaque
}

// LightRules floods block light from emissive blocks.
type LightRules struct{ opacity }

func NewLightRules(blocks *block.Registry) LightRules {
	return LightRules{opacity{blocks}}
}

func (LightRules) Channel() string { return chunk.ChannelLight }
func (LightRules) MaxValue() int   { return chunk.MaxLight }

func (r LightRules) FixedValue(v *chunk.View, p world.BlockPos) int {
	b, ok := r.block(v, p)
	if !ok {
		return 0
	}
	return int(b.Luminance)
}

func (LightRules) Propagate(value int, _ world.Side, _ world.BlockPos, _ *chunk.View) int {
	return max(value-1, 0)
}

// An opaque lamp still lights its surroundings.
func (r LightRules) CanSpreadOutOf(v *chunk.View, p world.BlockPos) bool {
	b, ok := r.block(v, p)
	return ok && (!b.Opaque || b.Luminance > 0)
}

func (r LightRules) CanSpreadInto(v *chunk.View, p world.BlockPos) bool {
	return r.transparent(v, p)
}

// SunlightRules floods sunlight from cells whose regen reached the threshold.
type SunlightRules struct{ opacity }

func NewSunlightRules(blocks *block.Registry) SunlightRules {
	return SunlightRules{opacity{blocks}}
}

func (SunlightRules) Channel() string { return chunk.ChannelSunlight }
func (SunlightRules) MaxValue() int   { return chunk.MaxSunlight }

func (r SunlightRules) FixedValue(v *chunk.View, p world.BlockPos) int {
	if !r.transparent(v, p) {
		return 0
	}
	regen, _ := v.Value(chunk.ChannelSunlightRegen, p)
	if regen >= chunk.SunlightRegenThreshold {
		return chunk.MaxSunlight
	}
	return 0
}

func (SunlightRules) Propagate(value int, _ world.Side, _ world.BlockPos, _ *chunk.View) int {
	return max(value-1, 0)
}

func (r SunlightRules) CanSpreadOutOf(v *chunk.View, p world.BlockPos) bool {
	return r.transparent(v, p)
}

func (r SunlightRules) CanSpreadInto(v *chunk.View, p world.BlockPos) bool {
	return r.transparent(v, p)
}

// RegenRules count uninterrupted open cells downward from the sky. Cells at
// or above SkyLevel (world block y) are open sky; below it a cell's regen is
// one more than the cell above, and zero directly beneath an opaque block.
type RegenRules struct {
	opacity
	SkyLevel int
}

func NewRegenRules(blocks *block.Registry, skyLevel int) RegenRules {
	return RegenRules{opacity: opacity{blocks}, SkyLevel: skyLevel}
}

func (RegenRules) Channel() string { return chunk.ChannelSunlightRegen }
func (RegenRules) MaxValue() int   { return chunk.MaxSunlightRegen }

func (r RegenRules) FixedValue(v *chunk.View, p world.BlockPos) int {
	if !r.transparent(v, p) {
		return 0
	}
	if v.Origin().Origin().Y+p.Y >= r.SkyLevel {
		return chunk.MaxSunlightRegen
	}
	return 0
}

// ZeroSource reports open cells directly beneath an opaque block: their regen
// is zero but the count restarts from them.
func (r RegenRules) ZeroSource(v *chunk.View, p world.BlockPos) bool {
	if !r.transparent(v, p) {
		return false
	}
	above, ok := r.block(v, p.Step(world.Up))
	return ok && above.Opaque
}

func (RegenRules) Propagate(value int, side world.Side, _ world.BlockPos, _ *chunk.View) int {
	if side != world.Down {
		return 0
	}
	return min(value+1, chunk.MaxSunlightRegen)
}

func (r RegenRules) CanSpreadOutOf(v *chunk.View, p world.BlockPos) bool {
	return r.transparent(v, p)
}

func (r RegenRules) CanSpreadInto(v *chunk.View, p world.BlockPos) bool {
	return r.transparent(v, p)
}
