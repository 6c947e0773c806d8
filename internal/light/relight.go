package light

import (
	"fmt"

	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/world"
)

// Relight settles all three channels after the block at p changed. Unlike
// Merge it may lower values: light that reached cells through p, or that p
// itself emitted, is cleared and then flooded back from whatever sources
// remain. Only cells the view can write change.
//
// Regen is a pure function of the column above a cell, so it is recomputed
// downward from p until the column stops changing. Sunlight then relights
// from p and every cell whose regen changed; block light from p alone.
//
// v must be inside Edit.
func (m *Merger) Relight(v *chunk.View, p world.BlockPos) Result {
	if !v.Writable(p) {
		panic(fmt.Sprintf("light: relight at %v outside the borrowed view", p))
	}
	var res Result
	regenChanged := m.regenColumn(v, p)
	res.Regen = len(regenChanged)

	sunSeeds := append([]world.BlockPos{p}, regenChanged...)
	res.Sunlight = relight(v, m.sunlight, sunSeeds)
	res.Light = relight(v, m.light, []world.BlockPos{p})
	return res
}

// regenColumn recomputes sunlight regen from p downward and returns the
// cells that changed. A cell's value depends only on the cell above it, so
// once a cell two or more below p keeps its value the rest of the column
// does too.
func (m *Merger) regenColumn(v *chunk.View, p world.BlockPos) []world.BlockPos {
	r := m.regen
	ch := r.Channel()
	var changed []world.BlockPos
	for c := p; v.Writable(c); c = c.Step(world.Down) {
		cur, _ := v.Value(ch, c)
		want := r.FixedValue(v, c)
		if up := c.Step(world.Up); r.CanSpreadInto(v, c) && r.CanSpreadOutOf(v, up) {
			if above, ok := v.Value(ch, up); ok && (above > 0 || r.ZeroSource(v, up)) {
				want = max(want, r.Propagate(above, world.Down, c, v))
			}
		}
		if want == cur {
			if p.Y-c.Y >= 2 {
				break
			}
			continue
		}
		v.SetValue(ch, c, want)
		changed = append(changed, c)
	}
	return changed
}

// removal is a cell cleared by the darkening pass together with the value it
// held before.
type removal struct {
	pos   world.BlockPos
	value int
}

// relight clears seeds and everything they lit, then floods the channel back
// from the surviving sources around the cleared area. It returns the number
// of cells whose value was touched.
func relight(v *chunk.View, rules Rules, seeds []world.BlockPos) int {
	ch := rules.Channel()
	var (
		queue   []removal
		cleared []world.BlockPos
		border  []world.BlockPos
	)
	clearCell := func(pos world.BlockPos, old int) {
		v.SetValue(ch, pos, 0)
		queue = append(queue, removal{pos, old})
		cleared = append(cleared, pos)
	}
	for _, s := range seeds {
		cur, ok := v.Value(ch, s)
		if !ok || !v.Writable(s) {
			continue
		}
		if cur > 0 {
			clearCell(s, cur)
		} else {
			cleared = append(cleared, s)
		}
		for _, side := range world.Sides {
			border = append(border, s.Step(side))
		}
	}

	for head := 0; head < len(queue); head++ {
		c := queue[head]
		for _, side := range world.Sides {
			n := c.pos.Step(side)
			nv, ok := v.Value(ch, n)
			if !ok || nv == 0 {
				continue
			}
			if nv < c.value && v.Writable(n) {
				clearCell(n, nv)
			} else {
				border = append(border, n)
			}
		}
	}

	prop := NewPropagator(v, rules, v.Writable)
	for _, pos := range cleared {
		prop.Seed(pos)
	}
	for _, pos := range border {
		prop.Queue(pos)
	}
	prop.Run()
	return len(cleared) + len(prop.Changed())
}
