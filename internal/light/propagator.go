package light

import (
	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/world"
)

// Propagator runs one raise-only flood of a channel over a view. Cells are
// written only where the write predicate allows; the owning chunk must be
// borrowed through the view.
type Propagator struct {
	view     *chunk.View
	rules    Rules
	writable func(world.BlockPos) bool

	queue   []world.BlockPos
	head    int
	changed []world.BlockPos
	raised  int
}

// NewPropagator creates a propagator. A nil writable allows every cell the
// view can write.
func NewPropagator(v *chunk.View, rules Rules, writable func(world.BlockPos) bool) *Propagator {
	if writable == nil {
		writable = v.Writable
	}
	return &Propagator{view: v, rules: rules, writable: writable}
}

// Seed raises p to its fixed value and queues it if it holds any light.
func (p *Propagator) Seed(pos world.BlockPos) {
	if !p.writable(pos) {
		return
	}
	ch := p.rules.Channel()
	cur, ok := p.view.Value(ch, pos)
	if !ok {
		return
	}
	if fixed := p.rules.FixedValue(p.view, pos); fixed > cur {
		p.raise(pos, fixed)
		return
	}
	if p.source(pos, cur) {
		p.queue = append(p.queue, pos)
	}
}

// Queue schedules pos as a source with its current value. The cell itself is
// never written, so it may lie outside the writable area.
func (p *Propagator) Queue(pos world.BlockPos) {
	if v, ok := p.view.Value(p.rules.Channel(), pos); ok && p.source(pos, v) {
		p.queue = append(p.queue, pos)
	}
}

func (p *Propagator) source(pos world.BlockPos, v int) bool {
	if v > 0 {
		return true
	}
	zs, ok := p.rules.(zeroSourcer)
	return ok && zs.ZeroSource(p.view, pos)
}

// Run floods until the queue is empty and returns the number of raised cells.
func (p *Propagator) Run() int {
	ch := p.rules.Channel()
	for p.head < len(p.queue) {
		c := p.queue[p.head]
		p.head++
		if !p.rules.CanSpreadOutOf(p.view, c) {
			continue
		}
		val, ok := p.view.Value(ch, c)
		if !ok {
			continue
		}
		for _, s := range world.Sides {
			n := c.Step(s)
			if !p.writable(n) || !p.rules.CanSpreadInto(p.view, n) {
				continue
			}
			nv := p.rules.Propagate(val, s, n, p.view)
			if cur, ok := p.view.Value(ch, n); ok && nv > cur {
				p.raise(n, nv)
			}
		}
		if p.head > 4096 && p.head*2 > len(p.queue) {
			p.queue = append(p.queue[:0], p.queue[p.head:]...)
			p.head = 0
		}
	}
	p.queue = p.queue[:0]
	p.head = 0
	return p.raised
}

func (p *Propagator) raise(pos world.BlockPos, v int) {
	v = min(v, p.rules.MaxValue())
	p.view.SetValue(p.rules.Channel(), pos, v)
	p.queue = append(p.queue, pos)
	p.changed = append(p.changed, pos)
	p.raised++
}

// Changed returns every cell raised so far.
func (p *Propagator) Changed() []world.BlockPos { return p.changed }
