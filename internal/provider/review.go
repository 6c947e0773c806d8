package provider

import (
	"context"
	"sync/atomic"

	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/pipeline"
	"github.com/freeeve/chunkworld/internal/world"
)

// passFor maps a state to the processing pass that advances it.
var passFor = map[chunk.State]pipeline.Kind{
	chunk.AdjacencyPending:        pipeline.KindAdjacencyPass,
	chunk.InternalLightPending:    pipeline.KindInternalLightPass,
	chunk.LightPropagationPending: pipeline.KindLightPass,
}

func (p *Provider) handleReview(ctx context.Context, t pipeline.Task) {
	switch t.Kind {
	case pipeline.KindReview:
		t.Region.Each(func(pos world.ChunkPos) {
			if ctx.Err() == nil {
				p.reviewChunk(pos)
			}
		})
	case pipeline.KindProduce:
		t.Region.Each(func(pos world.ChunkPos) {
			if ctx.Err() == nil {
				p.requestLoad(pos)
			}
		})
	default:
		p.log.Warn().Stringer("task", t).Msg("unexpected task on review pool")
	}
}

// reviewChunk queues the pass that advances the chunk at pos if its whole
// neighborhood has caught up with it. The last step, to Complete, needs no
// work beyond the check and happens inline.
func (p *Provider) reviewChunk(pos world.ChunkPos) {
	c, ok := p.GetChunk(pos)
	if !ok {
		return
	}
	s := c.State()
	if s == chunk.Complete {
		p.checkReady(pos)
		return
	}
	if !p.neighborsAtLeast(pos, s) {
		return
	}
	if s == chunk.FullConnectivityPending {
		p.complete(c)
		return
	}
	p.submitPass(passFor[s], pos)
}

// neighborsAtLeast reports whether all 26 neighbors of pos are resident and
// at state s or later.
func (p *Provider) neighborsAtLeast(pos world.ChunkPos, s chunk.State) bool {
	for _, n := range world.Neighbors26(pos) {
		c, ok := p.GetChunk(n)
		if !ok || c.State() < s {
			return false
		}
	}
	return true
}

func (p *Provider) complete(c *chunk.Chunk) {
	advanced := false
	_ = c.Edit(func(e *chunk.Editor) error {
		if c.Disposed() || c.State() != chunk.FullConnectivityPending {
			return nil
		}
		e.AdvanceTo(chunk.Complete)
		advanced = true
		return nil
	})
	if !advanced {
		return
	}
	atomic.AddInt64(&p.advanced, 1)
	p.log.Debug().Stringer("pos", c.Position()).Msg("chunk complete")
	if p.cfg.Deflate {
		p.submitPass(pipeline.KindDeflate, c.Position())
	}
	p.requestReview(world.Around(c.Position()))
}

// checkReady marks the chunk at pos ready and announces it once it and its
// six face neighbors are complete.
func (p *Provider) checkReady(pos world.ChunkPos) {
	p.readyMu.Lock()
	defer p.readyMu.Unlock()
	c, ok := p.GetChunk(pos)
	if !ok || c.Ready() || c.State() != chunk.Complete {
		return
	}
	for _, s := range world.Sides {
		d := s.Offset()
		n, ok := p.GetChunk(pos.Add(d.X, d.Y, d.Z))
		if !ok || n.State() != chunk.Complete {
			return
		}
	}
	marked := false
	_ = c.Edit(func(e *chunk.Editor) error {
		if c.Disposed() {
			return nil
		}
		e.SetReady(true)
		marked = true
		return nil
	})
	if marked {
		atomic.AddInt64(&p.readied, 1)
		p.subs.emit(Event{Kind: EventReady, Pos: pos})
	}
}

// unready clears the ready flag of the face neighbors of a chunk that is
// leaving the cache.
func (p *Provider) unready(pos world.ChunkPos) {
	p.readyMu.Lock()
	defer p.readyMu.Unlock()
	for _, s := range world.Sides {
		d := s.Offset()
		n, ok := p.GetChunk(pos.Add(d.X, d.Y, d.Z))
		if !ok || !n.Ready() {
			continue
		}
		_ = n.Edit(func(e *chunk.Editor) error {
			e.SetReady(false)
			return nil
		})
	}
}

// requestReview queues a review of region.
func (p *Provider) requestReview(r world.Region) {
	review, _ := p.pools()
	t := pipeline.Review(r)
	t.Priority = p.regions.priority(r.Center())
	review.Submit(t)
}

// requestProduce queues a produce request for region.
func (p *Provider) requestProduce(r world.Region) {
	review, _ := p.pools()
	t := pipeline.Produce(r)
	t.Priority = p.regions.priority(r.Center())
	review.Submit(t)
}

// requestLoad queues a load of pos unless it is resident or already in flight.
func (p *Provider) requestLoad(pos world.ChunkPos) {
	if p.cache.Contains(pos) {
		return
	}
	p.submitPass(pipeline.KindLoad, pos)
}

// submitPass queues a positional task once.
func (p *Provider) submitPass(k pipeline.Kind, pos world.ChunkPos) {
	if !p.pending.Add(k, pos) {
		return
	}
	_, process := p.pools()
	t := pipeline.At(k, pos)
	t.Priority = p.regions.priority(pos)
	if !process.Submit(t) {
		p.pending.Done(k, pos)
	}
}
