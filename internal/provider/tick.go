package provider

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/pipeline"
	"github.com/freeeve/chunkworld/internal/world"
)

// Tick moves every region box to its observer's current chunk and produces
// the newly covered positions. It then retries failed loads, reorders the
// queues by distance to the nearest observer and evicts chunks if the cache
// is over its limit.
func (p *Provider) Tick() {
	p.mu.Lock()
	disposed := p.disposed
	p.mu.Unlock()
	if disposed {
		return
	}
	p.updateRegions()
	p.retryLoads()
	p.reprioritize()
	if p.cache.Len() > p.cfg.CacheLimit {
		p.evict()
	}
}

// updateRegions moves the boxes and announces coverage changes. A position
// is relevant when no box held it before the tick and some box holds it
// after; irrelevant the other way round. Each is announced once per tick
// however many boxes moved over it.
func (p *Provider) updateRegions() {
	margin := p.cfg.ProduceMargin
	moved, before, after := p.regions.update()
	announced := make(map[world.ChunkPos]bool)
	announce := func(kind EventKind, pos world.ChunkPos) {
		if !announced[pos] {
			announced[pos] = true
			p.subs.emit(Event{Kind: kind, Pos: pos})
		}
	}
	for _, u := range moved {
		want := u.box.Expand(margin)
		if !u.hadOld {
			p.requestProduce(want)
		} else {
			for _, r := range want.Subtract(u.old.Expand(margin)) {
				p.requestProduce(r)
			}
		}

		entered := []world.Region{u.box}
		if u.hadOld {
			entered = u.box.Subtract(u.old)
			for _, r := range u.old.Subtract(u.box) {
				r.Each(func(pos world.ChunkPos) {
					if !covers(after, pos) {
						announce(EventIrrelevant, pos)
					}
				})
			}
		}
		for _, r := range entered {
			r.Each(func(pos world.ChunkPos) {
				if !covers(before, pos) {
					announce(EventRelevant, pos)
				}
			})
		}
		p.log.Debug().Stringer("observer", u.id).Stringer("box", u.box).Msg("region moved")
	}
}

// retryLoads requests again every failed load that some produce box still
// needs. Failures are retried at most once per tick.
func (p *Provider) retryLoads() {
	failed := p.takeFailedLoads()
	if len(failed) == 0 {
		return
	}
	want := p.regions.boxes(p.cfg.ProduceMargin)
	retried := 0
	for _, pos := range failed {
		if covers(want, pos) && !p.cache.Contains(pos) {
			p.requestLoad(pos)
			retried++
		}
	}
	p.log.Debug().Int("failed", len(failed)).Int("retried", retried).Msg("retrying loads")
}

func (p *Provider) reprioritize() {
	prio := func(t pipeline.Task) int {
		if t.Kind.Positional() {
			return p.regions.priority(t.Pos)
		}
		return p.regions.priority(t.Region.Center())
	}
	review, process := p.pools()
	review.Queue().Reprioritize(prio)
	process.Queue().Reprioritize(prio)
}

// evict writes every chunk outside all regions expanded by the evict margin
// to the store and drops it. Chunks that are borrowed are left for a later
// sweep; chunks whose write fails stay resident.
func (p *Provider) evict() {
	keep := p.regions.boxes(p.cfg.EvictMargin)
	var evicted, deferred, failed int
	p.cache.Range(func(c *chunk.Chunk) bool {
		pos := c.Position()
		for _, r := range keep {
			if r.Contains(pos) {
				return true
			}
		}
		ran, err := c.TryEdit(func(e *chunk.Editor) error {
			if c.Disposed() {
				return nil
			}
			if err := p.store.Put(c); err != nil {
				return err
			}
			e.Dispose()
			return nil
		})
		switch {
		case !ran:
			deferred++
		case err != nil:
			failed++
			p.log.Warn().Err(err).Stringer("pos", pos).Msg("eviction write failed, keeping chunk")
		default:
			p.cache.RemoveIf(c)
			p.unready(pos)
			evicted++
		}
		return true
	})
	atomic.AddInt64(&p.evicted, int64(evicted))
	p.log.Debug().
		Int("evicted", evicted).
		Int("deferred", deferred).
		Int("failed", failed).
		Int("resident", p.cache.Len()).
		Msg("eviction sweep")
}

// flush writes every resident chunk to the store in parallel.
func (p *Provider) flush(ctx context.Context) (int, error) {
	var chunks []*chunk.Chunk
	p.cache.Range(func(c *chunk.Chunk) bool {
		chunks = append(chunks, c)
		return true
	})
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.FlushWorkers)
	var n int64
	for _, c := range chunks {
		c := c
		g.Go(func() error {
			wrote, err := p.save(ctx, c)
			if wrote {
				atomic.AddInt64(&n, 1)
			}
			return err
		})
	}
	err := g.Wait()
	return int(n), err
}

// save writes c once it can be borrowed. A worker that outlived the shutdown
// timeout may still hold it, so the borrow is retried until ctx ends.
func (p *Provider) save(ctx context.Context, c *chunk.Chunk) (bool, error) {
	for {
		wrote := false
		ran, err := c.TryEdit(func(e *chunk.Editor) error {
			if c.Disposed() {
				return nil
			}
			wrote = true
			return p.store.Put(c)
		})
		if ran {
			return wrote && err == nil, err
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}
