package provider

import (
	"fmt"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/freeeve/chunkworld/internal/world"
)

// Observer is a registered relevance region as seen from outside.
type Observer struct {
	ID       uuid.UUID      `json:"id"`
	Position mgl64.Vec3     `json:"position"`
	Extent   world.Extent   `json:"extent"`
	Center   world.ChunkPos `json:"center"`
	Box      world.Region   `json:"box"`
}

// region tracks the box of chunks one observer needs resident. The box
// follows the observer's live position but only moves on Tick.
type region struct {
	id     uuid.UUID
	pos    mgl64.Vec3
	extent world.Extent
	box    world.Region
	placed bool
}

// regionUpdate describes a box that moved during a tick. old is meaningful
// only when hadOld is set.
type regionUpdate struct {
	id     uuid.UUID
	old    world.Region
	hadOld bool
	box    world.Region
}

type regionTracker struct {
	mu      sync.RWMutex
	regions map[uuid.UUID]*region
}

func newRegionTracker() *regionTracker {
	return &regionTracker{regions: make(map[uuid.UUID]*region)}
}

func (t *regionTracker) add(id uuid.UUID, pos mgl64.Vec3, extent world.Extent) error {
	if extent.X < 0 || extent.Y < 0 || extent.Z < 0 {
		return fmt.Errorf("negative extent %+v", extent)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.regions[id]; ok {
		return fmt.Errorf("observer %s already registered", id)
	}
	t.regions[id] = &region{id: id, pos: pos, extent: extent}
	return nil
}

func (t *regionTracker) move(id uuid.UUID, pos mgl64.Vec3) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.regions[id]
	if ok {
		r.pos = pos
	}
	return ok
}

// remove drops a region. placed reports whether box was ever placed.
func (t *regionTracker) remove(id uuid.UUID) (box world.Region, placed, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.regions[id]
	if !ok {
		return world.Region{}, false, false
	}
	delete(t.regions, id)
	return r.box, r.placed, true
}

// update recomputes every box from its observer's position and returns the
// boxes that moved or were placed for the first time, together with every
// placed box as it stood before and after the move.
func (t *regionTracker) update() (moved []regionUpdate, before, after []world.Region) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.regions {
		if r.placed {
			before = append(before, r.box)
		}
		box := world.Box(world.ChunkPosOf(r.pos), r.extent)
		after = append(after, box)
		if r.placed && box == r.box {
			continue
		}
		moved = append(moved, regionUpdate{id: r.id, old: r.box, hadOld: r.placed, box: box})
		r.box, r.placed = box, true
	}
	return moved, before, after
}

// reset forgets every placed box so the next update produces them in full.
func (t *regionTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.regions {
		r.placed = false
	}
}

// covered reports whether any placed box other than skip's contains pos.
func (t *regionTracker) covered(pos world.ChunkPos, skip uuid.UUID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range t.regions {
		if r.id != skip && r.placed && r.box.Contains(pos) {
			return true
		}
	}
	return false
}

// covers reports whether any of boxes contains pos.
func covers(boxes []world.Region, pos world.ChunkPos) bool {
	for _, b := range boxes {
		if b.Contains(pos) {
			return true
		}
	}
	return false
}

// boxes returns every placed box expanded by margin.
func (t *regionTracker) boxes(margin int32) []world.Region {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]world.Region, 0, len(t.regions))
	for _, r := range t.regions {
		if r.placed {
			out = append(out, r.box.Expand(margin))
		}
	}
	return out
}

// priority is the Manhattan distance from pos to the nearest observer's own
// chunk, not to the center of its box; the two differ for asymmetric
// extents. Lower runs first; with no observers every position ties.
func (t *regionTracker) priority(pos world.ChunkPos) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.regions) == 0 {
		return 0
	}
	best := math.MaxInt
	for _, r := range t.regions {
		best = min(best, world.Manhattan(pos, world.ChunkPosOf(r.pos)))
	}
	return best
}

func (t *regionTracker) get(id uuid.UUID) (Observer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.regions[id]
	if !ok {
		return Observer{}, false
	}
	return r.observer(), true
}

func (t *regionTracker) list() []Observer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Observer, 0, len(t.regions))
	for _, r := range t.regions {
		out = append(out, r.observer())
	}
	return out
}

func (t *regionTracker) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.regions)
}

func (r *region) observer() Observer {
	center := world.ChunkPosOf(r.pos)
	return Observer{
		ID:       r.id,
		Position: r.pos,
		Extent:   r.extent,
		Center:   center,
		Box:      world.Box(center, r.extent),
	}
}

// AddObserver registers a relevance region of extent chunks around the
// world-space position pos. A nil id is replaced by a fresh one. The region's
// chunks are produced on the next Tick.
func (p *Provider) AddObserver(id uuid.UUID, pos mgl64.Vec3, extent world.Extent) (uuid.UUID, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	if err := p.regions.add(id, pos, extent); err != nil {
		return uuid.Nil, err
	}
	p.log.Info().
		Stringer("observer", id).
		Stringer("chunk", world.ChunkPosOf(pos)).
		Msg("observer added")
	return id, nil
}

// MoveObserver updates an observer's live position. It reports whether the
// observer exists.
func (p *Provider) MoveObserver(id uuid.UUID, pos mgl64.Vec3) bool {
	return p.regions.move(id, pos)
}

// RemoveObserver drops an observer. Chunks no longer covered by any region
// are announced as irrelevant.
func (p *Provider) RemoveObserver(id uuid.UUID) bool {
	box, placed, ok := p.regions.remove(id)
	if !ok {
		return false
	}
	if placed {
		box.Each(func(pos world.ChunkPos) {
			if !p.regions.covered(pos, id) {
				p.subs.emit(Event{Kind: EventIrrelevant, Pos: pos})
			}
		})
	}
	p.log.Info().Stringer("observer", id).Msg("observer removed")
	return true
}

// Observer returns the observer registered as id.
func (p *Provider) Observer(id uuid.UUID) (Observer, bool) { return p.regions.get(id) }

// Observers lists the registered observers.
func (p *Provider) Observers() []Observer { return p.regions.list() }
