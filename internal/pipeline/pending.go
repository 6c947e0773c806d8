package pipeline

import (
	"sync"

	"github.com/freeeve/chunkworld/internal/world"
)

type pendingKey struct {
	kind Kind
	pos  world.ChunkPos
}

// Pending tracks positional tasks that are queued or running so the same
// pass is not scheduled twice for one chunk.
type Pending struct {
	mu   sync.Mutex
	seen map[pendingKey]struct{}
}

func NewPending() *Pending {
	return &Pending{seen: make(map[pendingKey]struct{})}
}

// Add marks (kind, pos) pending. It returns false if it already was.
func (p *Pending) Add(kind Kind, pos world.ChunkPos) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := pendingKey{kind, pos}
	if _, ok := p.seen[k]; ok {
		return false
	}
	p.seen[k] = struct{}{}
	return true
}

// Done clears (kind, pos).
func (p *Pending) Done(kind Kind, pos world.ChunkPos) {
	p.mu.Lock()
	delete(p.seen, pendingKey{kind, pos})
	p.mu.Unlock()
}

func (p *Pending) Contains(kind Kind, pos world.ChunkPos) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.seen[pendingKey{kind, pos}]
	return ok
}

// Any reports whether any kind of task is pending for pos.
func (p *Pending) Any(pos world.ChunkPos, kinds ...Kind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range kinds {
		if _, ok := p.seen[pendingKey{k, pos}]; ok {
			return true
		}
	}
	return false
}

func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

// Clear forgets every pending entry.
func (p *Pending) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = make(map[pendingKey]struct{})
}
