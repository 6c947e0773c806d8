package store

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/segmentio/fasthash/fnv1a"

	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/world"
)

// NearCache holds the resident chunks. It is sharded 256 ways by an fnv1a
// hash of the position so lookups from many workers rarely contend.
type NearCache struct {
	shards [256]*nearShard
	hits   uint64
	misses uint64
	size   int64
	log    zerolog.Logger
}

type nearShard struct {
	mu     sync.RWMutex
	chunks map[world.ChunkPos]*chunk.Chunk
}

// NewNearCache creates an empty cache.
func NewNearCache(log zerolog.Logger) *NearCache {
	nc := &NearCache{log: log.With().Str("component", "near-cache").Logger()}
	for i := range nc.shards {
		nc.shards[i] = &nearShard{chunks: make(map[world.ChunkPos]*chunk.Chunk)}
	}
	return nc
}

func (nc *NearCache) shard(p world.ChunkPos) *nearShard {
	packed := uint64(uint32(p.X))<<32 ^ uint64(uint32(p.Y))<<16 ^ uint64(uint32(p.Z))
	return nc.shards[fnv1a.HashUint64(packed)&0xff]
}

// Get returns the resident chunk at pos.
func (nc *NearCache) Get(pos world.ChunkPos) (*chunk.Chunk, bool) {
	s := nc.shard(pos)
	s.mu.RLock()
	c, ok := s.chunks[pos]
	s.mu.RUnlock()
	if ok {
		atomic.AddUint64(&nc.hits, 1)
	} else {
		atomic.AddUint64(&nc.misses, 1)
	}
	return c, ok
}

// Contains reports residency without touching the hit counters.
func (nc *NearCache) Contains(pos world.ChunkPos) bool {
	s := nc.shard(pos)
	s.mu.RLock()
	_, ok := s.chunks[pos]
	s.mu.RUnlock()
	return ok
}

// PutIfAbsent inserts c unless a chunk is already resident at its position.
// The first writer wins: it returns the resident chunk and whether c was the
// one inserted. A losing insert is logged; the caller owns the loser.
// Disposed chunks are never inserted.
func (nc *NearCache) PutIfAbsent(c *chunk.Chunk) (*chunk.Chunk, bool) {
	pos := c.Position()
	if c.Disposed() {
		nc.log.Warn().Stringer("pos", pos).Msg("refusing to cache disposed chunk")
		s := nc.shard(pos)
		s.mu.RLock()
		cur := s.chunks[pos]
		s.mu.RUnlock()
		return cur, false
	}
	s := nc.shard(pos)
	s.mu.Lock()
	cur, ok := s.chunks[pos]
	if !ok {
		s.chunks[pos] = c
	}
	s.mu.Unlock()
	if ok {
		nc.log.Warn().Stringer("pos", pos).Msg("chunk already resident, keeping first")
		return cur, false
	}
	atomic.AddInt64(&nc.size, 1)
	return c, true
}

// Remove drops the chunk at pos and returns it.
func (nc *NearCache) Remove(pos world.ChunkPos) (*chunk.Chunk, bool) {
	s := nc.shard(pos)
	s.mu.Lock()
	c, ok := s.chunks[pos]
	if ok {
		delete(s.chunks, pos)
	}
	s.mu.Unlock()
	if ok {
		atomic.AddInt64(&nc.size, -1)
	}
	return c, ok
}

// RemoveIf drops c only if it is still the resident chunk at its position.
func (nc *NearCache) RemoveIf(c *chunk.Chunk) bool {
	pos := c.Position()
	s := nc.shard(pos)
	s.mu.Lock()
	cur, ok := s.chunks[pos]
	ok = ok && cur == c
	if ok {
		delete(s.chunks, pos)
	}
	s.mu.Unlock()
	if ok {
		atomic.AddInt64(&nc.size, -1)
	}
	return ok
}

// Range calls fn for every resident chunk until fn returns false. Chunks
// inserted or removed during the walk may or may not be visited.
func (nc *NearCache) Range(fn func(*chunk.Chunk) bool) {
	var batch []*chunk.Chunk
	for _, s := range nc.shards {
		batch = batch[:0]
		s.mu.RLock()
		for _, c := range s.chunks {
			batch = append(batch, c)
		}
		s.mu.RUnlock()
		for _, c := range batch {
			if !fn(c) {
				return
			}
		}
	}
}

// Positions returns the positions of every resident chunk.
func (nc *NearCache) Positions() []world.ChunkPos {
	out := make([]world.ChunkPos, 0, nc.Len())
	for _, s := range nc.shards {
		s.mu.RLock()
		for p := range s.chunks {
			out = append(out, p)
		}
		s.mu.RUnlock()
	}
	return out
}

// Len returns the number of resident chunks.
func (nc *NearCache) Len() int { return int(atomic.LoadInt64(&nc.size)) }

// Stats returns cache statistics.
func (nc *NearCache) Stats() (hits, misses uint64, size int) {
	return atomic.LoadUint64(&nc.hits), atomic.LoadUint64(&nc.misses), nc.Len()
}

// Clear empties the cache and returns the chunks it held.
func (nc *NearCache) Clear() []*chunk.Chunk {
	var out []*chunk.Chunk
	for _, s := range nc.shards {
		s.mu.Lock()
		for _, c := range s.chunks {
			out = append(out, c)
		}
		s.chunks = make(map[world.ChunkPos]*chunk.Chunk)
		s.mu.Unlock()
	}
	atomic.AddInt64(&nc.size, -int64(len(out)))
	return out
}
