package store

import (
	"errors"

	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/world"
)

// ErrNotFound is returned when a position has no stored record.
var ErrNotFound = errors.New("not found")

// ChunkStore is the far store: persistent chunks that are not resident in
// the near cache.
type ChunkStore interface {
	// Get decodes the stored chunk at pos, or returns ErrNotFound.
	Get(pos world.ChunkPos) (*chunk.Chunk, error)
	// Put writes c, replacing any previous record at its position. The caller
	// must hold c's borrow or otherwise guarantee no concurrent writer.
	Put(c *chunk.Chunk) error
	Contains(pos world.ChunkPos) bool
	Remove(pos world.ChunkPos) error
	// Purge drops every stored record.
	Purge() error
	Close() error
}

// Stats holds counters for a Store.
type Stats struct {
	Backend      string `json:"backend"`
	TotalReads   uint64 `json:"total_reads"`
	TotalWrites  uint64 `json:"total_writes"`
	Hits         uint64 `json:"hits"`
	Misses       uint64 `json:"misses"`
	Removes      uint64 `json:"removes"`
	RawBytes     uint64 `json:"raw_bytes"`
	StoredBytes  uint64 `json:"stored_bytes"`
	DecodeErrors uint64 `json:"decode_errors"`
}

// backend is a byte-level key/value store under a Store.
type backend interface {
	name() string
	get(key []byte) ([]byte, error)
	put(key, val []byte) error
	has(key []byte) (bool, error)
	delete(key []byte) error
	forEach(fn func(key, val []byte) error) error
	purge() error
	close() error
}
