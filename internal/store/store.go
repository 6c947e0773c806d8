package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/world"
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("store closed")

// Backend names.
const (
	BackendMemory  = "memory"
	BackendSQLite  = "sqlite"
	BackendLevelDB = "leveldb"
)

// Compression levels.
const (
	CompressionNone    = "none"
	CompressionFast    = "fast"
	CompressionDefault = "default"
	CompressionBest    = "best"
)

// Config configures the Store
type Config struct {
	Backend     string // memory, sqlite or leveldb; default memory
	Path        string // sqlite file or leveldb directory
	Compression string // none, fast, default or best; default fast
	Factory     *chunk.Factory
	Logger      zerolog.Logger
}

// Store is a ChunkStore that keeps zstd-compressed chunk records in a
// byte-level backend.
type Store struct {
	be      backend
	factory *chunk.Factory

	encoder *zstd.Encoder // nil when compression is off
	decoder *zstd.Decoder

	stats *StatsCollector
	log   zerolog.Logger

	closeOnce sync.Once
	closed    atomic.Bool
}

var _ ChunkStore = (*Store)(nil)

// Open creates or opens a store.
func Open(cfg Config) (*Store, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("store: nil chunk factory")
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
	if cfg.Compression == "" {
		cfg.Compression = CompressionFast
	}

	var level zstd.EncoderLevel
	switch cfg.Compression {
	case CompressionNone:
	case CompressionFast:
		level = zstd.SpeedFastest
	case CompressionDefault:
		level = zstd.SpeedDefault
	case CompressionBest:
		level = zstd.SpeedBestCompression
	default:
		return nil, fmt.Errorf("store: unknown compression %q", cfg.Compression)
	}

	var (
		be       backend
		metaPath string
		err      error
	)
	switch cfg.Backend {
	case BackendMemory:
		be = newMemoryBackend()
	case BackendSQLite:
		be, err = openSQLite(cfg.Path)
		metaPath = cfg.Path + ".meta.json"
	case BackendLevelDB:
		if cfg.Path == "" {
			return nil, fmt.Errorf("store: leveldb backend needs a path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, err
		}
		be, err = openLevelDB(cfg.Path)
		metaPath = filepath.Join(cfg.Path, "meta.json")
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}

	s := &Store{
		be:      be,
		factory: cfg.Factory,
		stats:   NewStatsCollector(metaPath),
		log:     cfg.Logger.With().Str("component", "store").Logger(),
	}
	if cfg.Compression != CompressionNone {
		s.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		if err != nil {
			_ = be.close()
			return nil, err
		}
	}
	s.decoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		_ = be.close()
		return nil, err
	}
	if err := s.stats.LoadMetadata(); err != nil {
		_ = be.close()
		return nil, fmt.Errorf("load metadata: %w", err)
	}

	s.log.Info().Str("backend", cfg.Backend).Str("path", cfg.Path).
		Str("compression", cfg.Compression).Msg("store opened")
	return s, nil
}

// Backend returns the backend name.
func (s *Store) Backend() string { return s.be.name() }

// Get decodes the stored chunk at pos.
func (s *Store) Get(pos world.ChunkPos) (*chunk.Chunk, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	val, err := s.be.get(encodeKey(pos))
	if errors.Is(err, ErrNotFound) {
		s.stats.recordRead(false)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %v: %w", pos, err)
	}
	s.stats.recordRead(true)
	c, err := s.decode(val)
	if err != nil {
		s.stats.recordDecodeError()
		return nil, fmt.Errorf("decode %v: %w", pos, err)
	}
	if c.Position() != pos {
		s.stats.recordDecodeError()
		return nil, fmt.Errorf("decode %v: %w: record holds %v", pos, chunk.ErrMalformed, c.Position())
	}
	return c, nil
}

// Put encodes c and writes it, replacing any previous record.
func (s *Store) Put(c *chunk.Chunk) error {
	if s.closed.Load() {
		return ErrClosed
	}
	raw := chunk.Marshal(c)
	val := s.encode(raw)
	if err := s.be.put(encodeKey(c.Position()), val); err != nil {
		return fmt.Errorf("put %v: %w", c.Position(), err)
	}
	s.stats.recordWrite(len(raw), len(val))
	return nil
}

// Contains reports whether a record exists at pos. Backend errors count as absent.
func (s *Store) Contains(pos world.ChunkPos) bool {
	if s.closed.Load() {
		return false
	}
	ok, err := s.be.has(encodeKey(pos))
	if err != nil {
		s.log.Error().Err(err).Stringer("pos", pos).Msg("contains failed")
		return false
	}
	return ok
}

// Remove deletes the record at pos. Removing an absent record is not an error.
func (s *Store) Remove(pos world.ChunkPos) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.be.delete(encodeKey(pos)); err != nil {
		return fmt.Errorf("remove %v: %w", pos, err)
	}
	s.stats.recordRemove()
	return nil
}

// Purge drops every stored record.
func (s *Store) Purge() error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.be.purge(); err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	s.log.Info().Msg("store purged")
	return nil
}

// ForEach decodes every stored chunk in position order. Records that fail to
// decode are passed to onErr (if set) and skipped; an error from fn stops
// the iteration.
func (s *Store) ForEach(fn func(*chunk.Chunk) error, onErr func(world.ChunkPos, error)) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.be.forEach(func(key, val []byte) error {
		pos, err := decodeKey(key)
		if err != nil {
			if onErr != nil {
				onErr(world.ChunkPos{}, err)
			}
			return nil
		}
		c, err := s.decode(val)
		if err != nil {
			s.stats.recordDecodeError()
			if onErr != nil {
				onErr(pos, err)
			}
			return nil
		}
		return fn(c)
	})
}

// Count returns the number of stored records and their stored size.
func (s *Store) Count() (n int, bytes int64, err error) {
	if s.closed.Load() {
		return 0, 0, ErrClosed
	}
	err = s.be.forEach(func(key, val []byte) error {
		n++
		bytes += int64(len(val))
		return nil
	})
	return n, bytes, err
}

// Stats returns the store's counters.
func (s *Store) Stats() Stats {
	st := s.stats.Stats()
	st.Backend = s.be.name()
	return st
}

// Close persists counters and closes the backend. It is safe to call more than once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if e := s.stats.SaveMetadata(); e != nil {
			s.log.Error().Err(e).Msg("save metadata failed")
		}
		if s.encoder != nil {
			_ = s.encoder.Close()
		}
		s.decoder.Close()
		err = s.be.close()
		st := s.stats.Stats()
		s.log.Info().
			Uint64("writes", st.TotalWrites).
			Str("raw", humanize.Bytes(st.RawBytes)).
			Str("stored", humanize.Bytes(st.StoredBytes)).
			Msg("store closed")
	})
	return err
}

func (s *Store) encode(raw []byte) []byte {
	if s.encoder == nil {
		out := make([]byte, 0, len(raw)+1)
		out = append(out, codecRaw)
		return append(out, raw...)
	}
	out := make([]byte, 1, len(raw)/2+16)
	out[0] = codecZstd
	return s.encoder.EncodeAll(raw, out)
}

func (s *Store) decode(val []byte) (*chunk.Chunk, error) {
	if len(val) == 0 {
		return nil, fmt.Errorf("%w: empty value", chunk.ErrMalformed)
	}
	var raw []byte
	switch val[0] {
	case codecRaw:
		raw = val[1:]
	case codecZstd:
		var err error
		raw, err = s.decoder.DecodeAll(val[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", chunk.ErrMalformed, err)
		}
	default:
		return nil, fmt.Errorf("%w: codec %d", chunk.ErrMalformed, val[0])
	}
	return chunk.Unmarshal(raw, s.factory)
}
