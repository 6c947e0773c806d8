package store

import (
	"encoding/json"
	"os"
	"sync/atomic"
)

// Metadata holds counters persisted next to on-disk stores.
type Metadata struct {
	TotalReads  uint64 `json:"total_reads"`
	TotalWrites uint64 `json:"total_writes"`
	Removes     uint64 `json:"removes"`
}

// StatsCollector collects and tracks statistics for the store
type StatsCollector struct {
	totalReads   uint64
	totalWrites  uint64
	hits         uint64
	misses       uint64
	removes      uint64
	rawBytes     uint64
	storedBytes  uint64
	decodeErrors uint64

	// empty for in-memory stores
	path string
}

// NewStatsCollector creates a stats collector persisting to path. An empty path disables persistence.
func NewStatsCollector(path string) *StatsCollector {
	return &StatsCollector{path: path}
}

func (s *StatsCollector) recordRead(hit bool) {
	atomic.AddUint64(&s.totalReads, 1)
	if hit {
		atomic.AddUint64(&s.hits, 1)
	} else {
		atomic.AddUint64(&s.misses, 1)
	}
}

func (s *StatsCollector) recordWrite(raw, stored int) {
	atomic.AddUint64(&s.totalWrites, 1)
	atomic.AddUint64(&s.rawBytes, uint64(raw))
	atomic.AddUint64(&s.storedBytes, uint64(stored))
}

func (s *StatsCollector) recordRemove()      { atomic.AddUint64(&s.removes, 1) }
func (s *StatsCollector) recordDecodeError() { atomic.AddUint64(&s.decodeErrors, 1) }

// Stats returns the current statistics
func (s *StatsCollector) Stats() Stats {
	return Stats{
		TotalReads:   atomic.LoadUint64(&s.totalReads),
		TotalWrites:  atomic.LoadUint64(&s.totalWrites),
		Hits:         atomic.LoadUint64(&s.hits),
		Misses:       atomic.LoadUint64(&s.misses),
		Removes:      atomic.LoadUint64(&s.removes),
		RawBytes:     atomic.LoadUint64(&s.rawBytes),
		StoredBytes:  atomic.LoadUint64(&s.storedBytes),
		DecodeErrors: atomic.LoadUint64(&s.decodeErrors),
	}
}

// LoadMetadata loads persistent counters from disk
func (s *StatsCollector) LoadMetadata() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return err
	}

	atomic.StoreUint64(&s.totalReads, meta.TotalReads)
	atomic.StoreUint64(&s.totalWrites, meta.TotalWrites)
	atomic.StoreUint64(&s.removes, meta.Removes)
	return nil
}

// SaveMetadata saves persistent counters to disk
func (s *StatsCollector) SaveMetadata() error {
	if s.path == "" {
		return nil
	}
	meta := Metadata{
		TotalReads:  atomic.LoadUint64(&s.totalReads),
		TotalWrites: atomic.LoadUint64(&s.totalWrites),
		Removes:     atomic.LoadUint64(&s.removes),
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file then rename for atomicity
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, s.path)
}
