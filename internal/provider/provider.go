// Package provider drives chunks from request to a fully lit, ready state and
// back out to the far store. It owns the near cache, the relevance regions of
// the registered observers and the two worker pools.
package provider

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chunkworld/internal/block"
	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/gen"
	"github.com/freeeve/chunkworld/internal/light"
	"github.com/freeeve/chunkworld/internal/pipeline"
	"github.com/freeeve/chunkworld/internal/store"
	"github.com/freeeve/chunkworld/internal/world"
)

var (
	// ErrNotRunning is returned by operations that need the worker pools.
	ErrNotRunning = errors.New("provider not running")
	// ErrStopped is returned after Dispose.
	ErrStopped = errors.New("provider disposed")
)

// Config configures a Provider. Collaborators are passed in explicitly.
type Config struct {
	Store     store.ChunkStore
	Generator gen.Generator
	Blocks    *block.Registry
	Factory   *chunk.Factory // channel layout, built from the voxel registry
	Logger    zerolog.Logger

	ReviewWorkers   int           // default 1
	ProcessWorkers  int           // default runtime.NumCPU()
	CacheLimit      int           // resident chunks before eviction runs; default 4096
	ProduceMargin   int32         // chunks added around a region before producing; default 2
	EvictMargin     int32         // chunks kept around a region when evicting; default 4
	SkyLevel        int           // world block y at and above which cells see open sky; default 2*SizeY
	TickInterval    time.Duration // background tick period; default 250ms
	ShutdownTimeout time.Duration // bound on waiting for workers; default 10s
	FlushWorkers    int           // parallel store writes on shutdown; default runtime.NumCPU()

	Deflate      bool // queue a deflation pass once a chunk is complete
	LogDeflation bool // log per-channel savings of each deflation
}

func (cfg *Config) applyDefaults() {
	if cfg.ReviewWorkers == 0 {
		cfg.ReviewWorkers = 1
	}
	if cfg.ProcessWorkers == 0 {
		cfg.ProcessWorkers = runtime.NumCPU()
	}
	if cfg.CacheLimit == 0 {
		cfg.CacheLimit = 4096
	}
	if cfg.ProduceMargin == 0 {
		cfg.ProduceMargin = 2
	}
	if cfg.EvictMargin == 0 {
		cfg.EvictMargin = 4
	}
	if cfg.SkyLevel == 0 {
		cfg.SkyLevel = 2 * world.SizeY
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 250 * time.Millisecond
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.FlushWorkers == 0 {
		cfg.FlushWorkers = runtime.NumCPU()
	}
}

// Provider implements the chunk provider API.
type Provider struct {
	cfg     Config
	log     zerolog.Logger
	store   store.ChunkStore
	cache   *store.NearCache
	merger  *light.Merger
	pending *pipeline.Pending
	regions *regionTracker
	subs    *subscribers

	mu       sync.Mutex
	review   *pipeline.Pool
	process  *pipeline.Pool
	running  bool
	disposed bool

	readyMu sync.Mutex

	failedMu sync.Mutex
	failed   map[world.ChunkPos]struct{}

	tickMu    sync.Mutex
	tickStop  chan struct{}
	tickDone  chan struct{}
	tickEvery time.Duration

	generated int64
	loaded    int64
	evicted   int64
	advanced  int64
	readied   int64
	deflated  int64

	loadFailures int64
	edits        int64
}

// New creates a provider. Its pools do not run until Start.
func New(cfg Config) (*Provider, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("provider: store required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("provider: generator required")
	}
	if cfg.Blocks == nil {
		return nil, fmt.Errorf("provider: block registry required")
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("provider: chunk factory required")
	}
	cfg.applyDefaults()
	if cfg.ProduceMargin >= cfg.EvictMargin {
		return nil, fmt.Errorf("provider: produce margin %d must be below evict margin %d",
			cfg.ProduceMargin, cfg.EvictMargin)
	}
	log := cfg.Logger.With().Str("component", "provider").Logger()
	p := &Provider{
		cfg:     cfg,
		log:     log,
		store:   cfg.Store,
		cache:   store.NewNearCache(cfg.Logger),
		merger:  light.NewMerger(cfg.Blocks, cfg.SkyLevel),
		pending: pipeline.NewPending(),
		regions: newRegionTracker(),
		subs:    newSubscribers(log),
		failed:  make(map[world.ChunkPos]struct{}),
	}
	if err := p.newPools(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) newPools() error {
	review, err := pipeline.NewPool(pipeline.Config{
		Name:       "review",
		NumWorkers: p.cfg.ReviewWorkers,
		Logger:     p.cfg.Logger,
		Handle:     p.handleReview,
	})
	if err != nil {
		return err
	}
	process, err := pipeline.NewPool(pipeline.Config{
		Name:       "process",
		NumWorkers: p.cfg.ProcessWorkers,
		Logger:     p.cfg.Logger,
		Handle:     p.handleProcess,
	})
	if err != nil {
		return err
	}
	p.review, p.process = review, process
	return nil
}

// Start launches the worker pools.
func (p *Provider) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return ErrStopped
	}
	if p.running {
		return nil
	}
	p.review.Start()
	p.process.Start()
	p.running = true
	p.log.Info().
		Int("review_workers", p.cfg.ReviewWorkers).
		Int("process_workers", p.cfg.ProcessWorkers).
		Str("generator", p.cfg.Generator.Name()).
		Msg("provider started")
	return nil
}

// Running reports whether the worker pools are running.
func (p *Provider) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Shutdown stops the background tick and both pools, waiting for each at
// most ShutdownTimeout, then writes every resident chunk to the store.
// Resident chunks stay cached. Queued work is dropped.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.StopBackgroundTick()
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return ErrStopped
	}
	wasRunning := p.running
	p.running = false
	review, process := p.review, p.process
	p.mu.Unlock()

	if wasRunning {
		if !review.Shutdown(p.cfg.ShutdownTimeout) {
			p.log.Warn().Msg("review workers did not terminate in time")
		}
		if !process.Shutdown(p.cfg.ShutdownTimeout) {
			p.log.Warn().Msg("process workers did not terminate in time")
		}
	}
	p.pending.Clear()

	start := time.Now()
	n, err := p.flush(ctx)
	if err != nil {
		p.log.Error().Err(err).Int("flushed", n).Msg("flush failed")
		return err
	}
	p.log.Info().Int("flushed", n).Dur("elapsed", time.Since(start)).Msg("provider stopped")
	return nil
}

// Restart stops the pools, drops every resident chunk after saving it and
// starts fresh pools that re-produce every region.
func (p *Provider) Restart(ctx context.Context) error {
	every := p.tickInterval()
	if err := p.Shutdown(ctx); err != nil {
		return err
	}
	p.dropResident()
	p.mu.Lock()
	err := p.newPools()
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.regions.reset()
	if err := p.Start(); err != nil {
		return err
	}
	p.Tick()
	if every > 0 {
		p.StartBackgroundTick(every)
	}
	return nil
}

// Dispose shuts the provider down, releases every resident chunk and closes
// the store. The provider cannot be used afterwards.
func (p *Provider) Dispose(ctx context.Context) error {
	err := p.Shutdown(ctx)
	if errors.Is(err, ErrStopped) {
		return nil
	}
	p.mu.Lock()
	p.disposed = true
	p.mu.Unlock()
	p.dropResident()
	p.subs.closeAll()
	if cerr := p.store.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close store: %w", cerr)
	}
	return err
}

// dropResident disposes and uncaches every resident chunk without saving it.
func (p *Provider) dropResident() {
	for _, c := range p.cache.Clear() {
		_ = c.Edit(func(e *chunk.Editor) error {
			e.Dispose()
			return nil
		})
	}
}

// GetChunk returns the resident chunk at pos. It never blocks; absence means
// the chunk is not resident yet.
func (p *Provider) GetChunk(pos world.ChunkPos) (*chunk.Chunk, bool) {
	c, ok := p.cache.Get(pos)
	if !ok || c.Disposed() {
		return nil, false
	}
	return c, true
}

// IsChunkReady reports whether the chunk at pos and its six face neighbors
// are complete.
func (p *Provider) IsChunkReady(pos world.ChunkPos) bool {
	c, ok := p.GetChunk(pos)
	return ok && c.Ready()
}

// GetSubview returns a read-oriented view over the resident chunks of region.
// Block coordinates are relative to the chunk at offset.
func (p *Provider) GetSubview(region world.Region, offset world.ChunkPos) *chunk.View {
	return chunk.NewView(region, offset, p.lookup)
}

func (p *Provider) lookup(pos world.ChunkPos) *chunk.Chunk {
	c, _ := p.GetChunk(pos)
	return c
}

// ReloadChunk writes the resident chunk at pos to the store, drops it and
// queues it to be loaded again. It returns false if pos is not resident. A
// failed write leaves the chunk resident and untouched.
func (p *Provider) ReloadChunk(pos world.ChunkPos) (bool, error) {
	if err := p.checkRunning(); err != nil {
		return false, err
	}
	c, ok := p.GetChunk(pos)
	if !ok {
		return false, nil
	}
	err := c.Edit(func(e *chunk.Editor) error {
		if c.Disposed() {
			return nil
		}
		if err := p.store.Put(c); err != nil {
			return err
		}
		e.Dispose()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reload %v: %w", pos, err)
	}
	p.cache.RemoveIf(c)
	p.unready(pos)
	p.requestLoad(pos)
	p.log.Debug().Stringer("pos", pos).Msg("chunk reloaded")
	return true, nil
}

// PurgeWorld drops every resident chunk and every stored record, then
// produces every region again from scratch.
func (p *Provider) PurgeWorld() error {
	if err := p.checkRunning(); err != nil {
		return err
	}
	every := p.tickInterval()
	p.StopBackgroundTick()
	p.mu.Lock()
	p.running = false
	review, process := p.review, p.process
	p.mu.Unlock()
	review.Shutdown(p.cfg.ShutdownTimeout)
	process.Shutdown(p.cfg.ShutdownTimeout)
	p.pending.Clear()
	p.dropResident()

	if err := p.store.Purge(); err != nil {
		return fmt.Errorf("purge store: %w", err)
	}
	p.mu.Lock()
	err := p.newPools()
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.regions.reset()
	if err := p.Start(); err != nil {
		return err
	}
	p.log.Info().Msg("world purged")
	p.Tick()
	if every > 0 {
		p.StartBackgroundTick(every)
	}
	return nil
}

// failedLoad remembers a position whose load failed so Tick can retry it.
func (p *Provider) failedLoad(pos world.ChunkPos) {
	p.failedMu.Lock()
	defer p.failedMu.Unlock()
	p.failed[pos] = struct{}{}
}

func (p *Provider) takeFailedLoads() []world.ChunkPos {
	p.failedMu.Lock()
	defer p.failedMu.Unlock()
	out := make([]world.ChunkPos, 0, len(p.failed))
	for pos := range p.failed {
		out = append(out, pos)
	}
	clear(p.failed)
	return out
}

func (p *Provider) checkRunning() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.disposed:
		return ErrStopped
	case !p.running:
		return ErrNotRunning
	}
	return nil
}

func (p *Provider) pools() (review, process *pipeline.Pool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.review, p.process
}

// Stats reports the provider's counters.
type Stats struct {
	Running     bool                `json:"running"`
	Resident    int                 `json:"resident"`
	CacheLimit  int                 `json:"cache_limit"`
	CacheHits   uint64              `json:"cache_hits"`
	CacheMisses uint64              `json:"cache_misses"`
	Observers   int                 `json:"observers"`
	Subscribers int                 `json:"subscribers"`
	Pending     int                 `json:"pending"`
	Generated   int64               `json:"generated"`
	Loaded      int64               `json:"loaded"`
	Evicted     int64               `json:"evicted"`
	Advanced    int64               `json:"advanced"`
	Readied     int64               `json:"readied"`
	Deflated    int64               `json:"deflated"`
	LoadFailed  int64               `json:"load_failed"`
	Edits       int64               `json:"edits"`
	States      map[string]int      `json:"states"`
	Review      pipeline.PoolStatus `json:"review"`
	Process     pipeline.PoolStatus `json:"process"`
	Store       *store.Stats        `json:"store,omitempty"`
}

// Stats returns a snapshot of the provider's state.
func (p *Provider) Stats() Stats {
	hits, misses, size := p.cache.Stats()
	states := make(map[string]int)
	p.cache.Range(func(c *chunk.Chunk) bool {
		states[c.State().String()]++
		return true
	})
	review, process := p.pools()
	st := Stats{
		Running:     p.Running(),
		Resident:    size,
		CacheLimit:  p.cfg.CacheLimit,
		CacheHits:   hits,
		CacheMisses: misses,
		Observers:   p.regions.len(),
		Subscribers: p.subs.len(),
		Pending:     p.pending.Len(),
		Generated:   atomic.LoadInt64(&p.generated),
		Loaded:      atomic.LoadInt64(&p.loaded),
		Evicted:     atomic.LoadInt64(&p.evicted),
		Advanced:    atomic.LoadInt64(&p.advanced),
		Readied:     atomic.LoadInt64(&p.readied),
		Deflated:    atomic.LoadInt64(&p.deflated),
		LoadFailed:  atomic.LoadInt64(&p.loadFailures),
		Edits:       atomic.LoadInt64(&p.edits),
		States:      states,
		Review:      review.GetStatus(),
		Process:     process.GetStatus(),
	}
	if s, ok := p.store.(interface{ Stats() store.Stats }); ok {
		ss := s.Stats()
		st.Store = &ss
	}
	return st
}
