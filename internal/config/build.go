package config

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/freeeve/chunkworld/internal/block"
	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/gen"
	"github.com/freeeve/chunkworld/internal/provider"
	"github.com/freeeve/chunkworld/internal/store"
	"github.com/freeeve/chunkworld/internal/voxel"
)

// Runtime holds the collaborators built from a Config.
type Runtime struct {
	Voxels    *voxel.Registry
	Blocks    *block.Registry
	Factory   *chunk.Factory
	Generator gen.Generator
	Store     *store.Store
}

// Build validates c and opens everything a provider needs. The caller owns
// the returned store.
func (c Config) Build(log zerolog.Logger) (*Runtime, error) {
	rt := &Runtime{Voxels: voxel.NewRegistry()}
	if err := c.Validate(rt.Voxels); err != nil {
		return nil, err
	}
	var err error
	if rt.Blocks, err = c.BlockRegistry(); err != nil {
		return nil, err
	}
	if rt.Factory, err = chunk.NewFactory(rt.Voxels, c.Arrays); err != nil {
		return nil, err
	}
	if rt.Generator, err = gen.New(c.World.Generator, c.World.Seed, c.World.Ground); err != nil {
		return nil, err
	}
	rt.Store, err = store.Open(store.Config{
		Backend:     c.Store.Backend,
		Path:        c.Store.Path,
		Compression: c.Store.Compression,
		Factory:     rt.Factory,
		Logger:      log.With().Str("component", "store").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", c.Store.Backend, err)
	}
	return rt, nil
}

// ProviderConfig maps c onto a provider configuration using rt's collaborators.
func (c Config) ProviderConfig(rt *Runtime, log zerolog.Logger) provider.Config {
	return provider.Config{
		Store:           rt.Store,
		Generator:       rt.Generator,
		Blocks:          rt.Blocks,
		Factory:         rt.Factory,
		Logger:          log.With().Str("component", "provider").Logger(),
		ReviewWorkers:   c.Pipeline.ReviewWorkers,
		ProcessWorkers:  c.Pipeline.ProcessWorkers,
		CacheLimit:      c.Cache.Limit,
		ProduceMargin:   c.Cache.ProduceMargin,
		EvictMargin:     c.Cache.EvictMargin,
		SkyLevel:        c.World.SkyLevel,
		TickInterval:    c.Pipeline.TickInterval.Std(),
		ShutdownTimeout: c.Pipeline.ShutdownTimeout.Std(),
		FlushWorkers:    c.Pipeline.FlushWorkers,
		Deflate:         c.Pipeline.DeflateEnabled(),
		LogDeflation:    c.Pipeline.LogDeflation,
	}
}
