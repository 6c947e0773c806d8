package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/config"
	"github.com/freeeve/chunkworld/internal/store"
	"github.com/freeeve/chunkworld/internal/world"
)

func main() {
	var (
		configPath    = flag.String("config", os.Getenv("CHUNKWORLD_CONFIG"), "config naming the source store")
		toBackend     = flag.String("to-backend", store.BackendLevelDB, "destination backend (sqlite or leveldb)")
		toPath        = flag.String("to-path", "", "destination store path")
		toCompression = flag.String("to-compression", store.CompressionDefault, "destination compression (none, fast, default, best)")
		workers       = flag.Int("workers", runtime.NumCPU(), "parallel writers")
		skipExisting  = flag.Bool("skip-existing", true, "keep chunks already present in the destination")
		deflate       = flag.Bool("deflate", false, "deflate every channel before writing")
	)
	flag.Parse()

	if *toPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: migrate-store --config <file> --to-path <path> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	rt, err := cfg.Build(zerolog.Nop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open source store: %v\n", err)
		os.Exit(1)
	}
	defer rt.Store.Close()

	dst, err := store.Open(store.Config{
		Backend:     *toBackend,
		Path:        *toPath,
		Compression: *toCompression,
		Factory:     rt.Factory,
		Logger:      zerolog.Nop(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open destination store: %v\n", err)
		os.Exit(1)
	}
	defer dst.Close()

	fmt.Printf("Migrating %s:%s -> %s:%s\n", rt.Store.Backend(), cfg.Store.Path, *toBackend, *toPath)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var copied, skipped, malformed atomic.Uint64
	g, gctx := errgroup.WithContext(ctx)
	chunks := make(chan *chunk.Chunk, *workers*4)

	g.Go(func() error {
		defer close(chunks)
		return rt.Store.ForEach(func(c *chunk.Chunk) error {
			select {
			case chunks <- c:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}, func(pos world.ChunkPos, err error) {
			malformed.Add(1)
			fmt.Fprintf(os.Stderr, "skip %v: %v\n", pos, err)
		})
	})
	for i := 0; i < *workers; i++ {
		g.Go(func() error {
			for c := range chunks {
				if *skipExisting && dst.Contains(c.Position()) {
					skipped.Add(1)
					continue
				}
				if *deflate {
					_ = c.Edit(func(e *chunk.Editor) error {
						e.Deflate()
						return nil
					})
				}
				if err := dst.Put(c); err != nil {
					return fmt.Errorf("put %v: %w", c.Position(), err)
				}
				if n := copied.Add(1); n%10000 == 0 {
					fmt.Printf("Copied %d chunks (skipped %d)\n", n, skipped.Load())
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nDone! Copied %d chunks (skipped %d, malformed %d)\n",
		copied.Load(), skipped.Load(), malformed.Load())
}
