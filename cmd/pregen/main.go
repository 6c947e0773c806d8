package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/freeeve/chunkworld/internal/chunk"
	"github.com/freeeve/chunkworld/internal/config"
	"github.com/freeeve/chunkworld/internal/logx"
	"github.com/freeeve/chunkworld/internal/provider"
	"github.com/freeeve/chunkworld/internal/world"
)

// parseTriple parses "x,y,z" into three int32 values.
func parseTriple(s string) ([3]int32, error) {
	var out [3]int32
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("want x,y,z, got %q", s)
	}
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return out, fmt.Errorf("coordinate %q: %w", p, err)
		}
		out[i] = int32(n)
	}
	return out, nil
}

func main() {
	var (
		configPath = flag.String("config", os.Getenv("CHUNKWORLD_CONFIG"), "path to a .yaml or .toml config file")
		centerFlag = flag.String("center", "0,0,0", "center chunk as x,y,z")
		extentFlag = flag.String("extent", "4,1,4", "half-size of the box in chunks as x,y,z")
		timeout    = flag.Duration("timeout", 30*time.Minute, "give up after this long")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	c, err := parseTriple(*centerFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "-center: %v\n", err)
		os.Exit(1)
	}
	e, err := parseTriple(*extentFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "-extent: %v\n", err)
		os.Exit(1)
	}
	center := world.ChunkPos{X: c[0], Y: c[1], Z: c[2]}
	extent := world.Extent{X: e[0], Y: e[1], Z: e[2]}
	box := world.Box(center, extent)

	logger, err := logx.New(logx.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	// The whole box must stay resident until it is written out.
	if need := world.Box(center, world.Extent{
		X: extent.X + cfg.Cache.EvictMargin,
		Y: extent.Y + cfg.Cache.EvictMargin,
		Z: extent.Z + cfg.Cache.EvictMargin,
	}).Volume(); cfg.Cache.Limit < need {
		cfg.Cache.Limit = need
	}

	rt, err := cfg.Build(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build world")
	}
	p, err := provider.New(cfg.ProviderConfig(rt, logger))
	if err != nil {
		_ = rt.Store.Close()
		logger.Fatal().Err(err).Msg("create provider")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := p.Dispose(ctx); err != nil {
			logger.Error().Err(err).Msg("dispose")
		}
	}()
	if err := p.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start provider")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if _, err := p.AddObserver(uuid.Nil, world.CenterOf(center), extent); err != nil {
		logger.Fatal().Err(err).Msg("add observer")
	}
	logger.Info().
		Stringer("box", box).
		Int("chunks", box.Volume()).
		Msg("pregenerating")

	start := time.Now()
	lastLog := time.Now()
	ticker := time.NewTicker(cfg.Pipeline.TickInterval.Std())
	defer ticker.Stop()
	for {
		p.Tick()
		resident := 0
		box.Each(func(pos world.ChunkPos) {
			if _, ok := p.GetChunk(pos); ok {
				resident++
			}
		})
		st := p.Stats()
		// Chunks near the produced edge stop short of complete; the run is
		// done once the box is resident and no work is left.
		if resident == box.Volume() && idle(st) {
			break
		}
		if time.Since(lastLog) > 10*time.Second {
			logger.Info().
				Int("resident", resident).
				Int("total", box.Volume()).
				Int("pending", st.Pending).
				Int("complete", st.States[chunk.Complete.String()]).
				Msg("pregen progress")
			lastLog = time.Now()
		}
		select {
		case <-ctx.Done():
			logger.Error().Err(ctx.Err()).Int("resident", resident).Msg("pregen interrupted")
			return
		case <-ticker.C:
		}
	}

	st := p.Stats()
	elapsed := time.Since(start)
	logger.Info().
		Int("chunks", box.Volume()).
		Int64("generated", st.Generated).
		Int64("loaded", st.Loaded).
		Interface("states", st.States).
		Dur("elapsed", elapsed).
		Float64("chunks_per_sec", float64(box.Volume())/elapsed.Seconds()).
		Msg("pregen complete")
}

func idle(st provider.Stats) bool {
	return st.Pending == 0 &&
		st.Review.QueueLen == 0 && st.Review.Busy == 0 &&
		st.Process.QueueLen == 0 && st.Process.Busy == 0
}
