package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freeeve/chunkworld/internal/config"
	"github.com/freeeve/chunkworld/internal/httpapi"
	"github.com/freeeve/chunkworld/internal/logx"
	"github.com/freeeve/chunkworld/internal/provider"
)

func main() {
	defaultConfig := ""
	if envPath := os.Getenv("CHUNKWORLD_CONFIG"); envPath != "" {
		defaultConfig = envPath
	}

	var (
		configPath = flag.String("config", defaultConfig, "path to a .yaml or .toml config file")
		addr       = flag.String("addr", "", "listen address (overrides server.addr)")
		storePath  = flag.String("store", "", "store path (overrides store.path)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}

	logger, err := logx.New(logx.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	rt, err := cfg.Build(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build world")
	}
	n, size, err := rt.Store.Count()
	if err != nil {
		logger.Warn().Err(err).Msg("count stored chunks")
	}
	logger.Info().
		Str("backend", rt.Store.Backend()).
		Str("path", cfg.Store.Path).
		Int("chunks", n).
		Int64("bytes", size).
		Str("generator", rt.Generator.Name()).
		Msg("opened chunk store")

	p, err := provider.New(cfg.ProviderConfig(rt, logger))
	if err != nil {
		_ = rt.Store.Close()
		logger.Fatal().Err(err).Msg("create provider")
	}
	if err := p.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start provider")
	}
	p.StartBackgroundTick(cfg.Pipeline.TickInterval.Std())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server
	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: httpapi.NewRouter(
			logger.With().Str("component", "http").Logger(),
			p,
			httpapi.Options{EventBuffer: cfg.Server.EventBuffer},
		),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout.Std(),
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server first so no request races the flush
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}

	// Dispose flushes every resident chunk and closes the store
	if err := p.Dispose(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("provider dispose error")
	} else {
		st := p.Stats()
		logger.Info().
			Int64("generated", st.Generated).
			Int64("loaded", st.Loaded).
			Int64("evicted", st.Evicted).
			Msg("chunks flushed successfully")
	}

	logger.Info().Msg("shutdown complete")
}
