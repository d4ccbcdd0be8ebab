// Package main provides the forgecalc service entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/forgecalc/internal/config"
	"github.com/thebtf/forgecalc/internal/db/sqlite"
	"github.com/thebtf/forgecalc/internal/gamedata"
	"github.com/thebtf/forgecalc/internal/pool"
	"github.com/thebtf/forgecalc/internal/pricing"
	"github.com/thebtf/forgecalc/internal/session"
	"github.com/thebtf/forgecalc/internal/watcher"
	"github.com/thebtf/forgecalc/internal/worker"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	port := flag.Int("port", 0, "HTTP port (default: config worker_port)")
	dataDir := flag.String("data-dir", "", "Data directory (default: ~/.forgecalc)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if *dataDir != "" {
		os.Setenv(config.EnvDataDir, *dataDir)
	}

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directory")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if *port > 0 {
		cfg.WorkerPort = *port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down")
		cancel()
	}()

	store, err := sqlite.NewStore(sqlite.StoreConfig{
		Path:     cfg.DBPath,
		MaxConns: cfg.MaxConns,
		WALMode:  true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize SQLite store")
	}
	defer store.Close()
	sessionStore := sqlite.NewSessionStore(store)

	data := gamedata.NewStore()
	if err := data.LoadFile(cfg.GameDataPath); err != nil {
		log.Warn().Err(err).Str("path", cfg.GameDataPath).Msg("Game data unavailable, valuation limited to defaults")
	}
	prices := pricing.NewCatalog()
	if err := prices.LoadFile(cfg.PriceCatalogPath); err != nil {
		log.Warn().Err(err).Str("path", cfg.PriceCatalogPath).Msg("Price catalog unavailable, valuations will report unknown costs")
	}

	startWatchers(cfg, data, prices)

	computePool := pool.New(cfg.PoolSize, cfg.MemoCapacity)
	defer computePool.Close()

	tracker := session.NewTracker(sessionStore, prices, data)
	if err := tracker.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore sessions")
	}

	server := worker.NewServer(tracker, data, prices, computePool, Version)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WorkerPort),
		Handler: server.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Int("port", cfg.WorkerPort).Str("version", Version).Msg("Starting forgecalc")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
}

// startWatchers hot-reloads the game data and price catalog when their
// files change on disk.
func startWatchers(cfg *config.Config, data *gamedata.Store, prices *pricing.Catalog) {
	watch := func(path string, reload func() error) {
		w, err := watcher.New(path, func() {
			if err := reload(); err != nil {
				log.Error().Err(err).Str("path", path).Msg("Reload failed, keeping previous data")
			}
		})
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to create watcher")
			return
		}
		if err := w.Start(); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to start watcher")
		}
	}
	watch(cfg.GameDataPath, func() error { return data.LoadFile(cfg.GameDataPath) })
	watch(cfg.PriceCatalogPath, func() error { return prices.LoadFile(cfg.PriceCatalogPath) })
}
