// Revstore version engine daemon
// Keeps immutable version history for JSON content with retention sweeps
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nainya/revstore/internal/logger"
	"github.com/nainya/revstore/internal/metrics"
	"github.com/nainya/revstore/internal/server"
	"github.com/nainya/revstore/pkg/storage"
	"github.com/nainya/revstore/pkg/version"
)

var (
	dbPath        = flag.String("db", "revstore.db", "Database directory path")
	obsPort       = flag.Int("obs-port", 9090, "Observability HTTP port")
	maxVersions   = flag.Int("max-versions", version.DefaultMaxVersionsPerContent, "Version count per content that triggers retention")
	sweepInterval = flag.Duration("sweep-interval", version.DefaultSweepInterval, "How often retention sweeps all contents")
	logLevel      = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	pretty        = flag.Bool("pretty", false, "Pretty-print logs for development")
)

func main() {
	flag.Parse()

	log := logger.NewLogger(logger.Config{
		Level:  *logLevel,
		Pretty: *pretty,
	})
	log.LogServerStart(*obsPort, *dbPath)

	// Open storage
	storeCfg := storage.DefaultBadgerConfig(*dbPath)
	storeCfg.Logger = *log.StoreLogger().GetZerolog()
	badgerStore, err := storage.OpenBadger(storeCfg)
	if err != nil {
		log.Fatal("Failed to open database").Err(err).Send()
	}
	defer badgerStore.Close()

	// Record operation metrics for every storage call
	m := metrics.NewMetrics()
	store := metrics.NewMeasuredStore(badgerStore, m)

	// Create the version manager
	cfg := version.DefaultConfig()
	cfg.MaxVersionsPerContent = *maxVersions
	cfg.Logger = *log.EngineLogger().GetZerolog()
	cfg.Metrics = m
	mgr, err := version.NewManager(store, cfg)
	if err != nil {
		log.Fatal("Failed to create version manager").Err(err).Send()
	}
	defer mgr.Close()

	// Start the retention sweeper
	sweeper := version.NewSweeper(mgr, *sweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	// Track database size
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			m.UpdateStoreSize(badgerStore.Size())
		}
	}()

	// Start observability server
	obs := server.NewObservabilityServer(*obsPort, log, m, mgr, store)
	go func() {
		if err := obs.Start(); err != nil {
			log.Fatal("Observability server failed").Err(err).Send()
		}
	}()

	log.LogServerReady(*obsPort)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.LogServerShutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Error("Observability server shutdown failed").Err(err).Send()
	}
}
