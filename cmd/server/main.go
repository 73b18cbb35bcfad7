// Package main is the entry point for the position ledger service.
//
// The process opens the ledger and cache databases, wires the ledger service and runs
// the background jobs (price refresh, quote cache cleanup, WAL checkpoints) until it
// receives SIGINT or SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/ledger/internal/config"
	"github.com/aristath/ledger/internal/database"
	"github.com/aristath/ledger/internal/di"
	"github.com/aristath/ledger/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("default_currency", cfg.DefaultCurrency).
		Msg("Starting ledger")

	// No upstream market data client ships with the ledger; prices come from the quote
	// cache and whatever provider is plugged in here.
	container, jobs, err := di.Wire(cfg, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close databases")
		}
	}()

	healthCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	for _, db := range []*database.DB{container.LedgerDB, container.CacheDB} {
		if err := db.HealthCheck(healthCtx); err != nil {
			log.Error().Err(err).Str("database", db.Name()).Msg("Database health check failed")
		}
	}
	cancel()

	// Bring prices up to date before the first scheduled sweep
	if err := container.Scheduler.RunNow(jobs.PriceRefresh); err != nil {
		log.Warn().Err(err).Msg("Initial price refresh failed")
	}

	container.Scheduler.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down ledger...")

	// Waits for running jobs so no unit of work is cut off mid-write
	container.Scheduler.Stop()

	log.Info().Msg("Ledger stopped")
}
