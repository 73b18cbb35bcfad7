// Package di provides dependency injection type definitions.
package di

import (
	"github.com/aristath/ledger/internal/database"
	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/modules/allocation"
	"github.com/aristath/ledger/internal/modules/marketdata"
	"github.com/aristath/ledger/internal/modules/portfolio"
	"github.com/aristath/ledger/internal/modules/transactions"
	"github.com/aristath/ledger/internal/scheduler"
	"github.com/aristath/ledger/internal/services"
	"github.com/aristath/ledger/internal/store"
)

// Container holds all dependencies for the application.
//
// It is created by Wire() and is the single source of truth for service instances.
type Container struct {
	// Databases
	// Each database uses SQLite with WAL mode and profile-specific PRAGMAs
	LedgerDB *database.DB // Portfolios, holdings, transaction log, dividends, allocation targets
	CacheDB  *database.DB // Quote cache, safe to delete

	// Repositories
	Store      *store.SQLiteStore
	Targets    *allocation.TargetRepository
	QuoteCache *marketdata.QuoteCache

	// Market data, outermost layer first: cache, then rate limit, then upstream
	MarketData domain.MarketDataProvider

	// Components
	Processor  *transactions.Processor
	Aggregator *portfolio.Aggregator
	Analyzer   *allocation.Analyzer

	// Services
	LedgerService *services.LedgerService

	Scheduler *scheduler.Scheduler
}

// JobInstances holds references to the registered background jobs
type JobInstances struct {
	PriceRefresh      *scheduler.PriceRefreshJob
	QuoteCacheCleanup *marketdata.CleanupJob
	WALCheckpoint     *scheduler.WALCheckpointJob
}

// Close closes every database held by the container. Nil databases are skipped.
func (c *Container) Close() error {
	var firstErr error
	for _, db := range []*database.DB{c.LedgerDB, c.CacheDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
