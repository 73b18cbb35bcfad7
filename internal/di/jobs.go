package di

import (
	"fmt"

	"github.com/aristath/ledger/internal/config"
	"github.com/aristath/ledger/internal/modules/marketdata"
	"github.com/aristath/ledger/internal/scheduler"
	"github.com/rs/zerolog"
)

const (
	// quoteCacheCleanupSchedule runs at minute 5 of every hour
	quoteCacheCleanupSchedule = "0 5 * * * *"
	// walCheckpointSchedule runs every 30 minutes
	walCheckpointSchedule = "0 */30 * * * *"
)

// RegisterJobs creates the background jobs and registers them with the container's scheduler
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	container.Scheduler = scheduler.New(log)

	jobs := &JobInstances{
		PriceRefresh:      scheduler.NewPriceRefreshJob(container.LedgerService, cfg.RefreshTimeout(), log),
		QuoteCacheCleanup: marketdata.NewCleanupJob(container.QuoteCache, log),
		WALCheckpoint:     scheduler.NewWALCheckpointJob(log, container.LedgerDB, container.CacheDB),
	}

	registrations := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Refresh.Schedule, jobs.PriceRefresh},
		{quoteCacheCleanupSchedule, jobs.QuoteCacheCleanup},
		{walCheckpointSchedule, jobs.WALCheckpoint},
	}
	for _, r := range registrations {
		if err := container.Scheduler.AddJob(r.schedule, r.job); err != nil {
			return nil, fmt.Errorf("failed to register %s job: %w", r.job.Name(), err)
		}
	}

	log.Info().Int("jobs", container.Scheduler.Jobs()).Msg("Jobs registered")
	return jobs, nil
}
