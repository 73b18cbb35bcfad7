package marketdata

import (
	"github.com/rs/zerolog"
)

// CleanupJob removes expired entries from the quote cache.
// It should be scheduled to run daily.
type CleanupJob struct {
	cache *QuoteCache
	log   zerolog.Logger
}

// NewCleanupJob creates a new quote cache cleanup job
func NewCleanupJob(cache *QuoteCache, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		cache: cache,
		log:   log.With().Str("job", "quote_cache_cleanup").Logger(),
	}
}

// Run removes all expired entries
func (j *CleanupJob) Run() error {
	results, err := j.cache.DeleteExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired quotes")
		return err
	}

	var totalDeleted int64
	for kind, count := range results {
		if count > 0 {
			j.log.Debug().
				Str("kind", string(kind)).
				Int64("deleted", count).
				Msg("Cleaned up expired cache entries")
			totalDeleted += count
		}
	}

	if totalDeleted > 0 {
		j.log.Info().
			Int64("total_deleted", totalDeleted).
			Msg("Quote cache cleanup completed")
	}

	return nil
}

// Name returns the job name for scheduling and logging
func (j *CleanupJob) Name() string {
	return "quote_cache_cleanup"
}
