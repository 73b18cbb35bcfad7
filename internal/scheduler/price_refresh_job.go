package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/ledger/internal/services"
	"github.com/rs/zerolog"
)

// PriceRefresher is the part of the ledger service the refresh job drives
type PriceRefresher interface {
	RefreshPrices(ctx context.Context) (services.RefreshReport, error)
}

// PriceRefreshJob updates the prices of every active portfolio
type PriceRefreshJob struct {
	refresher PriceRefresher
	timeout   time.Duration
	log       zerolog.Logger
}

// NewPriceRefreshJob creates a price refresh job. A sweep running longer than timeout is
// cancelled; holdings that were not reached keep their last price.
func NewPriceRefreshJob(refresher PriceRefresher, timeout time.Duration, log zerolog.Logger) *PriceRefreshJob {
	return &PriceRefreshJob{
		refresher: refresher,
		timeout:   timeout,
		log:       log.With().Str("job", "price_refresh").Logger(),
	}
}

// Name returns the job name
func (j *PriceRefreshJob) Name() string {
	return "price_refresh"
}

// Run executes one price sweep
func (j *PriceRefreshJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	report, err := j.refresher.RefreshPrices(ctx)
	if err != nil {
		return fmt.Errorf("price refresh failed: %w", err)
	}

	if len(report.Skipped) > 0 {
		j.log.Warn().
			Strs("symbols", report.Skipped).
			Msg("Prices unavailable for some symbols")
	}
	return nil
}
