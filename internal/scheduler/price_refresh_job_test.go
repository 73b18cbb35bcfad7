package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/ledger/internal/services"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	report   services.RefreshReport
	err      error
	deadline bool
}

func (f *fakeRefresher) RefreshPrices(ctx context.Context) (services.RefreshReport, error) {
	_, f.deadline = ctx.Deadline()
	return f.report, f.err
}

func TestPriceRefreshJob_Name(t *testing.T) {
	job := NewPriceRefreshJob(&fakeRefresher{}, 0, zerolog.Nop())
	assert.Equal(t, "price_refresh", job.Name())
}

func TestPriceRefreshJob_Run(t *testing.T) {
	tests := []struct {
		name         string
		timeout      time.Duration
		err          error
		wantErr      bool
		wantDeadline bool
	}{
		{"with timeout", time.Minute, nil, false, true},
		{"without timeout", 0, nil, false, false},
		{"refresh error", time.Minute, errors.New("store down"), true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refresher := &fakeRefresher{
				report: services.RefreshReport{Portfolios: 1, Symbols: 2, Updated: 1, Skipped: []string{"XYZ"}},
				err:    tt.err,
			}
			job := NewPriceRefreshJob(refresher, tt.timeout, zerolog.Nop())

			err := job.Run()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantDeadline, refresher.deadline)
		})
	}
}
