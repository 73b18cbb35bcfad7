package portfolio

import (
	"testing"
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/modules/holdings"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func holding(id, symbol, qty, avg, cur string, status domain.HoldingStatus) *domain.Holding {
	h := &domain.Holding{
		ID:           id,
		PortfolioID:  "p1",
		Symbol:       symbol,
		Quantity:     d(qty),
		AveragePrice: d(avg),
		CurrentPrice: d(cur),
		Status:       status,
	}
	holdings.Recompute(h)
	return h
}

func newTestAggregator() *Aggregator {
	a := NewAggregator(zerolog.New(nil).Level(zerolog.Disabled))
	a.now = func() time.Time { return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) }
	return a
}

func TestRecalculateTotals_ActiveHoldingsOnly(t *testing.T) {
	closed := holding("h3", "IBM", "0", "90", "95", domain.HoldingClosed)
	closed.RealizedGainLoss = d("50")
	suspended := holding("h4", "XYZ", "5", "10", "12", domain.HoldingSuspended)

	arena := holdings.NewArena(
		holding("h1", "AAPL", "10", "100", "120", domain.HoldingActive),
		holding("h2", "MSFT", "5", "200", "180", domain.HoldingActive),
		closed,
		suspended,
	)
	p := &domain.Portfolio{ID: "p1", Name: "Main", Currency: domain.CurrencyUSD, Status: domain.PortfolioActive}

	summary := newTestAggregator().RecalculateTotals(p, arena)

	assert.True(t, p.TotalValue.Equal(d("2100")), "total value %s", p.TotalValue)
	assert.True(t, p.TotalCost.Equal(d("2000")))
	assert.True(t, p.TotalGainLoss.Equal(d("100")))
	assert.True(t, p.TotalGainLossPercent.Equal(d("5")))
	assert.True(t, summary.RealizedGainLoss.Equal(d("50")))
	assert.Equal(t, 2, summary.ActiveHoldings)
	assert.Equal(t, 4, summary.TotalHoldings)
	assert.Equal(t, "Main", summary.Name)
}

func TestRecalculateTotals_Idempotent(t *testing.T) {
	h := holding("h1", "AAPL", "3", "33.33", "40.01", domain.HoldingActive)
	require.NoError(t, holdings.ApplyPriceUpdate(h, d("41.27"), time.Now()))
	arena := holdings.NewArena(h)
	p := &domain.Portfolio{ID: "p1"}
	agg := newTestAggregator()

	first := agg.RecalculateTotals(p, arena)
	second := agg.RecalculateTotals(p, arena)

	assert.Equal(t, first, second)
	assert.False(t, h.Dirty, "recompute clears dirty flags")
}

func TestRecalculateTotals_EmptyPortfolio(t *testing.T) {
	p := &domain.Portfolio{ID: "p1", TotalValue: d("999")}

	summary := newTestAggregator().RecalculateTotals(p, holdings.NewArena())

	assert.True(t, p.TotalValue.IsZero())
	assert.True(t, p.TotalGainLossPercent.IsZero())
	assert.Equal(t, 0, summary.ActiveHoldings)
}

func TestSummarize_DoesNotRecompute(t *testing.T) {
	h := holding("h1", "AAPL", "10", "100", "120", domain.HoldingActive)
	h.RealizedGainLoss = d("7.5")
	p := &domain.Portfolio{ID: "p1", TotalValue: d("1")}

	summary := Summarize(p, holdings.NewArena(h))

	assert.True(t, summary.TotalValue.Equal(d("1")), "cached totals are reported as stored")
	assert.True(t, summary.RealizedGainLoss.Equal(d("7.5")))
	assert.Equal(t, 1, summary.ActiveHoldings)
}

func TestDayChange(t *testing.T) {
	withClose := holding("h1", "AAPL", "10", "100", "100", domain.HoldingActive)
	require.NoError(t, holdings.ApplyPriceUpdate(withClose, d("103"), time.Now()))
	noClose := holding("h2", "MSFT", "5", "200", "210", domain.HoldingActive)
	inactive := holding("h3", "IBM", "5", "100", "100", domain.HoldingInactive)
	require.NoError(t, holdings.ApplyPriceUpdate(inactive, d("150"), time.Now()))

	arena := holdings.NewArena(withClose, noClose, inactive)

	assert.True(t, DayChange(arena).Equal(d("30")))
}

func TestHoldingPercentage_ScenarioC(t *testing.T) {
	h := &domain.Holding{CurrentValue: d("6000")}
	p := &domain.Portfolio{TotalValue: d("10000")}

	assert.True(t, HoldingPercentage(h, p).Equal(d("60")))
	assert.True(t, HoldingPercentage(h, &domain.Portfolio{}).IsZero())
}

func TestPeriod_ContainsComparesWholeSeconds(t *testing.T) {
	base := time.Date(2024, 3, 31, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		period   Period
		at       time.Time
		expected bool
	}{
		{"from after pay within the same second", Period{From: base.Add(750 * time.Millisecond)}, base, true},
		{"pay after to within the same second", Period{To: base}, base.Add(999 * time.Millisecond), true},
		{"previous second", Period{From: base.Add(time.Millisecond)}, base.Add(-time.Millisecond), false},
		{"next second", Period{To: base.Add(999 * time.Millisecond)}, base.Add(time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.period.Contains(tt.at))
		})
	}
}

func TestTotalDividends(t *testing.T) {
	day := func(m time.Month, dd int) time.Time { return time.Date(2024, m, dd, 0, 0, 0, 0, time.UTC) }
	records := []domain.DividendRecord{
		{PayDate: day(1, 15), Amount: d("10")},
		{PayDate: day(3, 31), Amount: d("12.5")},
		{PayDate: day(4, 1), Amount: d("7")},
	}

	tests := []struct {
		name     string
		period   Period
		expected string
	}{
		{"q1 inclusive", Period{From: day(1, 1), To: day(3, 31)}, "22.5"},
		{"open start", Period{To: day(2, 1)}, "10"},
		{"open end", Period{From: day(3, 31)}, "19.5"},
		{"all time", Period{}, "29.5"},
		{"empty range", Period{From: day(6, 1), To: day(6, 30)}, "0"},
		{"sub-second from", Period{From: day(3, 31).Add(500 * time.Millisecond)}, "19.5"},
		{"sub-second to", Period{To: day(1, 15).Add(-time.Nanosecond)}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TotalDividends(records, tt.period)
			assert.True(t, got.Equal(d(tt.expected)), "got %s", got)
		})
	}
}
