package holdings

import (
	"testing"
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newHolding(qty, avg, cur string) *domain.Holding {
	h := &domain.Holding{
		ID:           "h1",
		PortfolioID:  "p1",
		Symbol:       "AAPL",
		Quantity:     d(qty),
		AveragePrice: d(avg),
		CurrentPrice: d(cur),
		Status:       domain.HoldingActive,
	}
	Recompute(h)
	return h
}

func TestRecompute(t *testing.T) {
	tests := []struct {
		name         string
		qty, avg     string
		cur          string
		costBasis    string
		currentValue string
		gainLoss     string
		gainPct      string
	}{
		{"gain", "10", "100", "120", "1000", "1200", "200", "20"},
		{"loss", "10", "100", "75", "1000", "750", "-250", "-25"},
		{"zero quantity", "0", "100", "120", "0", "0", "0", "0"},
		{"rounded percent", "3", "30", "40", "90", "120", "30", "33.3333"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHolding(tt.qty, tt.avg, tt.cur)

			assert.True(t, h.CostBasis.Equal(d(tt.costBasis)), "cost basis %s", h.CostBasis)
			assert.True(t, h.CurrentValue.Equal(d(tt.currentValue)), "current value %s", h.CurrentValue)
			assert.True(t, h.GainLoss.Equal(d(tt.gainLoss)), "gain/loss %s", h.GainLoss)
			assert.True(t, h.GainLossPercent.Equal(d(tt.gainPct)), "gain/loss %% %s", h.GainLossPercent)
		})
	}
}

func TestApplyPriceUpdate(t *testing.T) {
	h := newHolding("10", "100", "100")
	at := time.Date(2024, 5, 1, 16, 0, 0, 0, time.UTC)

	require.NoError(t, ApplyPriceUpdate(h, d("105.5"), at))

	assert.True(t, h.PreviousClosePrice.Valid)
	assert.True(t, h.PreviousClosePrice.Decimal.Equal(d("100")))
	assert.True(t, h.CurrentPrice.Equal(d("105.5")))
	assert.True(t, h.CurrentValue.Equal(d("1055")))
	assert.True(t, h.Dirty)
	assert.Equal(t, at, h.LastUpdated)
	assert.True(t, DayChange(h).Equal(d("55")))

	MarkClean(h)
	assert.False(t, h.Dirty)
}

func TestApplyPriceUpdate_RejectsNonPositive(t *testing.T) {
	for _, price := range []string{"0", "-1", "0.00001"} {
		h := newHolding("10", "100", "100")
		before := *h

		err := ApplyPriceUpdate(h, d(price), time.Now())

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrValidation)
		var priceErr *domain.InvalidPriceError
		require.ErrorAs(t, err, &priceErr)
		assert.Equal(t, "AAPL", priceErr.Symbol)
		assert.Equal(t, before, *h, "holding must not change on invalid price %s", price)
	}
}

func TestDayChange_NoPreviousClose(t *testing.T) {
	h := newHolding("10", "100", "120")
	assert.True(t, DayChange(h).IsZero())
}

func TestTransition(t *testing.T) {
	h := newHolding("0", "100", "100")
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, Transition(h, domain.HoldingClosed, at))
	assert.Equal(t, domain.HoldingClosed, h.Status)
	assert.False(t, IsActive(h))

	err := Transition(h, domain.HoldingSuspended, at)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.Equal(t, domain.HoldingClosed, h.Status)

	require.NoError(t, Transition(h, domain.HoldingActive, at))
	assert.True(t, IsActive(h))
}

func TestCheckInvariants(t *testing.T) {
	assert.NoError(t, CheckInvariants(newHolding("10", "100", "100")))
	assert.NoError(t, CheckInvariants(newHolding("0", "0", "0")))
	assert.ErrorIs(t, CheckInvariants(newHolding("-1", "100", "100")), domain.ErrValidation)
	assert.ErrorIs(t, CheckInvariants(newHolding("1", "0", "100")), domain.ErrValidation)
	assert.ErrorIs(t, CheckInvariants(newHolding("1", "100", "0")), domain.ErrValidation)
}
