// Package portfolio derives portfolio-level totals from the portfolio's active holdings.
package portfolio

import (
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/modules/holdings"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Summary is the result of a portfolio recompute
type Summary struct {
	CalculatedAt time.Time `json:"calculated_at"`

	PortfolioID string                 `json:"portfolio_id"`
	Name        string                 `json:"name"`
	Currency    domain.Currency        `json:"currency"`
	Status      domain.PortfolioStatus `json:"status"`

	TotalValue           decimal.Decimal `json:"total_value"`
	TotalCost            decimal.Decimal `json:"total_cost"`
	TotalGainLoss        decimal.Decimal `json:"total_gain_loss"`
	TotalGainLossPercent decimal.Decimal `json:"total_gain_loss_percent"`
	DayChange            decimal.Decimal `json:"day_change"`
	// RealizedGainLoss sums realized gains of every holding, closed ones included
	RealizedGainLoss decimal.Decimal `json:"realized_gain_loss"`

	ActiveHoldings int `json:"active_holdings"`
	TotalHoldings  int `json:"total_holdings"`
}

// Period is an inclusive date range. A zero bound is open.
type Period struct {
	From time.Time
	To   time.Time
}

// Truncate drops sub-second precision from both bounds, matching how pay dates are stored
func (p Period) Truncate() Period {
	return Period{From: p.From.Truncate(time.Second), To: p.To.Truncate(time.Second)}
}

// Contains reports whether t falls within the period, compared at whole seconds
func (p Period) Contains(t time.Time) bool {
	p = p.Truncate()
	t = t.Truncate(time.Second)
	if !p.From.IsZero() && t.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && t.After(p.To) {
		return false
	}
	return true
}

// Aggregator recomputes the cached totals on a Portfolio.
//
// It is the only writer of TotalValue, TotalCost, TotalGainLoss, TotalGainLossPercent and
// DayChange. Inactive, closed and archived holdings are kept for history but excluded.
type Aggregator struct {
	log zerolog.Logger
	now func() time.Time
}

// NewAggregator creates a portfolio aggregator
func NewAggregator(log zerolog.Logger) *Aggregator {
	return &Aggregator{
		log: log.With().Str("component", "portfolio_aggregator").Logger(),
		now: time.Now,
	}
}

// RecalculateTotals rewrites the portfolio totals from the active holdings in arena and
// clears every holding's dirty flag. Calling it twice without a mutation in between
// produces identical totals.
func (a *Aggregator) RecalculateTotals(p *domain.Portfolio, arena *holdings.Arena) Summary {
	totalValue := decimal.Zero
	totalCost := decimal.Zero

	active := arena.Active()
	for _, h := range active {
		totalValue = totalValue.Add(h.CurrentValue)
		totalCost = totalCost.Add(h.CostBasis)
	}
	for _, h := range arena.All() {
		holdings.MarkClean(h)
	}

	p.TotalValue = totalValue
	p.TotalCost = totalCost
	p.TotalGainLoss = totalValue.Sub(totalCost)
	p.TotalGainLossPercent = domain.Percent(p.TotalGainLoss, totalCost)
	p.DayChange = DayChange(arena)
	p.LastCalculated = a.now()

	a.log.Debug().
		Str("portfolio_id", p.ID).
		Str("total_value", p.TotalValue.String()).
		Int("active_holdings", len(active)).
		Msg("Recalculated portfolio totals")

	return Summarize(p, arena)
}

// Summarize reports the portfolio's cached totals together with holding counts and the
// realized gain of every holding, closed ones included. It does not recompute anything.
func Summarize(p *domain.Portfolio, arena *holdings.Arena) Summary {
	realized := decimal.Zero
	for _, h := range arena.All() {
		realized = realized.Add(h.RealizedGainLoss)
	}

	return Summary{
		CalculatedAt:         p.LastCalculated,
		PortfolioID:          p.ID,
		Name:                 p.Name,
		Currency:             p.Currency,
		Status:               p.Status,
		TotalValue:           p.TotalValue,
		TotalCost:            p.TotalCost,
		TotalGainLoss:        p.TotalGainLoss,
		TotalGainLossPercent: p.TotalGainLossPercent,
		DayChange:            p.DayChange,
		RealizedGainLoss:     realized,
		ActiveHoldings:       len(arena.Active()),
		TotalHoldings:        arena.Len(),
	}
}

// DayChange sums the day change of active holdings that have a recorded previous close
func DayChange(arena *holdings.Arena) decimal.Decimal {
	total := decimal.Zero
	for _, h := range arena.Active() {
		total = total.Add(holdings.DayChange(h))
	}
	return total
}

// TotalDividends sums dividend amounts paid within the period
func TotalDividends(records []domain.DividendRecord, period Period) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		if period.Contains(r.PayDate) {
			total = total.Add(r.Amount)
		}
	}
	return total
}

// HoldingPercentage is the holding's share of the portfolio's total value, or zero when the
// portfolio has no value.
func HoldingPercentage(h *domain.Holding, p *domain.Portfolio) decimal.Decimal {
	return domain.Percent(h.CurrentValue, p.TotalValue)
}
