// Package holdings keeps a single holding's valuation fields consistent with its
// quantity and prices.
//
// Every function that mutates a holding ends with Recompute. Derived fields are never
// written anywhere else.
package holdings

import (
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/modules/lifecycle"
	"github.com/shopspring/decimal"
)

// Recompute derives CostBasis, CurrentValue, GainLoss and GainLossPercent from
// quantity and prices.
func Recompute(h *domain.Holding) {
	h.CostBasis = h.Quantity.Mul(h.AveragePrice)
	h.CurrentValue = h.Quantity.Mul(h.CurrentPrice)
	h.GainLoss = h.CurrentValue.Sub(h.CostBasis)
	h.GainLossPercent = domain.Percent(h.GainLoss, h.CostBasis)
}

// ApplyPriceUpdate moves the current price to previous close, sets the new price and marks
// the holding dirty for the next portfolio recompute.
func ApplyPriceUpdate(h *domain.Holding, newPrice decimal.Decimal, at time.Time) error {
	price := domain.RoundPrice(newPrice)
	if !newPrice.IsPositive() || !price.IsPositive() {
		return &domain.InvalidPriceError{Symbol: h.Symbol, Price: newPrice}
	}

	next := h.Clone()
	next.PreviousClosePrice = domain.NullDecimal(h.CurrentPrice)
	next.CurrentPrice = price
	next.LastUpdated = at
	next.Dirty = true
	Recompute(next)
	if err := CheckInvariants(next); err != nil {
		return err
	}

	*h = *next
	return nil
}

// DayChange is the value movement since the previous close at the current quantity.
// It is zero when no previous close has been recorded.
func DayChange(h *domain.Holding) decimal.Decimal {
	if !h.PreviousClosePrice.Valid {
		return decimal.Zero
	}
	return h.CurrentPrice.Sub(h.PreviousClosePrice.Decimal).Mul(h.Quantity)
}

// IsActive reports whether the holding counts towards portfolio totals
func IsActive(h *domain.Holding) bool {
	return h.Status == domain.HoldingActive
}

// MarkClean clears the dirty flag once the portfolio has been recomputed
func MarkClean(h *domain.Holding) {
	h.Dirty = false
}

// Transition moves the holding to a new status if the lifecycle allows it
func Transition(h *domain.Holding, to domain.HoldingStatus, at time.Time) error {
	if err := lifecycle.Validate(h.Status, to); err != nil {
		return err
	}
	h.Status = to
	h.LastUpdated = at
	return nil
}

// CheckInvariants verifies that prices are positive while the position is open and that
// the quantity is not negative.
func CheckInvariants(h *domain.Holding) error {
	if h.Quantity.IsNegative() {
		return domain.NewValidationError("quantity", h.Quantity, "must not be negative")
	}
	if h.Quantity.IsPositive() {
		if !h.AveragePrice.IsPositive() {
			return domain.NewValidationError("average_price", h.AveragePrice, "must be positive while quantity is positive")
		}
		if !h.CurrentPrice.IsPositive() {
			return domain.NewValidationError("current_price", h.CurrentPrice, "must be positive while quantity is positive")
		}
	}
	return nil
}
