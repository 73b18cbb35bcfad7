package domain

import "github.com/shopspring/decimal"

const (
	// PricePlaces is the precision of every stored price and percentage
	PricePlaces int32 = 4
	// QuantityPlaces is the precision of stored quantities (fractional shares)
	QuantityPlaces int32 = 8
)

// Hundred is the percentage multiplier
var Hundred = decimal.NewFromInt(100)

// RoundPrice rounds half-up to PricePlaces.
// decimal.Round rounds half away from zero, which is half-up for the positive values the
// ledger stores.
func RoundPrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(PricePlaces)
}

// RoundQuantity rounds half-up to QuantityPlaces
func RoundQuantity(d decimal.Decimal) decimal.Decimal {
	return d.Round(QuantityPlaces)
}

// Percent returns part/whole×100 rounded to PricePlaces, or zero when whole is not positive
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Mul(Hundred).DivRound(whole, PricePlaces)
}

// NullDecimal wraps d as a valid decimal.NullDecimal
func NullDecimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
