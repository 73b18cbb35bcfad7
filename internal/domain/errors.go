package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors matched with errors.Is. The typed errors below unwrap to one of these.
var (
	ErrValidation             = errors.New("validation failed")
	ErrInsufficientQuantity   = errors.New("insufficient quantity")
	ErrNotFound               = errors.New("not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrMarketDataUnavailable  = errors.New("market data unavailable")
	ErrConcurrencyConflict    = errors.New("concurrency conflict")
)

// ValidationError is returned for non-positive quantities, prices, ratios and other
// malformed input. It is always returned before any mutation happens.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s (got %s)", e.Field, e.Message, e.Value)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError for a decimal field
func NewValidationError(field string, value decimal.Decimal, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value.String(), Message: message}
}

// InvalidPriceError is a ValidationError specialised for price updates
type InvalidPriceError struct {
	Symbol string
	Price  decimal.Decimal
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price %s for %s: must be positive", e.Price, e.Symbol)
}

func (e *InvalidPriceError) Unwrap() error { return ErrValidation }

// InsufficientQuantityError is returned when a sell exceeds the open position
type InsufficientQuantityError struct {
	Symbol    string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("insufficient quantity for %s: available %s, requested %s",
		e.Symbol, e.Available, e.Requested)
}

func (e *InsufficientQuantityError) Unwrap() error { return ErrInsufficientQuantity }

// NotFoundError is returned for unknown holding, portfolio or symbol references
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidStateTransitionError is returned for an illegal lifecycle change
type InvalidStateTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition from %s to %s", e.Entity, e.From, e.To)
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// MarketDataUnavailableError wraps a failed price or company-info fetch.
// It is recoverable: bulk refreshes skip the symbol and keep its last price.
type MarketDataUnavailableError struct {
	Symbol string
	Err    error
}

func (e *MarketDataUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("market data unavailable for %s", e.Symbol)
	}
	return fmt.Sprintf("market data unavailable for %s: %v", e.Symbol, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause
func (e *MarketDataUnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMarketDataUnavailable}
	}
	return []error{ErrMarketDataUnavailable, e.Err}
}

// ConcurrencyConflictError is returned when a portfolio was saved by someone else since it
// was loaded. The caller should reload and retry.
type ConcurrencyConflictError struct {
	PortfolioID string
	Expected    int64
	Actual      int64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("portfolio %s version conflict: expected %d, found %d",
		e.PortfolioID, e.Expected, e.Actual)
}

func (e *ConcurrencyConflictError) Unwrap() error { return ErrConcurrencyConflict }
