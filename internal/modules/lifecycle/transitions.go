// Package lifecycle validates status transitions for holdings, portfolios and transactions.
//
// Every lifecycle is a static from -> {to...} table. CanTransition is the single lookup
// shared by all three; there is no per-status switch logic anywhere else.
package lifecycle

import (
	"github.com/aristath/ledger/internal/domain"
)

// Status is any of the three lifecycle status types
type Status interface {
	domain.HoldingStatus | domain.PortfolioStatus | domain.TransactionStatus
}

type set[S Status] map[S]struct{}

func setOf[S Status](states ...S) set[S] {
	s := make(set[S], len(states))
	for _, st := range states {
		s[st] = struct{}{}
	}
	return s
}

// holdingTransitions: ACTIVE may move anywhere, CLOSED and ARCHIVED only back to ACTIVE.
var holdingTransitions = map[domain.HoldingStatus]set[domain.HoldingStatus]{
	domain.HoldingActive:   allExcept(domain.AllHoldingStatuses, domain.HoldingActive),
	domain.HoldingClosed:   setOf(domain.HoldingActive),
	domain.HoldingArchived: setOf(domain.HoldingActive),
	domain.HoldingInactive: setOf(
		domain.HoldingActive, domain.HoldingWatching, domain.HoldingClosed, domain.HoldingArchived,
	),
	domain.HoldingSuspended: setOf(
		domain.HoldingActive, domain.HoldingUnderReview, domain.HoldingDelisted,
		domain.HoldingLiquidating, domain.HoldingClosed,
	),
	domain.HoldingWatching: setOf(
		domain.HoldingActive, domain.HoldingInactive, domain.HoldingArchived,
	),
	domain.HoldingPartialClose: setOf(
		domain.HoldingActive, domain.HoldingLiquidating, domain.HoldingClosed,
	),
	domain.HoldingLiquidating: setOf(
		domain.HoldingPartialClose, domain.HoldingClosed, domain.HoldingError,
	),
	domain.HoldingTransferPending: setOf(
		domain.HoldingActive, domain.HoldingClosed, domain.HoldingError,
	),
	domain.HoldingOnHold: setOf(
		domain.HoldingActive, domain.HoldingUnderReview, domain.HoldingClosed,
	),
	domain.HoldingRestricted: setOf(
		domain.HoldingActive, domain.HoldingUnderReview, domain.HoldingLiquidating,
	),
	domain.HoldingDelisted: setOf(
		domain.HoldingLiquidating, domain.HoldingClosed, domain.HoldingArchived,
	),
	domain.HoldingUnderReview: setOf(
		domain.HoldingActive, domain.HoldingSuspended, domain.HoldingRestricted, domain.HoldingClosed,
	),
	domain.HoldingCorporateAction: setOf(
		domain.HoldingActive, domain.HoldingSuspended, domain.HoldingDelisted, domain.HoldingClosed,
	),
	domain.HoldingError: setOf(
		domain.HoldingActive, domain.HoldingUnderReview, domain.HoldingClosed,
	),
}

var portfolioTransitions = map[domain.PortfolioStatus]set[domain.PortfolioStatus]{
	domain.PortfolioActive: setOf(
		domain.PortfolioInactive, domain.PortfolioSuspended, domain.PortfolioClosing,
		domain.PortfolioUnderReview, domain.PortfolioArchived,
	),
	domain.PortfolioInactive: setOf(
		domain.PortfolioActive, domain.PortfolioClosing, domain.PortfolioArchived,
	),
	domain.PortfolioPending: setOf(
		domain.PortfolioActive, domain.PortfolioUnderReview, domain.PortfolioClosed,
	),
	domain.PortfolioSuspended: setOf(
		domain.PortfolioActive, domain.PortfolioUnderReview, domain.PortfolioClosing,
	),
	domain.PortfolioUnderReview: setOf(
		domain.PortfolioActive, domain.PortfolioSuspended, domain.PortfolioClosing,
	),
	domain.PortfolioClosing: setOf(
		domain.PortfolioActive, domain.PortfolioClosed,
	),
	domain.PortfolioClosed:   setOf(domain.PortfolioActive),
	domain.PortfolioArchived: setOf(domain.PortfolioActive),
}

// failed transactions and SETTLED can only be reversed; REVERSED is final.
var transactionTransitions = map[domain.TransactionStatus]set[domain.TransactionStatus]{
	domain.TransactionPending: setOf(
		domain.TransactionValidating, domain.TransactionOnHold,
		domain.TransactionCancelled, domain.TransactionRejected,
	),
	domain.TransactionValidating: setOf(
		domain.TransactionSubmitted, domain.TransactionRejected,
		domain.TransactionFailed, domain.TransactionCancelled,
	),
	domain.TransactionSubmitted: setOf(
		domain.TransactionExecuting, domain.TransactionCancelled, domain.TransactionRejected,
		domain.TransactionTimeout, domain.TransactionFailed,
	),
	domain.TransactionExecuting: setOf(
		domain.TransactionExecuted, domain.TransactionPartiallyFilled,
		domain.TransactionFailed, domain.TransactionTimeout,
	),
	domain.TransactionPartiallyFilled: setOf(
		domain.TransactionExecuting, domain.TransactionExecuted,
		domain.TransactionCancelled, domain.TransactionFailed,
	),
	domain.TransactionExecuted: setOf(
		domain.TransactionSettling, domain.TransactionReversing,
	),
	domain.TransactionSettling: setOf(
		domain.TransactionSettled, domain.TransactionFailed,
	),
	domain.TransactionOnHold: setOf(
		domain.TransactionPending, domain.TransactionValidating, domain.TransactionCancelled,
	),
	domain.TransactionSettled:   setOf(domain.TransactionReversing),
	domain.TransactionCancelled: setOf(domain.TransactionReversing),
	domain.TransactionFailed:    setOf(domain.TransactionReversing),
	domain.TransactionRejected:  setOf(domain.TransactionReversing),
	domain.TransactionTimeout:   setOf(domain.TransactionReversing),
	domain.TransactionReversing: setOf(domain.TransactionReversed, domain.TransactionFailed),
	domain.TransactionReversed:  setOf[domain.TransactionStatus](),
}

// transactionHappyPath maps each status to its canonical workflow successor
var transactionHappyPath = map[domain.TransactionStatus]domain.TransactionStatus{
	domain.TransactionPending:         domain.TransactionValidating,
	domain.TransactionValidating:      domain.TransactionSubmitted,
	domain.TransactionSubmitted:       domain.TransactionExecuting,
	domain.TransactionExecuting:       domain.TransactionExecuted,
	domain.TransactionPartiallyFilled: domain.TransactionExecuting,
	domain.TransactionExecuted:        domain.TransactionSettling,
	domain.TransactionSettling:        domain.TransactionSettled,
	domain.TransactionOnHold:          domain.TransactionPending,
	domain.TransactionReversing:       domain.TransactionReversed,
}

func allExcept[S Status](all []S, except S) set[S] {
	s := make(set[S], len(all))
	for _, st := range all {
		if st != except {
			s[st] = struct{}{}
		}
	}
	return s
}

// successors returns the allowed next states for from, and whether from is a known state
func successors[S Status](from S) (set[S], bool) {
	var (
		next any
		ok   bool
	)
	switch f := any(from).(type) {
	case domain.HoldingStatus:
		next, ok = holdingTransitions[f]
	case domain.PortfolioStatus:
		next, ok = portfolioTransitions[f]
	case domain.TransactionStatus:
		next, ok = transactionTransitions[f]
	}
	if !ok {
		return nil, false
	}
	return next.(set[S]), true
}

// entityName names the lifecycle for error context
func entityName[S Status](s S) string {
	switch any(s).(type) {
	case domain.HoldingStatus:
		return "holding"
	case domain.PortfolioStatus:
		return "portfolio"
	default:
		return "transaction"
	}
}

// CanTransition reports whether moving from -> to is allowed.
// Staying in the same state is not a transition and returns false.
func CanTransition[S Status](from, to S) bool {
	next, ok := successors(from)
	if !ok {
		return false
	}
	_, allowed := next[to]
	return allowed
}

// Validate returns an InvalidStateTransitionError when from -> to is not allowed
func Validate[S Status](from, to S) error {
	if CanTransition(from, to) {
		return nil
	}
	return &domain.InvalidStateTransitionError{
		Entity: entityName(from),
		From:   string(from),
		To:     string(to),
	}
}

// AllowedTransitions returns the successors of from, in declaration order of the lifecycle
func AllowedTransitions[S Status](from S, all []S) []S {
	next, ok := successors(from)
	if !ok {
		return nil
	}
	out := make([]S, 0, len(next))
	for _, s := range all {
		if _, allowed := next[s]; allowed {
			out = append(out, s)
		}
	}
	return out
}

// NextStatus returns the canonical happy-path successor of a transaction status.
// The second return is false for statuses with no workflow successor.
func NextStatus(s domain.TransactionStatus) (domain.TransactionStatus, bool) {
	next, ok := transactionHappyPath[s]
	return next, ok
}

// Advance walks a transaction forward along the happy path until it reaches target.
// Every step is validated against the transition table.
func Advance(from, target domain.TransactionStatus) (domain.TransactionStatus, error) {
	current := from
	for current != target {
		next, ok := NextStatus(current)
		if !ok {
			return current, &domain.InvalidStateTransitionError{
				Entity: "transaction",
				From:   string(current),
				To:     string(target),
			}
		}
		if err := Validate(current, next); err != nil {
			return current, err
		}
		current = next
	}
	return current, nil
}
