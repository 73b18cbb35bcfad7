package domain

// HoldingStatus is the lifecycle state of a holding
type HoldingStatus string

const (
	HoldingActive          HoldingStatus = "ACTIVE"
	HoldingClosed          HoldingStatus = "CLOSED"
	HoldingInactive        HoldingStatus = "INACTIVE"
	HoldingSuspended       HoldingStatus = "SUSPENDED"
	HoldingWatching        HoldingStatus = "WATCHING"
	HoldingArchived        HoldingStatus = "ARCHIVED"
	HoldingPartialClose    HoldingStatus = "PARTIAL_CLOSE"
	HoldingLiquidating     HoldingStatus = "LIQUIDATING"
	HoldingTransferPending HoldingStatus = "TRANSFER_PENDING"
	HoldingOnHold          HoldingStatus = "ON_HOLD"
	HoldingRestricted      HoldingStatus = "RESTRICTED"
	HoldingDelisted        HoldingStatus = "DELISTED"
	HoldingUnderReview     HoldingStatus = "UNDER_REVIEW"
	HoldingCorporateAction HoldingStatus = "CORPORATE_ACTION"
	HoldingError           HoldingStatus = "ERROR"
)

// AllHoldingStatuses lists every holding status in declaration order
var AllHoldingStatuses = []HoldingStatus{
	HoldingActive, HoldingClosed, HoldingInactive, HoldingSuspended, HoldingWatching,
	HoldingArchived, HoldingPartialClose, HoldingLiquidating, HoldingTransferPending,
	HoldingOnHold, HoldingRestricted, HoldingDelisted, HoldingUnderReview,
	HoldingCorporateAction, HoldingError,
}

// IsTerminal reports whether the holding has left the book (CLOSED or ARCHIVED)
func (s HoldingStatus) IsTerminal() bool {
	return s == HoldingClosed || s == HoldingArchived
}

// PortfolioStatus is the lifecycle state of a portfolio
type PortfolioStatus string

const (
	PortfolioActive      PortfolioStatus = "ACTIVE"
	PortfolioInactive    PortfolioStatus = "INACTIVE"
	PortfolioArchived    PortfolioStatus = "ARCHIVED"
	PortfolioSuspended   PortfolioStatus = "SUSPENDED"
	PortfolioClosing     PortfolioStatus = "CLOSING"
	PortfolioClosed      PortfolioStatus = "CLOSED"
	PortfolioPending     PortfolioStatus = "PENDING"
	PortfolioUnderReview PortfolioStatus = "UNDER_REVIEW"
)

// AllPortfolioStatuses lists every portfolio status in declaration order
var AllPortfolioStatuses = []PortfolioStatus{
	PortfolioActive, PortfolioInactive, PortfolioArchived, PortfolioSuspended,
	PortfolioClosing, PortfolioClosed, PortfolioPending, PortfolioUnderReview,
}

// AllowsModification reports whether holdings may be mutated while the portfolio is in this state
func (s PortfolioStatus) AllowsModification() bool {
	return s == PortfolioActive || s == PortfolioInactive || s == PortfolioPending
}

// IsTerminal reports whether the portfolio is CLOSED or ARCHIVED
func (s PortfolioStatus) IsTerminal() bool {
	return s == PortfolioClosed || s == PortfolioArchived
}

// TransactionStatus is the lifecycle state of a transaction
type TransactionStatus string

const (
	TransactionPending         TransactionStatus = "PENDING"
	TransactionValidating      TransactionStatus = "VALIDATING"
	TransactionSubmitted       TransactionStatus = "SUBMITTED"
	TransactionExecuting       TransactionStatus = "EXECUTING"
	TransactionExecuted        TransactionStatus = "EXECUTED"
	TransactionSettling        TransactionStatus = "SETTLING"
	TransactionSettled         TransactionStatus = "SETTLED"
	TransactionCancelled       TransactionStatus = "CANCELLED"
	TransactionFailed          TransactionStatus = "FAILED"
	TransactionRejected        TransactionStatus = "REJECTED"
	TransactionTimeout         TransactionStatus = "TIMEOUT"
	TransactionOnHold          TransactionStatus = "ON_HOLD"
	TransactionPartiallyFilled TransactionStatus = "PARTIALLY_FILLED"
	TransactionReversing       TransactionStatus = "REVERSING"
	TransactionReversed        TransactionStatus = "REVERSED"
)

// AllTransactionStatuses lists every transaction status in declaration order
var AllTransactionStatuses = []TransactionStatus{
	TransactionPending, TransactionValidating, TransactionSubmitted, TransactionExecuting,
	TransactionExecuted, TransactionSettling, TransactionSettled, TransactionCancelled,
	TransactionFailed, TransactionRejected, TransactionTimeout, TransactionOnHold,
	TransactionPartiallyFilled, TransactionReversing, TransactionReversed,
}

// IsTerminal reports whether the transaction finished, successfully or not.
// Terminal transactions can only be reversed.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionSettled, TransactionCancelled, TransactionFailed,
		TransactionRejected, TransactionTimeout:
		return true
	}
	return false
}
