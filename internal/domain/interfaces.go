package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MarketDataProvider is the market data contract the ledger consumes.
// Retrieval mechanics belong to the implementation; failures should be reported as
// MarketDataUnavailableError so callers can skip the symbol.
type MarketDataProvider interface {
	// GetCurrentPrice returns the latest traded price for symbol
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// GetCompanyInfo returns the classification used for allocation reports
	GetCompanyInfo(ctx context.Context, symbol string) (CompanyInfo, error)
}

// HoldingStore persists holdings
type HoldingStore interface {
	LoadHolding(ctx context.Context, id string) (*Holding, error)
	SaveHolding(ctx context.Context, h *Holding) error
	// ListHoldings returns every holding of a portfolio, including closed and archived ones
	ListHoldings(ctx context.Context, portfolioID string) ([]*Holding, error)
	// FindHoldingBySymbol returns the portfolio's holding for symbol, whatever its status
	FindHoldingBySymbol(ctx context.Context, portfolioID, symbol string) (*Holding, error)
}

// PortfolioStore persists portfolios.
//
// SavePortfolio compares p.Version with the stored version and returns a
// ConcurrencyConflictError when they differ. On success p.Version is incremented.
type PortfolioStore interface {
	LoadPortfolio(ctx context.Context, id string) (*Portfolio, error)
	SavePortfolio(ctx context.Context, p *Portfolio) error
	ListPortfolios(ctx context.Context) ([]*Portfolio, error)
}

// TransactionLog is the append-only transaction and dividend history
type TransactionLog interface {
	AppendTransaction(ctx context.Context, tx *Transaction) error
	ListTransactions(ctx context.Context, holdingID string) ([]Transaction, error)
	LoadTransaction(ctx context.Context, id string) (*Transaction, error)
	// UpdateTransactionStatus changes the lifecycle status of a logged transaction. No other
	// field of a logged transaction is ever changed.
	UpdateTransactionStatus(ctx context.Context, id string, status TransactionStatus) error
	AppendDividend(ctx context.Context, d *DividendRecord) error
	ListDividends(ctx context.Context, portfolioID string, from, to time.Time) ([]DividendRecord, error)
}

// ChangeSet holds the writes of one unit of work
type ChangeSet struct {
	Portfolio    *Portfolio
	Holdings     []*Holding
	Transactions []*Transaction
	Dividends    []*DividendRecord
}

// UnitOfWork applies a ChangeSet all-or-nothing. The portfolio version is checked as in
// SavePortfolio; on a conflict or any other failure nothing is written.
type UnitOfWork interface {
	Commit(ctx context.Context, cs *ChangeSet) error
}

// Store is the persistence contract the ledger consumes. It is simple get/put; the
// per-portfolio serialization is provided by the caller.
type Store interface {
	HoldingStore
	PortfolioStore
	TransactionLog
	UnitOfWork
}
