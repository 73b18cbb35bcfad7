// Package domain provides core domain models and types.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
)

// AssetType represents the type of financial product/instrument
type AssetType string

const (
	// AssetTypeEquity represents individual stocks/shares
	AssetTypeEquity AssetType = "EQUITY"
	// AssetTypeETF represents Exchange Traded Funds
	AssetTypeETF AssetType = "ETF"
	// AssetTypeETC represents Exchange Traded Commodities
	AssetTypeETC AssetType = "ETC"
	// AssetTypeMutualFund represents mutual funds
	AssetTypeMutualFund AssetType = "MUTUALFUND"
	// AssetTypeBond represents fixed income instruments
	AssetTypeBond AssetType = "BOND"
	// AssetTypeUnknown represents unknown type
	AssetTypeUnknown AssetType = "UNKNOWN"
)

// UnknownClassification is the bucket used when a holding has no sector, country or type.
const UnknownClassification = "Unknown"

// CompanyInfo is the classification data a MarketDataProvider returns for a symbol.
type CompanyInfo struct {
	Name     string    `json:"name" msgpack:"name"`
	Sector   string    `json:"sector" msgpack:"sector"`
	Country  string    `json:"country" msgpack:"country"`
	Market   string    `json:"market" msgpack:"market"`
	Currency Currency  `json:"currency" msgpack:"currency"`
	Type     AssetType `json:"type" msgpack:"type"`
}

// Holding is a quantity of one symbol held in one portfolio.
//
// CostBasis, CurrentValue, GainLoss and GainLossPercent are derived fields. They are only
// ever written by holdings.Recompute.
type Holding struct {
	PurchaseDate     time.Time  `json:"purchase_date"`
	LastUpdated      time.Time  `json:"last_updated"`
	LastDividendDate *time.Time `json:"last_dividend_date,omitempty"`

	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolio_id"`
	Symbol      string    `json:"symbol"`
	CompanyName string    `json:"company_name"`
	Sector      string    `json:"sector"`
	Country     string    `json:"country"`
	Market      string    `json:"market"`
	Currency    Currency  `json:"currency"`
	Type        AssetType `json:"type"`

	Quantity           decimal.Decimal     `json:"quantity"`
	AveragePrice       decimal.Decimal     `json:"average_price"`
	CurrentPrice       decimal.Decimal     `json:"current_price"`
	PreviousClosePrice decimal.NullDecimal `json:"previous_close_price"`
	TargetPrice        decimal.NullDecimal `json:"target_price"`
	StopLossPrice      decimal.NullDecimal `json:"stop_loss_price"`

	CostBasis        decimal.Decimal `json:"cost_basis"`
	CurrentValue     decimal.Decimal `json:"current_value"`
	GainLoss         decimal.Decimal `json:"gain_loss"`
	GainLossPercent  decimal.Decimal `json:"gain_loss_percent"`
	RealizedGainLoss decimal.Decimal `json:"realized_gain_loss"`

	Status HoldingStatus `json:"status"`

	// Dirty is set when a price update changed the holding since the last portfolio recompute.
	Dirty bool `json:"-"`
}

// Clone returns a copy of the holding that can be mutated without touching the original.
func (h *Holding) Clone() *Holding {
	c := *h
	if h.LastDividendDate != nil {
		d := *h.LastDividendDate
		c.LastDividendDate = &d
	}
	return &c
}

// Portfolio is the aggregate root owning a set of holdings.
//
// The total fields are cached recomputations written by the portfolio aggregator; the holding
// set is always the source of truth.
type Portfolio struct {
	CreatedAt      time.Time `json:"created_at"`
	LastCalculated time.Time `json:"last_calculated"`

	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Currency Currency        `json:"currency"`
	Status   PortfolioStatus `json:"status"`

	TotalValue           decimal.Decimal `json:"total_value"`
	TotalCost            decimal.Decimal `json:"total_cost"`
	TotalGainLoss        decimal.Decimal `json:"total_gain_loss"`
	TotalGainLossPercent decimal.Decimal `json:"total_gain_loss_percent"`
	DayChange            decimal.Decimal `json:"day_change"`

	// Version is the optimistic concurrency stamp; the store increments it on every save.
	Version int64 `json:"version"`
}

// Clone returns a copy of the portfolio.
func (p *Portfolio) Clone() *Portfolio {
	c := *p
	return &c
}

// TransactionType is the kind of event applied to a holding
type TransactionType string

const (
	TransactionBuy      TransactionType = "BUY"
	TransactionSell     TransactionType = "SELL"
	TransactionDividend TransactionType = "DIVIDEND"
	TransactionSplit    TransactionType = "SPLIT"
)

// IsValid reports whether t is one of the known transaction types
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionBuy, TransactionSell, TransactionDividend, TransactionSplit:
		return true
	}
	return false
}

// Transaction is one entry of the append-only transaction log.
type Transaction struct {
	TransactionDate time.Time  `json:"transaction_date"`
	ExDate          *time.Time `json:"ex_date,omitempty"`
	PayDate         *time.Time `json:"pay_date,omitempty"`

	ID          string          `json:"id"`
	PortfolioID string          `json:"portfolio_id"`
	HoldingID   string          `json:"holding_id"`
	Symbol      string          `json:"symbol"`
	Type        TransactionType `json:"type"`

	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Fees        decimal.Decimal `json:"fees"`
	TotalAmount decimal.Decimal `json:"total_amount"`

	// RealizedGainLoss is set on SELL transactions
	RealizedGainLoss decimal.Decimal `json:"realized_gain_loss"`
	// SplitRatio is set on SPLIT transactions
	SplitRatio decimal.Decimal `json:"split_ratio"`

	Status TransactionStatus `json:"status"`
}

// DividendRecord is a dividend booked against a holding, used for period income totals.
type DividendRecord struct {
	ExDate  time.Time `json:"ex_date"`
	PayDate time.Time `json:"pay_date"`

	ID            string `json:"id"`
	PortfolioID   string `json:"portfolio_id"`
	HoldingID     string `json:"holding_id"`
	TransactionID string `json:"transaction_id"`
	Symbol        string `json:"symbol"`

	PerShare decimal.Decimal `json:"per_share"`
	Quantity decimal.Decimal `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
}
