package transactions

import (
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Event is an incoming BUY, SELL, DIVIDEND or SPLIT to apply against a portfolio.
//
// BUY is addressed by Symbol. SELL, DIVIDEND and SPLIT are addressed by HoldingID and fall
// back to Symbol when no id is given.
type Event struct {
	Date    time.Time
	ExDate  time.Time
	PayDate time.Time

	Type      domain.TransactionType
	HoldingID string
	Symbol    string

	Quantity decimal.Decimal
	Price    decimal.Decimal
	Fees     decimal.Decimal
	// PerShare is the dividend paid per share
	PerShare decimal.Decimal
	// Ratio is the split ratio, 2 for a 2-for-1 split
	Ratio decimal.Decimal

	// Currency is used for holdings created by a BUY when Info carries none
	Currency domain.Currency
	// Info classifies a holding created by a BUY. Nil leaves the holding unclassified.
	Info *domain.CompanyInfo
}

// Result is the outcome of a successfully applied event
type Result struct {
	Holding     *domain.Holding
	Transaction *domain.Transaction
	// RealizedGainLoss is set for SELL events
	RealizedGainLoss decimal.Decimal
	// Dividend is set for DIVIDEND events
	Dividend *domain.DividendRecord
	// Created is true when a BUY opened a new holding
	Created bool
}

// Buy builds a BUY event
func Buy(symbol string, qty, price, fees decimal.Decimal) Event {
	return Event{Type: domain.TransactionBuy, Symbol: symbol, Quantity: qty, Price: price, Fees: fees}
}

// Sell builds a SELL event
func Sell(holdingID string, qty, price, fees decimal.Decimal) Event {
	return Event{Type: domain.TransactionSell, HoldingID: holdingID, Quantity: qty, Price: price, Fees: fees}
}

// Dividend builds a DIVIDEND event
func Dividend(holdingID string, perShare decimal.Decimal, exDate, payDate time.Time) Event {
	return Event{Type: domain.TransactionDividend, HoldingID: holdingID, PerShare: perShare, ExDate: exDate, PayDate: payDate}
}

// Split builds a SPLIT event
func Split(holdingID string, ratio decimal.Decimal) Event {
	return Event{Type: domain.TransactionSplit, HoldingID: holdingID, Ratio: ratio}
}
