package testing

import (
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// FixtureTime is the timestamp used by every fixture
var FixtureTime = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

// Dec parses a decimal literal and panics on malformed input
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// NewPortfolioFixture returns an active, empty USD portfolio
func NewPortfolioFixture(id string) *domain.Portfolio {
	return &domain.Portfolio{
		CreatedAt:            FixtureTime,
		ID:                   id,
		Name:                 "Portfolio " + id,
		Currency:             domain.CurrencyUSD,
		Status:               domain.PortfolioActive,
		TotalValue:           decimal.Zero,
		TotalCost:            decimal.Zero,
		TotalGainLoss:        decimal.Zero,
		TotalGainLossPercent: decimal.Zero,
		DayChange:            decimal.Zero,
	}
}

// NewHoldingFixture returns an active holding with derived fields filled in
func NewHoldingFixture(id, portfolioID, symbol, sector, country string, qty, avg, cur string) *domain.Holding {
	h := &domain.Holding{
		PurchaseDate: FixtureTime,
		LastUpdated:  FixtureTime,
		ID:           id,
		PortfolioID:  portfolioID,
		Symbol:       symbol,
		CompanyName:  symbol + " Inc",
		Sector:       sector,
		Country:      country,
		Currency:     domain.CurrencyUSD,
		Type:         domain.AssetTypeEquity,
		Quantity:     Dec(qty),
		AveragePrice: Dec(avg),
		CurrentPrice: Dec(cur),
		Status:       domain.HoldingActive,
	}
	h.CostBasis = h.Quantity.Mul(h.AveragePrice)
	h.CurrentValue = h.Quantity.Mul(h.CurrentPrice)
	h.GainLoss = h.CurrentValue.Sub(h.CostBasis)
	h.GainLossPercent = domain.Percent(h.GainLoss, h.CostBasis)
	return h
}

// NewHoldingFixtures returns a three-sector, two-country holding set for portfolio p1
func NewHoldingFixtures() []*domain.Holding {
	return []*domain.Holding{
		NewHoldingFixture("h-aapl", "p1", "AAPL", "Technology", "United States", "10", "150", "180"),
		NewHoldingFixture("h-msft", "p1", "MSFT", "Technology", "United States", "5", "300", "320"),
		NewHoldingFixture("h-jnj", "p1", "JNJ", "Healthcare", "United States", "8", "160", "155"),
		NewHoldingFixture("h-asml", "p1", "ASML", "Technology", "Netherlands", "2", "600", "700"),
		NewHoldingFixture("h-shel", "p1", "SHEL", "Energy", "United Kingdom", "30", "25", "28"),
	}
}

// NewCompanyInfoFixtures returns classification data keyed by symbol
func NewCompanyInfoFixtures() map[string]domain.CompanyInfo {
	return map[string]domain.CompanyInfo{
		"AAPL": {Name: "Apple Inc", Sector: "Technology", Country: "United States", Market: "NASDAQ", Currency: domain.CurrencyUSD, Type: domain.AssetTypeEquity},
		"MSFT": {Name: "Microsoft Corp", Sector: "Technology", Country: "United States", Market: "NASDAQ", Currency: domain.CurrencyUSD, Type: domain.AssetTypeEquity},
		"JNJ":  {Name: "Johnson & Johnson", Sector: "Healthcare", Country: "United States", Market: "NYSE", Currency: domain.CurrencyUSD, Type: domain.AssetTypeEquity},
		"VWCE": {Name: "Vanguard FTSE All-World", Sector: "Diversified", Country: "Ireland", Market: "XETRA", Currency: domain.CurrencyEUR, Type: domain.AssetTypeETF},
	}
}
