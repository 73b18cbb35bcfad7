package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/modules/allocation"
	"github.com/aristath/ledger/internal/modules/portfolio"
	"github.com/aristath/ledger/internal/modules/transactions"
	"github.com/aristath/ledger/internal/store"
	testingpkg "github.com/aristath/ledger/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return testingpkg.Dec(s)
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, dec(expected).Equal(actual), "%s: expected %s, got %s", field, expected, actual)
}

func newService(t *testing.T, st domain.Store, targets TargetSource, cfg Config) (*LedgerService, *mockProvider) {
	t.Helper()

	log := zerolog.Nop()
	provider := &mockProvider{}
	processor := transactions.NewProcessor(log,
		transactions.WithClock(func() time.Time { return testNow }),
		transactions.WithIDGenerator(sequence("id")),
	)
	svc := NewLedgerService(
		st,
		provider,
		processor,
		portfolio.NewAggregator(log),
		allocation.NewAnalyzer(allocation.DefaultLimits(), log),
		targets,
		cfg,
		log,
	)
	svc.now = func() time.Time { return testNow }
	svc.newID = sequence("p")
	return svc, provider
}

// seed stores a portfolio with the given holdings and recomputes its totals
func seed(t *testing.T, svc *LedgerService, st domain.Store, p *domain.Portfolio, hs ...*domain.Holding) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.SavePortfolio(ctx, p))
	for _, h := range hs {
		require.NoError(t, st.SaveHolding(ctx, h))
	}
	_, err := svc.RecalculatePortfolio(ctx, p.ID)
	require.NoError(t, err)
}

func classifiedBuy(symbol, qty, price string) transactions.Event {
	ev := transactions.Buy(symbol, dec(qty), dec(price), decimal.Zero)
	info := testingpkg.NewCompanyInfoFixtures()[symbol]
	ev.Info = &info
	return ev
}

func TestCreatePortfolio(t *testing.T) {
	tests := []struct {
		name     string
		pName    string
		currency domain.Currency
		expected domain.Currency
		errField string
	}{
		{"valid", "Main", "usd", domain.CurrencyUSD, ""},
		{"trimmed name", "  Income ", domain.CurrencyEUR, domain.CurrencyEUR, ""},
		{"empty name", "  ", domain.CurrencyUSD, "", "name"},
		{"unknown currency", "Main", "ZZZ", "", "currency"},
		{"default currency", "Main", "", domain.CurrencyGBP, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			svc, _ := newService(t, st, nil, Config{DefaultCurrency: domain.CurrencyGBP})

			p, err := svc.CreatePortfolio(context.Background(), tt.pName, tt.currency)
			if tt.errField != "" {
				var verr *domain.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, tt.errField, verr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p.Currency)
			assert.Equal(t, domain.PortfolioActive, p.Status)
			assert.Equal(t, int64(1), p.Version)

			stored, err := st.LoadPortfolio(context.Background(), p.ID)
			require.NoError(t, err)
			assert.Equal(t, p.Name, stored.Name)
		})
	}
}

func TestProcessTransaction_BuyClassifiesNewHolding(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc, provider := newService(t, st, nil, Config{})

	p, err := svc.CreatePortfolio(ctx, "Main", domain.CurrencyUSD)
	require.NoError(t, err)

	provider.On("GetCompanyInfo", mock.Anything, "AAPL").
		Return(testingpkg.NewCompanyInfoFixtures()["AAPL"], nil).Once()

	h, res, err := svc.ProcessTransaction(ctx, p.ID, transactions.Buy("aapl", dec("10"), dec("150"), dec("1")))
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "AAPL", h.Symbol)
	assert.Equal(t, "Technology", h.Sector)
	assert.Equal(t, "NASDAQ", h.Market)

	stored, err := st.LoadPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assertDecimal(t, "1500", stored.TotalValue, "total value")
	assertDecimal(t, "1500", stored.TotalCost, "total cost")
	assert.Equal(t, int64(2), stored.Version)

	txs, err := st.ListTransactions(ctx, h.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assertDecimal(t, "1501", txs[0].TotalAmount, "buy total")

	// an existing holding is not looked up again
	_, _, err = svc.ProcessTransaction(ctx, p.ID, transactions.Buy("AAPL", dec("10"), dec("170"), decimal.Zero))
	require.NoError(t, err)

	saved, err := st.LoadHolding(ctx, h.ID)
	require.NoError(t, err)
	assertDecimal(t, "20", saved.Quantity, "quantity")
	assertDecimal(t, "160", saved.AveragePrice, "average price")
	provider.AssertExpectations(t)
}

func TestProcessTransaction_CompanyInfoFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc, provider := newService(t, st, nil, Config{})

	p, err := svc.CreatePortfolio(ctx, "Main", domain.CurrencyUSD)
	require.NoError(t, err)

	provider.On("GetCompanyInfo", mock.Anything, "XYZ").
		Return(domain.CompanyInfo{}, &domain.MarketDataUnavailableError{Symbol: "XYZ", Err: errors.New("no listing")})

	h, _, err := svc.ProcessTransaction(ctx, p.ID, transactions.Buy("XYZ", dec("3"), dec("10"), decimal.Zero))
	require.NoError(t, err)
	assert.Equal(t, domain.AssetTypeUnknown, h.Type)
	assert.Empty(t, h.Sector)
	assert.Equal(t, domain.CurrencyUSD, h.Currency, "falls back to the portfolio currency")
}

func TestProcessTransaction_OversellLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc, _ := newService(t, st, nil, Config{})

	p, err := svc.CreatePortfolio(ctx, "Main", domain.CurrencyUSD)
	require.NoError(t, err)
	h, _, err := svc.ProcessTransaction(ctx, p.ID, classifiedBuy("AAPL", "10", "150"))
	require.NoError(t, err)

	_, _, err = svc.ProcessTransaction(ctx, p.ID, transactions.Sell(h.ID, dec("11"), dec("160"), decimal.Zero))
	var insufficient *domain.InsufficientQuantityError
	require.True(t, errors.As(err, &insufficient))
	assertDecimal(t, "10", insufficient.Available, "available")

	saved, err := st.LoadHolding(ctx, h.ID)
	require.NoError(t, err)
	assertDecimal(t, "10", saved.Quantity, "quantity")

	stored, err := st.LoadPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version, "rejected event must not save the portfolio")

	txs, err := st.ListTransactions(ctx, h.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestProcessTransaction_FailedCommitWritesNothing(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	svc, _ := newService(t, &failingStore{MemoryStore: mem}, nil, Config{ConflictRetries: 2})

	p, err := svc.CreatePortfolio(ctx, "Main", domain.CurrencyUSD)
	require.NoError(t, err)

	_, _, err = svc.ProcessTransaction(ctx, p.ID, classifiedBuy("AAPL", "10", "150"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrConcurrencyConflict))

	stored, err := mem.LoadPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.True(t, stored.TotalValue.IsZero())

	hs, err := mem.ListHoldings(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, hs)
}

func TestProcessTransaction_SellRealizesAndCloses(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc, _ := newService(t, st, nil, Config{})

	p, err := svc.CreatePortfolio(ctx, "Main", domain.CurrencyUSD)
	require.NoError(t, err)
	h, _, err := svc.ProcessTransaction(ctx, p.ID, classifiedBuy("MSFT", "5", "300"))
	require.NoError(t, err)

	sold, res, err := svc.ProcessTransaction(ctx, p.ID, transactions.Sell(h.ID, dec("5"), dec("320"), dec("2")))
	require.NoError(t, err)
	assertDecimal(t, "100", res.RealizedGainLoss, "realized")
	assert.Equal(t, domain.HoldingClosed, sold.Status)

	summary, err := svc.Summary(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, summary.TotalValue.IsZero())
	assertDecimal(t, "100", summary.RealizedGainLoss, "summary realized")
	assert.Equal(t, 0, summary.ActiveHoldings)
	assert.Equal(t, 1, summary.TotalHoldings)
}

func TestProcessTransaction_DividendsFeedPeriodTotals(t *testing.T) {
	stores := map[string]func(t *testing.T) domain.Store{
		"memory": func(*testing.T) domain.Store { return store.NewMemoryStore() },
		"sqlite": func(t *testing.T) domain.Store {
			return store.NewSQLiteStore(testingpkg.NewMemoryDB(t, "ledger"), zerolog.Nop())
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc, _ := newService(t, newStore(t), nil, Config{})

			p, err := svc.CreatePortfolio(ctx, "Main", domain.CurrencyUSD)
			require.NoError(t, err)
			h, _, err := svc.ProcessTransaction(ctx, p.ID, classifiedBuy("JNJ", "8", "160"))
			require.NoError(t, err)

			may := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
			aug := time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)
			for _, pay := range []time.Time{may, aug} {
				_, res, err := svc.ProcessTransaction(ctx, p.ID, transactions.Dividend(h.ID, dec("1.19"), pay.AddDate(0, 0, -7), pay))
				require.NoError(t, err)
				require.NotNil(t, res.Dividend)
			}

			tests := []struct {
				name     string
				period   portfolio.Period
				expected string
			}{
				{"all", portfolio.Period{}, "19.04"},
				{"second quarter", portfolio.Period{From: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)}, "9.52"},
				{"inclusive end", portfolio.Period{To: may}, "9.52"},
				{"sub-second from", portfolio.Period{From: may.Add(250 * time.Millisecond)}, "19.04"},
				{"nothing paid", portfolio.Period{From: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}, "0"},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					total, err := svc.TotalDividends(ctx, p.ID, tt.period)
					require.NoError(t, err)
					assertDecimal(t, tt.expected, total, "dividends")
				})
			}
		})
	}
}

func TestProcessTransaction_RejectedWhenPortfolioDoesNotAllowModification(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc, _ := newService(t, st, nil, Config{})

	p, err := svc.CreatePortfolio(ctx, "Main", domain.CurrencyUSD)
	require.NoError(t, err)
	require.NoError(t, svc.TransitionStatus(ctx, EntityRef{Kind: EntityPortfolio, ID: p.ID}, string(domain.PortfolioSuspended)))

	_, _, err = svc.ProcessTransaction(ctx, p.ID, classifiedBuy("AAPL", "1", "100"))
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "portfolio_status", verr.Field)
}

func TestProcessTransaction_UnknownPortfolio(t *testing.T) {
	svc, _ := newService(t, store.NewMemoryStore(), nil, Config{})

	_, _, err := svc.ProcessTransaction(context.Background(), "missing", classifiedBuy("AAPL", "1", "100"))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestProcessTransaction_RetriesVersionConflicts(t *testing.T) {
	tests := []struct {
		name      string
		retries   int
		conflicts int32
		wantErr   bool
	}{
		{"one conflict, two retries", 2, 1, false},
		{"retries disabled", 0, 1, true},
		{"conflicts exceed retries", 1, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := &conflictingStore{MemoryStore: store.NewMemoryStore()}
			svc, _ := newService(t, st, nil, Config{ConflictRetries: tt.retries})

			p, err := svc.CreatePortfolio(ctx, "Main", domain.CurrencyUSD)
			require.NoError(t, err)
			atomic.StoreInt32(&st.conflicts, tt.conflicts)

			_, _, err = svc.ProcessTransaction(ctx, p.ID, classifiedBuy("AAPL", "10", "150"))

			hs, listErr := st.ListHoldings(ctx, p.ID)
			require.NoError(t, listErr)
			if tt.wantErr {
				assert.True(t, errors.Is(err, domain.ErrConcurrencyConflict))
				assert.Empty(t, hs, "nothing is written after a lost conflict")
				return
			}
			require.NoError(t, err)
			require.Len(t, hs, 1)
			txs, err := st.ListTransactions(ctx, hs[0].ID)
			require.NoError(t, err)
			assert.Len(t, txs, 1, "the retried attempt is logged once")
		})
	}
}

func TestProcessTransaction_ConcurrentBuysAreSerialized(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc, _ := newService(t, st, nil, Config{})

	p, err := svc.CreatePortfolio(ctx, "Main", domain.CurrencyUSD)
	require.NoError(t, err)

	const buyers = 20
	var wg sync.WaitGroup
	errs := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.ProcessTransaction(ctx, p.ID, classifiedBuy("AAPL", "1", "100"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	hs, err := st.ListHoldings(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assertDecimal(t, "20", hs[0].Quantity, "quantity")

	stored, err := st.LoadPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1+buyers), stored.Version)
	assertDecimal(t, "2000", stored.TotalValue, "total value")
}

func TestTransitionStatus_Holding(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc, _ := newService(t, st, nil, Config{})
	fixtures := testingpkg.NewHoldingFixtures()
	seed(t, svc, st, testingpkg.NewPortfolioFixture("p1"), fixtures[0], fixtures[1])

	ref := EntityRef{Kind: EntityHolding, ID: "h-msft", PortfolioID: "p1"}
	require.NoError(t, svc.TransitionStatus(ctx, ref, string(domain.HoldingSuspended)))

	stored, err := st.LoadPortfolio(ctx, "p1")
	require.NoError(t, err)
	assertDecimal(t, "1800", stored.TotalValue, "suspended holding leaves the totals")

	err = svc.TransitionStatus(ctx, ref, string(domain.HoldingWatching))
	var invalid *domain.InvalidStateTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, string(domain.HoldingSuspended), invalid.From)

	err = svc.TransitionStatus(ctx, EntityRef{Kind: EntityHolding, ID: "nope", PortfolioID: "p1"}, string(domain.HoldingClosed))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestTransitionStatus_Transaction(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc, _ := newService(t, st, nil, Config{})

	p, err := svc.CreatePortfolio(ctx, "Main", domain.CurrencyUSD)
	require.NoError(t, err)
	_, res, err := svc.ProcessTransaction(ctx, p.ID, classifiedBuy("AAPL", "1", "100"))
	require.NoError(t, err)
	ref := EntityRef{Kind: EntityTransaction, ID: res.Transaction.ID}

	require.NoError(t, svc.TransitionStatus(ctx, ref, string(domain.TransactionSettling)))
	err = svc.TransitionStatus(ctx, ref, string(domain.TransactionExecuted))
	assert.True(t, errors.Is(err, domain.ErrInvalidStateTransition))

	tx, err := st.LoadTransaction(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionSettling, tx.Status)
}

func TestTransitionStatus_UnknownKind(t *testing.T) {
	svc, _ := newService(t, store.NewMemoryStore(), nil, Config{})

	err := svc.TransitionStatus(context.Background(), EntityRef{Kind: "order", ID: "x"}, "DONE")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestArchivePortfolio_Cascades(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc, _ := newService(t, st, nil, Config{})

	closed := testingpkg.NewHoldingFixture("h-old", "p1", "OLD", "Utilities", "France", "0", "10", "10")
	closed.Status = domain.HoldingClosed
	seed(t, svc, st, testingpkg.NewPortfolioFixture("p1"), testingpkg.NewHoldingFixtures()[0], closed)

	require.NoError(t, svc.ArchivePortfolio(ctx, "p1"))

	stored, err := st.LoadPortfolio(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PortfolioArchived, stored.Status)
	assert.True(t, stored.TotalValue.IsZero())

	aapl, err := st.LoadHolding(ctx, "h-aapl")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldingArchived, aapl.Status)
	old, err := st.LoadHolding(ctx, "h-old")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldingClosed, old.Status)

	_, _, err = svc.ProcessTransaction(ctx, "p1", classifiedBuy("AAPL", "1", "100"))
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestArchivePortfolio_BlockedHoldingWritesNothing(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc, _ := newService(t, st, nil, Config{})

	fixtures := testingpkg.NewHoldingFixtures()
	suspended := fixtures[1]
	suspended.Status = domain.HoldingSuspended
	seed(t, svc, st, testingpkg.NewPortfolioFixture("p1"), fixtures[0], suspended)

	err := svc.ArchivePortfolio(ctx, "p1")
	assert.True(t, errors.Is(err, domain.ErrInvalidStateTransition))

	stored, err := st.LoadPortfolio(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PortfolioActive, stored.Status)
	aapl, err := st.LoadHolding(ctx, "h-aapl")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldingActive, aapl.Status)
}

func TestGetAllocation(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc, _ := newService(t, st, nil, Config{})
	seed(t, svc, st, testingpkg.NewPortfolioFixture("p1"), testingpkg.NewHoldingFixtures()...)

	report, err := svc.GetAllocation(ctx, "p1")
	require.NoError(t, err)
	assertDecimal(t, "69.7674", report.Sectors["Technology"], "technology")
	assertDecimal(t, "67.4419", report.Countries["United States"], "united states")
	assertDecimal(t, "60", report.DiversificationScore, "score")
	assert.False(t, report.Diversified)
	assert.NotEmpty(t, report.Alerts)
}

func TestGroupAllocation(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	targets := staticTargets{
		groups: map[string][]string{
			"Tech":      {"Technology"},
			"Defensive": {"Healthcare", "Energy"},
		},
		targets: map[string]decimal.Decimal{
			"Tech":      dec("50"),
			"Defensive": dec("50"),
		},
	}
	svc, _ := newService(t, st, targets, Config{})
	seed(t, svc, st, testingpkg.NewPortfolioFixture("p1"), testingpkg.NewHoldingFixtures()...)

	groups, err := svc.GroupAllocation(ctx, "p1", allocation.TargetSector)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "Defensive", groups[0].Name)
	assertDecimal(t, "30.2326", groups[0].CurrentPct, "defensive")
	assert.Equal(t, "Tech", groups[1].Name)
	assertDecimal(t, "69.7674", groups[1].CurrentPct, "tech")
	assertDecimal(t, "19.7674", groups[1].Deviation, "tech deviation")
}

func TestGroupAllocation_WithoutTargets(t *testing.T) {
	svc, _ := newService(t, store.NewMemoryStore(), nil, Config{})

	_, err := svc.GroupAllocation(context.Background(), "p1", allocation.TargetSector)
	assert.Error(t, err)
}
