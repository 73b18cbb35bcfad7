// Package services provides LedgerService, the entry point that turns transaction events,
// price updates and status changes into persisted holding and portfolio state.
//
// Every mutation of a portfolio runs under that portfolio's lock and ends with a recompute of
// the portfolio totals, so a saved portfolio always agrees with its saved holdings.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/modules/allocation"
	"github.com/aristath/ledger/internal/modules/holdings"
	"github.com/aristath/ledger/internal/modules/lifecycle"
	"github.com/aristath/ledger/internal/modules/portfolio"
	"github.com/aristath/ledger/internal/modules/transactions"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TargetSource provides allocation targets and groups for group allocation reports
type TargetSource interface {
	GetTargets(targetType allocation.TargetType) (map[string]decimal.Decimal, error)
	GetGroups(targetType allocation.TargetType) (map[string][]string, error)
}

// Config tunes LedgerService
type Config struct {
	// ConflictRetries is how many times a unit of work is retried after a version conflict
	ConflictRetries int
	// RefreshConcurrency caps concurrent price fetches during RefreshPrices
	RefreshConcurrency int
	// DefaultCurrency is used by CreatePortfolio when no currency is given
	DefaultCurrency domain.Currency
}

// EntityKind selects the lifecycle TransitionStatus acts on
type EntityKind string

const (
	EntityHolding     EntityKind = "holding"
	EntityPortfolio   EntityKind = "portfolio"
	EntityTransaction EntityKind = "transaction"
)

// EntityRef identifies the entity of a status transition.
// Holdings also need the id of their portfolio.
type EntityRef struct {
	Kind        EntityKind
	ID          string
	PortfolioID string
}

// LedgerService coordinates the transaction processor, aggregator and allocation analyzer
// over a domain.Store
type LedgerService struct {
	store      domain.Store
	provider   domain.MarketDataProvider
	processor  *transactions.Processor
	aggregator *portfolio.Aggregator
	analyzer   *allocation.Analyzer
	targets    TargetSource // Optional - GroupAllocation fails without it
	locks      *portfolioLocks
	cfg        Config
	now        func() time.Time
	newID      func() string
	log        zerolog.Logger
}

// NewLedgerService creates a ledger service
func NewLedgerService(
	store domain.Store,
	provider domain.MarketDataProvider,
	processor *transactions.Processor,
	aggregator *portfolio.Aggregator,
	analyzer *allocation.Analyzer,
	targets TargetSource,
	cfg Config,
	log zerolog.Logger,
) *LedgerService {
	if cfg.ConflictRetries < 0 {
		cfg.ConflictRetries = 0
	}
	if cfg.RefreshConcurrency <= 0 {
		cfg.RefreshConcurrency = 4
	}
	return &LedgerService{
		store:      store,
		provider:   provider,
		processor:  processor,
		aggregator: aggregator,
		analyzer:   analyzer,
		targets:    targets,
		locks:      newPortfolioLocks(),
		cfg:        cfg,
		now:        time.Now,
		newID:      uuid.NewString,
		log:        log.With().Str("service", "ledger").Logger(),
	}
}

// CreatePortfolio opens a new, empty ACTIVE portfolio
func (s *LedgerService) CreatePortfolio(ctx context.Context, name string, currency domain.Currency) (*domain.Portfolio, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &domain.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	code, err := domain.ParseCurrency(string(currency))
	if err != nil {
		return nil, err
	}

	p := &domain.Portfolio{
		CreatedAt:            s.now(),
		ID:                   s.newID(),
		Name:                 name,
		Currency:             code,
		Status:               domain.PortfolioActive,
		TotalValue:           decimal.Zero,
		TotalCost:            decimal.Zero,
		TotalGainLoss:        decimal.Zero,
		TotalGainLossPercent: decimal.Zero,
		DayChange:            decimal.Zero,
	}
	if err := s.store.SavePortfolio(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	s.log.Info().Str("portfolio_id", p.ID).Str("name", p.Name).Msg("Portfolio created")
	return p, nil
}

// ProcessTransaction applies one event to a portfolio and persists the holding, the
// transaction log entry, any dividend record and the recomputed portfolio totals.
//
// A BUY that opens a new holding without classification looks the symbol up with the
// market data provider. A failed lookup leaves the holding unclassified.
func (s *LedgerService) ProcessTransaction(ctx context.Context, portfolioID string, ev transactions.Event) (*domain.Holding, *transactions.Result, error) {
	unlock := s.locks.lock(portfolioID)
	defer unlock()

	var res *transactions.Result
	err := s.withRetry(ctx, portfolioID, func() error {
		p, arena, err := s.load(ctx, portfolioID)
		if err != nil {
			return err
		}
		if !p.Status.AllowsModification() {
			return &domain.ValidationError{
				Field:   "portfolio_status",
				Value:   string(p.Status),
				Message: "portfolio does not accept transactions",
			}
		}

		if ev.Type == domain.TransactionBuy && ev.Info == nil {
			if _, ok := arena.BySymbol(ev.Symbol); !ok {
				ev.Info = s.lookupCompany(ctx, ev.Symbol)
			}
		}

		// a holding opened without a currency is held in the portfolio's
		if ev.Currency == "" {
			ev.Currency = p.Currency
		}

		res, err = s.processor.Apply(arena, portfolioID, ev)
		if err != nil {
			return err
		}
		s.aggregator.RecalculateTotals(p, arena)

		cs := &domain.ChangeSet{
			Portfolio:    p,
			Holdings:     []*domain.Holding{res.Holding},
			Transactions: []*domain.Transaction{res.Transaction},
		}
		if res.Dividend != nil {
			cs.Dividends = []*domain.DividendRecord{res.Dividend}
		}
		return s.commit(ctx, cs)
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info().
		Str("portfolio_id", portfolioID).
		Str("tx_type", string(ev.Type)).
		Str("symbol", res.Holding.Symbol).
		Str("transaction_id", res.Transaction.ID).
		Msg("Transaction processed")
	return res.Holding, res, nil
}

func (s *LedgerService) lookupCompany(ctx context.Context, symbol string) *domain.CompanyInfo {
	if s.provider == nil {
		return nil
	}
	info, err := s.provider.GetCompanyInfo(ctx, holdings.NormalizeSymbol(symbol))
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Company info unavailable, holding left unclassified")
		return nil
	}
	return &info
}

// RecalculatePortfolio recomputes and persists the portfolio totals
func (s *LedgerService) RecalculatePortfolio(ctx context.Context, portfolioID string) (portfolio.Summary, error) {
	unlock := s.locks.lock(portfolioID)
	defer unlock()

	var summary portfolio.Summary
	err := s.withRetry(ctx, portfolioID, func() error {
		p, arena, err := s.load(ctx, portfolioID)
		if err != nil {
			return err
		}
		summary = s.aggregator.RecalculateTotals(p, arena)
		return s.store.SavePortfolio(ctx, p)
	})
	return summary, err
}

// Summary reports the stored totals of a portfolio without recomputing them
func (s *LedgerService) Summary(ctx context.Context, portfolioID string) (portfolio.Summary, error) {
	p, arena, err := s.load(ctx, portfolioID)
	if err != nil {
		return portfolio.Summary{}, err
	}
	return portfolio.Summarize(p, arena), nil
}

// GetAllocation reports sector, country and asset type allocation with diversification
// metrics and concentration alerts
func (s *LedgerService) GetAllocation(ctx context.Context, portfolioID string) (allocation.Report, error) {
	p, arena, err := s.load(ctx, portfolioID)
	if err != nil {
		return allocation.Report{}, err
	}
	return s.analyzer.Analyze(p, arena), nil
}

// GroupAllocation compares the portfolio's grouped allocation of one classification with the
// configured targets
func (s *LedgerService) GroupAllocation(ctx context.Context, portfolioID string, targetType allocation.TargetType) ([]allocation.GroupAllocation, error) {
	if s.targets == nil {
		return nil, errors.New("allocation targets are not configured")
	}
	p, arena, err := s.load(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	groups, err := s.targets.GetGroups(targetType)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocation groups: %w", err)
	}
	targets, err := s.targets.GetTargets(targetType)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocation targets: %w", err)
	}

	slices := allocation.BreakdownBy(p, arena, targetType)
	return allocation.CalculateGroupAllocation(slices, groups, targets, p.TotalValue), nil
}

// TotalDividends sums the dividends of a portfolio paid within the period
func (s *LedgerService) TotalDividends(ctx context.Context, portfolioID string, period portfolio.Period) (decimal.Decimal, error) {
	period = period.Truncate()
	records, err := s.store.ListDividends(ctx, portfolioID, period.From, period.To)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list dividends: %w", err)
	}
	return portfolio.TotalDividends(records, period), nil
}

// TransitionStatus moves a holding, portfolio or transaction to a new status.
// Holding transitions recompute the portfolio totals, since the status decides whether the
// holding counts towards them.
func (s *LedgerService) TransitionStatus(ctx context.Context, ref EntityRef, to string) error {
	switch ref.Kind {
	case EntityHolding:
		return s.transitionHolding(ctx, ref, domain.HoldingStatus(to))
	case EntityPortfolio:
		return s.transitionPortfolio(ctx, ref.ID, domain.PortfolioStatus(to))
	case EntityTransaction:
		return s.transitionTransaction(ctx, ref.ID, domain.TransactionStatus(to))
	default:
		return &domain.ValidationError{Field: "entity", Value: string(ref.Kind), Message: "unknown entity kind"}
	}
}

func (s *LedgerService) transitionHolding(ctx context.Context, ref EntityRef, to domain.HoldingStatus) error {
	unlock := s.locks.lock(ref.PortfolioID)
	defer unlock()

	return s.withRetry(ctx, ref.PortfolioID, func() error {
		p, arena, err := s.load(ctx, ref.PortfolioID)
		if err != nil {
			return err
		}
		existing, ok := arena.Get(ref.ID)
		if !ok {
			return &domain.NotFoundError{Entity: "holding", ID: ref.ID}
		}

		h := existing.Clone()
		if err := holdings.Transition(h, to, s.now()); err != nil {
			return err
		}
		arena.Put(h)
		s.aggregator.RecalculateTotals(p, arena)

		if err := s.commit(ctx, &domain.ChangeSet{Portfolio: p, Holdings: []*domain.Holding{h}}); err != nil {
			return err
		}

		s.log.Info().
			Str("portfolio_id", p.ID).
			Str("symbol", h.Symbol).
			Str("status", string(to)).
			Msg("Holding status changed")
		return nil
	})
}

func (s *LedgerService) transitionPortfolio(ctx context.Context, portfolioID string, to domain.PortfolioStatus) error {
	unlock := s.locks.lock(portfolioID)
	defer unlock()

	return s.withRetry(ctx, portfolioID, func() error {
		p, err := s.store.LoadPortfolio(ctx, portfolioID)
		if err != nil {
			return err
		}
		if err := lifecycle.Validate(p.Status, to); err != nil {
			return err
		}
		p.Status = to
		if err := s.store.SavePortfolio(ctx, p); err != nil {
			return err
		}

		s.log.Info().Str("portfolio_id", p.ID).Str("status", string(to)).Msg("Portfolio status changed")
		return nil
	})
}

func (s *LedgerService) transitionTransaction(ctx context.Context, id string, to domain.TransactionStatus) error {
	tx, err := s.store.LoadTransaction(ctx, id)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(tx.PortfolioID)
	defer unlock()

	// reload under the lock so the check sees the latest status
	tx, err = s.store.LoadTransaction(ctx, id)
	if err != nil {
		return err
	}
	if err := lifecycle.Validate(tx.Status, to); err != nil {
		return err
	}
	return s.store.UpdateTransactionStatus(ctx, id, to)
}

// ArchivePortfolio archives the portfolio and every holding that is still open. Closed
// holdings keep their status. Nothing is written when any holding cannot be archived.
func (s *LedgerService) ArchivePortfolio(ctx context.Context, portfolioID string) error {
	unlock := s.locks.lock(portfolioID)
	defer unlock()

	return s.withRetry(ctx, portfolioID, func() error {
		p, arena, err := s.load(ctx, portfolioID)
		if err != nil {
			return err
		}
		if err := lifecycle.Validate(p.Status, domain.PortfolioArchived); err != nil {
			return err
		}

		at := s.now()
		var archived []*domain.Holding
		for _, existing := range arena.All() {
			if existing.Status.IsTerminal() {
				continue
			}
			h := existing.Clone()
			if err := holdings.Transition(h, domain.HoldingArchived, at); err != nil {
				return fmt.Errorf("cannot archive holding %s: %w", h.Symbol, err)
			}
			archived = append(archived, h)
		}
		for _, h := range archived {
			arena.Put(h)
		}

		p.Status = domain.PortfolioArchived
		s.aggregator.RecalculateTotals(p, arena)

		if err := s.commit(ctx, &domain.ChangeSet{Portfolio: p, Holdings: archived}); err != nil {
			return err
		}

		s.log.Info().
			Str("portfolio_id", p.ID).
			Int("holdings_archived", len(archived)).
			Msg("Portfolio archived")
		return nil
	})
}

// load reads a portfolio and its holdings into an arena
func (s *LedgerService) load(ctx context.Context, portfolioID string) (*domain.Portfolio, *holdings.Arena, error) {
	p, err := s.store.LoadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, nil, err
	}
	hs, err := s.store.ListHoldings(ctx, portfolioID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load holdings: %w", err)
	}
	return p, holdings.NewArena(hs...), nil
}

// withRetry runs fn again after a version conflict, up to the configured number of retries.
// fn must reload everything it writes.
func (s *LedgerService) withRetry(ctx context.Context, portfolioID string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, domain.ErrConcurrencyConflict) || attempt >= s.cfg.ConflictRetries {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.log.Warn().
			Err(err).
			Str("portfolio_id", portfolioID).
			Int("attempt", attempt+1).
			Msg("Version conflict, retrying")
	}
}

// commit writes cs in one store transaction. Version conflicts come back unwrapped for withRetry.
func (s *LedgerService) commit(ctx context.Context, cs *domain.ChangeSet) error {
	if err := s.store.Commit(ctx, cs); err != nil {
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			return err
		}
		return fmt.Errorf("failed to commit portfolio %s: %w", cs.Portfolio.ID, err)
	}
	return nil
}
