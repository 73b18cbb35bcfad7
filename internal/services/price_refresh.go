package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/modules/holdings"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// RefreshReport summarizes one price sweep
type RefreshReport struct {
	Portfolios int `json:"portfolios"`
	Symbols    int `json:"symbols"`
	Updated    int `json:"updated"`
	// Skipped lists symbols whose price could not be fetched, sorted
	Skipped []string `json:"skipped"`
}

// RefreshPrices fetches the current price of every symbol held actively in a non-terminal
// portfolio, then applies the prices and recomputes totals one portfolio at a time.
//
// Symbols the provider cannot price are skipped and their holdings keep their last price.
// Only context cancellation aborts the sweep.
func (s *LedgerService) RefreshPrices(ctx context.Context) (RefreshReport, error) {
	var report RefreshReport

	portfolios, err := s.store.ListPortfolios(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list portfolios: %w", err)
	}

	var targets []string
	symbolSet := make(map[string]struct{})
	for _, p := range portfolios {
		if p.Status.IsTerminal() {
			continue
		}
		hs, err := s.store.ListHoldings(ctx, p.ID)
		if err != nil {
			return report, fmt.Errorf("failed to list holdings of %s: %w", p.ID, err)
		}
		held := false
		for _, h := range hs {
			if holdings.IsActive(h) {
				symbolSet[h.Symbol] = struct{}{}
				held = true
			}
		}
		if held {
			targets = append(targets, p.ID)
		}
	}

	prices, skipped, err := s.fetchPrices(ctx, symbolSet)
	if err != nil {
		return report, err
	}
	report.Symbols = len(symbolSet)
	report.Skipped = skipped

	for _, portfolioID := range targets {
		updated, err := s.applyPrices(ctx, portfolioID, prices)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			s.log.Error().Err(err).Str("portfolio_id", portfolioID).Msg("Failed to apply prices")
			continue
		}
		report.Portfolios++
		report.Updated += updated
	}

	s.log.Info().
		Int("portfolios", report.Portfolios).
		Int("symbols", report.Symbols).
		Int("updated", report.Updated).
		Int("skipped", len(report.Skipped)).
		Msg("Price refresh completed")
	return report, nil
}

// fetchPrices queries the provider for every symbol concurrently, at most
// RefreshConcurrency at a time
func (s *LedgerService) fetchPrices(ctx context.Context, symbols map[string]struct{}) (map[string]decimal.Decimal, []string, error) {
	var (
		mu      sync.Mutex
		prices  = make(map[string]decimal.Decimal, len(symbols))
		skipped []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.RefreshConcurrency)

	for symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			price, err := s.provider.GetCurrentPrice(gctx, symbol)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				if !errors.Is(err, domain.ErrMarketDataUnavailable) {
					s.log.Warn().Err(err).Str("symbol", symbol).Msg("Unexpected market data error")
				}
				mu.Lock()
				skipped = append(skipped, symbol)
				mu.Unlock()
				return nil
			}

			mu.Lock()
			prices[symbol] = price
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	sort.Strings(skipped)
	return prices, skipped, nil
}

// applyPrices updates the active holdings of one portfolio and persists those that changed
func (s *LedgerService) applyPrices(ctx context.Context, portfolioID string, prices map[string]decimal.Decimal) (int, error) {
	unlock := s.locks.lock(portfolioID)
	defer unlock()

	var updated int
	err := s.withRetry(ctx, portfolioID, func() error {
		p, arena, err := s.load(ctx, portfolioID)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			updated = 0
			return nil
		}

		at := s.now()
		for _, h := range arena.Active() {
			price, ok := prices[h.Symbol]
			if !ok {
				continue
			}
			if err := holdings.ApplyPriceUpdate(h, price, at); err != nil {
				s.log.Warn().Err(err).Str("symbol", h.Symbol).Msg("Rejected price update")
			}
		}

		dirty := arena.Dirty()
		s.aggregator.RecalculateTotals(p, arena)

		if err := s.commit(ctx, &domain.ChangeSet{Portfolio: p, Holdings: dirty}); err != nil {
			return err
		}
		updated = len(dirty)
		return nil
	})
	return updated, err
}
