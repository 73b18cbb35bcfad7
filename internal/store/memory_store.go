package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aristath/ledger/internal/domain"
)

// Compile-time check that MemoryStore implements domain.Store
var _ domain.Store = (*MemoryStore)(nil)

// MemoryStore is an in-process domain.Store. Values are copied on the way in and out so
// callers never share state with the store.
type MemoryStore struct {
	mu           sync.RWMutex
	portfolios   map[string]*domain.Portfolio
	holdings     map[string]*domain.Holding
	transactions []domain.Transaction
	dividends    []domain.DividendRecord
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		portfolios: make(map[string]*domain.Portfolio),
		holdings:   make(map[string]*domain.Holding),
	}
}

// LoadPortfolio returns a copy of the stored portfolio
func (s *MemoryStore) LoadPortfolio(_ context.Context, id string) (*domain.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.portfolios[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "portfolio", ID: id}
	}
	return p.Clone(), nil
}

// ListPortfolios returns copies of every portfolio ordered by creation time
func (s *MemoryStore) ListPortfolios(_ context.Context) ([]*domain.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Portfolio, 0, len(s.portfolios))
	for _, p := range s.portfolios {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SavePortfolio stores the portfolio when its version matches, then increments p.Version
func (s *MemoryStore) SavePortfolio(_ context.Context, p *domain.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkVersion(p); err != nil {
		return err
	}
	p.Version++
	s.portfolios[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) checkVersion(p *domain.Portfolio) error {
	stored, ok := s.portfolios[p.ID]
	switch {
	case !ok && p.Version != 0:
		return &domain.NotFoundError{Entity: "portfolio", ID: p.ID}
	case ok && stored.Version != p.Version:
		return &domain.ConcurrencyConflictError{PortfolioID: p.ID, Expected: p.Version, Actual: stored.Version}
	}
	return nil
}

// Commit applies cs under one lock after every check has passed
func (s *MemoryStore) Commit(_ context.Context, cs *domain.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cs.Portfolio != nil {
		if err := s.checkVersion(cs.Portfolio); err != nil {
			return err
		}
	}
	for _, tx := range cs.Transactions {
		if s.hasTransaction(tx.ID) {
			return fmt.Errorf("failed to append transaction %s: already logged", tx.ID)
		}
	}
	for _, d := range cs.Dividends {
		if s.hasDividend(d.ID) {
			return fmt.Errorf("failed to append dividend %s: already recorded", d.ID)
		}
	}

	if p := cs.Portfolio; p != nil {
		p.Version++
		s.portfolios[p.ID] = p.Clone()
	}
	for _, h := range cs.Holdings {
		c := h.Clone()
		c.Dirty = false
		s.holdings[h.ID] = c
	}
	for _, tx := range cs.Transactions {
		s.transactions = append(s.transactions, *tx)
	}
	for _, d := range cs.Dividends {
		s.dividends = append(s.dividends, *d)
	}
	return nil
}

func (s *MemoryStore) hasTransaction(id string) bool {
	for _, tx := range s.transactions {
		if tx.ID == id {
			return true
		}
	}
	return false
}

func (s *MemoryStore) hasDividend(id string) bool {
	for _, d := range s.dividends {
		if d.ID == id {
			return true
		}
	}
	return false
}

// LoadHolding returns a copy of the stored holding
func (s *MemoryStore) LoadHolding(_ context.Context, id string) (*domain.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.holdings[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "holding", ID: id}
	}
	return h.Clone(), nil
}

// ListHoldings returns copies of a portfolio's holdings ordered by symbol
func (s *MemoryStore) ListHoldings(_ context.Context, portfolioID string) ([]*domain.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Holding
	for _, h := range s.holdings {
		if h.PortfolioID == portfolioID {
			out = append(out, h.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

// FindHoldingBySymbol returns a copy of the portfolio's holding for symbol, whatever its status
func (s *MemoryStore) FindHoldingBySymbol(_ context.Context, portfolioID, symbol string) (*domain.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, h := range s.holdings {
		if h.PortfolioID == portfolioID && h.Symbol == symbol {
			return h.Clone(), nil
		}
	}
	return nil, &domain.NotFoundError{Entity: "holding", ID: portfolioID + "/" + symbol}
}

// SaveHolding stores a copy of the holding
func (s *MemoryStore) SaveHolding(_ context.Context, h *domain.Holding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := h.Clone()
	c.Dirty = false
	s.holdings[h.ID] = c
	return nil
}

// AppendTransaction adds a transaction to the log
func (s *MemoryStore) AppendTransaction(_ context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasTransaction(tx.ID) {
		return fmt.Errorf("failed to append transaction %s: already logged", tx.ID)
	}
	s.transactions = append(s.transactions, *tx)
	return nil
}

// ListTransactions returns a holding's transactions in the order they happened
func (s *MemoryStore) ListTransactions(_ context.Context, holdingID string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Transaction
	for _, tx := range s.transactions {
		if tx.HoldingID == holdingID {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TransactionDate.Before(out[j].TransactionDate)
	})
	return out, nil
}

// LoadTransaction returns a copy of one logged transaction
func (s *MemoryStore) LoadTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.transactions {
		if tx.ID == id {
			c := tx
			return &c, nil
		}
	}
	return nil, &domain.NotFoundError{Entity: "transaction", ID: id}
}

// UpdateTransactionStatus sets the status of a logged transaction
func (s *MemoryStore) UpdateTransactionStatus(_ context.Context, id string, status domain.TransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.transactions {
		if s.transactions[i].ID == id {
			s.transactions[i].Status = status
			return nil
		}
	}
	return &domain.NotFoundError{Entity: "transaction", ID: id}
}

// AppendDividend records a dividend payment
func (s *MemoryStore) AppendDividend(_ context.Context, d *domain.DividendRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasDividend(d.ID) {
		return fmt.Errorf("failed to append dividend %s: already recorded", d.ID)
	}
	s.dividends = append(s.dividends, *d)
	return nil
}

// ListDividends returns a portfolio's dividends paid between from and to inclusive
func (s *MemoryStore) ListDividends(_ context.Context, portfolioID string, from, to time.Time) ([]domain.DividendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// whole seconds, as the SQLite store keeps them
	from, to = from.Truncate(time.Second), to.Truncate(time.Second)

	var out []domain.DividendRecord
	for _, d := range s.dividends {
		if d.PortfolioID != portfolioID {
			continue
		}
		pay := d.PayDate.Truncate(time.Second)
		if !from.IsZero() && pay.Before(from) {
			continue
		}
		if !to.IsZero() && pay.After(to) {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PayDate.Before(out[j].PayDate)
	})
	return out, nil
}
