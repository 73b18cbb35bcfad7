package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/modules/allocation"
	"github.com/aristath/ledger/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// mockProvider is a testify mock of domain.MarketDataProvider
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *mockProvider) GetCompanyInfo(ctx context.Context, symbol string) (domain.CompanyInfo, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(domain.CompanyInfo), args.Error(1)
}

// conflictingStore fails the next n portfolio saves with a version conflict
type conflictingStore struct {
	*store.MemoryStore
	conflicts int32
}

func (s *conflictingStore) SavePortfolio(ctx context.Context, p *domain.Portfolio) error {
	if atomic.AddInt32(&s.conflicts, -1) >= 0 {
		return &domain.ConcurrencyConflictError{PortfolioID: p.ID, Expected: p.Version, Actual: p.Version + 1}
	}
	return s.MemoryStore.SavePortfolio(ctx, p)
}

func (s *conflictingStore) Commit(ctx context.Context, cs *domain.ChangeSet) error {
	if cs.Portfolio != nil && atomic.AddInt32(&s.conflicts, -1) >= 0 {
		p := cs.Portfolio
		return &domain.ConcurrencyConflictError{PortfolioID: p.ID, Expected: p.Version, Actual: p.Version + 1}
	}
	return s.MemoryStore.Commit(ctx, cs)
}

// failingStore fails every commit after the store-level checks would have passed
type failingStore struct {
	*store.MemoryStore
}

func (s *failingStore) Commit(context.Context, *domain.ChangeSet) error {
	return errors.New("disk I/O error")
}

// staticTargets is an in-memory TargetSource
type staticTargets struct {
	groups  map[string][]string
	targets map[string]decimal.Decimal
}

func (s staticTargets) GetTargets(allocation.TargetType) (map[string]decimal.Decimal, error) {
	return s.targets, nil
}

func (s staticTargets) GetGroups(allocation.TargetType) (map[string][]string, error) {
	return s.groups, nil
}

var testNow = time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)

// sequence returns a goroutine-safe id generator producing prefix-1, prefix-2, ...
func sequence(prefix string) func() string {
	var n int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, atomic.AddInt64(&n, 1))
	}
}
