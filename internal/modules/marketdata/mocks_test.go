package marketdata

import (
	"context"

	"github.com/aristath/ledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

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
