package etl

import (
	"context"

	"github.com/stretchr/testify/mock"

	"balance-sheets/internal/fmp"
)

// MockFetcher is a mock implementation of Fetcher using testify/mock.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchCompany(ctx context.Context, ticker string) (fmp.CompanyData, error) {
	args := m.Called(ctx, ticker)
	return args.Get(0).(fmp.CompanyData), args.Error(1)
}

func (m *MockFetcher) FetchQuote(ctx context.Context, ticker string) (fmp.Quote, error) {
	args := m.Called(ctx, ticker)
	return args.Get(0).(fmp.Quote), args.Error(1)
}

func (m *MockFetcher) FetchHistory(ctx context.Context, ticker string, years int, quarters bool) ([]fmp.Snapshot, int, error) {
	args := m.Called(ctx, ticker, years, quarters)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]fmp.Snapshot), args.Int(1), args.Error(2)
}

func (m *MockFetcher) StockList(ctx context.Context) ([]fmp.Listing, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fmp.Listing), args.Error(1)
}
