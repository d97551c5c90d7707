package store

import (
	"context"

	"github.com/stretchr/testify/mock"

	"balance-sheets/internal/embeddings"
)

// MockStore is a mock implementation of Store using testify/mock.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) UpsertCompany(ctx context.Context, c Company) (int64, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) CompanyID(ctx context.Context, ticker string) (int64, error) {
	args := m.Called(ctx, ticker)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) GetCompany(ctx context.Context, ticker string) (CompanyOverview, error) {
	args := m.Called(ctx, ticker)
	return args.Get(0).(CompanyOverview), args.Error(1)
}

func (m *MockStore) ExistingTickers(ctx context.Context) (map[string]bool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *MockStore) UpsertSnapshot(ctx context.Context, s Snapshot) (int64, error) {
	args := m.Called(ctx, s)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) UpsertMarketData(ctx context.Context, md MarketData) error {
	args := m.Called(ctx, md)
	return args.Error(0)
}

func (m *MockStore) UpsertMetrics(ctx context.Context, met Metrics) error {
	args := m.Called(ctx, met)
	return args.Error(0)
}

func (m *MockStore) LogFetch(ctx context.Context, l FetchLog) error {
	args := m.Called(ctx, l)
	return args.Error(0)
}

func (m *MockStore) APICallsToday(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) SaveChunks(ctx context.Context, chunks []Chunk) error {
	args := m.Called(ctx, chunks)
	return args.Error(0)
}

func (m *MockStore) ListUnembedded(ctx context.Context, ticker, filingDate string) ([]Chunk, error) {
	args := m.Called(ctx, ticker, filingDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Chunk), args.Error(1)
}

func (m *MockStore) SaveEmbeddings(ctx context.Context, embs []Embedding) error {
	args := m.Called(ctx, embs)
	return args.Error(0)
}

func (m *MockStore) Search(ctx context.Context, vector embeddings.Vector, tickers []string, k int) ([]SearchResult, error) {
	args := m.Called(ctx, vector, tickers, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]SearchResult), args.Error(1)
}
