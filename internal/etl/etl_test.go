package etl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"balance-sheets/internal/checkpoint"
	"balance-sheets/internal/fmp"
	"balance-sheets/internal/ratelimit"
	"balance-sheets/internal/store"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func companyData(ticker string) fmp.CompanyData {
	return fmp.CompanyData{
		Profile: fmp.Profile{Ticker: ticker, Name: ticker + " Inc.", Sector: "Technology", Industry: "Software"},
		Snapshot: fmp.Snapshot{
			PeriodEnd:   "2024-09-28",
			ReportType:  "10-K",
			Assets:      d("1000"),
			Liabilities: d("500"),
			Equity:      d("400"),
			Debt:        d("200"),
			NetIncome:   d("100"),
			Raw:         []byte(`{"balance":{}}`),
		},
		Quote: fmp.Quote{Price: d("50"), MarketCap: d("20000000000"), SharesOutstanding: d("10")},
		Calls: fmp.CompanyCalls,
	}
}

type fixture struct {
	store   *store.MockStore
	fetcher *MockFetcher
	cp      *checkpoint.Memory
	p       *Pipeline
}

func newFixture(opts Options) *fixture {
	f := &fixture{store: new(store.MockStore), fetcher: new(MockFetcher), cp: checkpoint.NewMemory()}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.p = New(f.store, f.fetcher, ratelimit.PerMinute(750), f.cp, opts, log)
	return f
}

func TestCheckBudget(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		today   int
		needed  int
		wantErr bool
	}{
		{name: "under", limit: 250, today: 100, needed: 0},
		{name: "reached", limit: 250, today: 250, needed: 0, wantErr: true},
		{name: "fits exactly", limit: 250, today: 220, needed: 30},
		{name: "would exceed", limit: 250, today: 221, needed: 30, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Options{DailyLimit: tt.limit})
			f.store.On("APICallsToday", mock.Anything).Return(tt.today, nil)

			err := f.p.CheckBudget(context.Background(), tt.needed)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDailyLimitReached)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckBudgetDisabled(t *testing.T) {
	f := newFixture(Options{})
	assert.NoError(t, f.p.CheckBudget(context.Background(), 1000))
	f.store.AssertNotCalled(t, "APICallsToday", mock.Anything)
}

func TestProcessCompany(t *testing.T) {
	f := newFixture(Options{DailyLimit: 250})
	ctx := context.Background()

	f.store.On("APICallsToday", mock.Anything).Return(0, nil)
	f.fetcher.On("FetchCompany", mock.Anything, "AAPL").Return(companyData("AAPL"), nil)
	f.store.On("UpsertCompany", mock.Anything, mock.MatchedBy(func(c store.Company) bool {
		return c.Ticker == "AAPL" && c.Name == "AAPL Inc." && c.Sector == "Technology"
	})).Return(int64(7), nil)
	f.store.On("UpsertSnapshot", mock.Anything, mock.MatchedBy(func(s store.Snapshot) bool {
		// shares come from the quote when the statements have none
		return s.CompanyID == 7 && s.PeriodEnd == "2024-09-28" && s.SharesOutstanding.Equal(d("10"))
	})).Return(int64(11), nil)
	f.store.On("UpsertMarketData", mock.Anything, mock.MatchedBy(func(m store.MarketData) bool {
		return m.CompanyID == 7 && m.StockPrice.Equal(d("50"))
	})).Return(nil)
	f.store.On("UpsertMetrics", mock.Anything, mock.MatchedBy(func(m store.Metrics) bool {
		// PE = 50 / (100 / 10) = 5, DE = 200 / 400 = 0.5, ROE = 25%
		return m.CompanyID == 7 && m.SnapshotID == 11 &&
			m.PE.Decimal.Equal(d("5")) && m.DebtToEquity.Decimal.Equal(d("0.5")) &&
			m.ROE.Decimal.Equal(d("25"))
	})).Return(nil)
	f.store.On("LogFetch", mock.Anything, store.FetchLog{Ticker: "AAPL", Success: true, APICallsUsed: fmp.CompanyCalls}).Return(nil)

	res, err := f.p.ProcessCompany(ctx, "AAPL")
	require.NoError(t, err)

	assert.Equal(t, int64(7), res.Company.ID)
	assert.Equal(t, int64(11), res.Snapshot.ID)
	assert.True(t, res.Metrics.PE.Valid)
	f.store.AssertExpectations(t)
	f.fetcher.AssertExpectations(t)
}

func TestProcessCompanyFetchFailureIsLogged(t *testing.T) {
	f := newFixture(Options{DailyLimit: 250})

	partial := fmp.CompanyData{Calls: 2}
	f.store.On("APICallsToday", mock.Anything).Return(0, nil)
	f.fetcher.On("FetchCompany", mock.Anything, "ZZZZ").Return(partial, errors.New("income statement: boom"))
	f.store.On("LogFetch", mock.Anything, mock.MatchedBy(func(l store.FetchLog) bool {
		return l.Ticker == "ZZZZ" && !l.Success && l.APICallsUsed == 2 && l.ErrorMessage != ""
	})).Return(nil).Once()

	_, err := f.p.ProcessCompany(context.Background(), "ZZZZ")
	assert.Error(t, err)
	f.store.AssertExpectations(t)
	f.store.AssertNotCalled(t, "UpsertCompany", mock.Anything, mock.Anything)
}

func TestProcessCompanyStoreFailureIsLogged(t *testing.T) {
	f := newFixture(Options{})

	f.fetcher.On("FetchCompany", mock.Anything, "AAPL").Return(companyData("AAPL"), nil)
	f.store.On("UpsertCompany", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down"))
	f.store.On("LogFetch", mock.Anything, store.FetchLog{Ticker: "AAPL", APICallsUsed: 5, ErrorMessage: "db down"}).Return(nil).Once()

	_, err := f.p.ProcessCompany(context.Background(), "AAPL")
	assert.EqualError(t, err, "db down")
	f.store.AssertExpectations(t)
}

func TestProcessCompanyOverBudget(t *testing.T) {
	f := newFixture(Options{DailyLimit: 250})
	f.store.On("APICallsToday", mock.Anything).Return(250, nil)

	_, err := f.p.ProcessCompany(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrDailyLimitReached)
	f.fetcher.AssertNotCalled(t, "FetchCompany", mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "LogFetch", mock.Anything, mock.Anything)
}

func TestUpdateMarketData(t *testing.T) {
	t.Run("updates stored company", func(t *testing.T) {
		f := newFixture(Options{})
		f.store.On("CompanyID", mock.Anything, "MSFT").Return(int64(3), nil)
		f.fetcher.On("FetchQuote", mock.Anything, "MSFT").Return(fmp.Quote{Price: d("410.5"), MarketCap: d("3000000000000")}, nil)
		f.store.On("UpsertMarketData", mock.Anything, store.MarketData{CompanyID: 3, MarketCap: d("3000000000000"), StockPrice: d("410.5")}).Return(nil)
		f.store.On("LogFetch", mock.Anything, store.FetchLog{Ticker: "MSFT", Success: true, APICallsUsed: 1}).Return(nil)

		require.NoError(t, f.p.UpdateMarketData(context.Background(), "MSFT"))
		f.store.AssertExpectations(t)
	})

	t.Run("unknown company", func(t *testing.T) {
		f := newFixture(Options{})
		f.store.On("CompanyID", mock.Anything, "NOPE").Return(int64(0), store.ErrCompanyNotFound)

		err := f.p.UpdateMarketData(context.Background(), "NOPE")
		assert.ErrorIs(t, err, store.ErrCompanyNotFound)
		f.fetcher.AssertNotCalled(t, "FetchQuote", mock.Anything, mock.Anything)
		f.store.AssertNotCalled(t, "LogFetch", mock.Anything, mock.Anything)
	})

	t.Run("empty quote", func(t *testing.T) {
		f := newFixture(Options{})
		f.store.On("CompanyID", mock.Anything, "MSFT").Return(int64(3), nil)
		f.fetcher.On("FetchQuote", mock.Anything, "MSFT").Return(fmp.Quote{}, nil)
		f.store.On("LogFetch", mock.Anything, mock.MatchedBy(func(l store.FetchLog) bool { return !l.Success })).Return(nil)

		err := f.p.UpdateMarketData(context.Background(), "MSFT")
		assert.ErrorIs(t, err, fmp.ErrNoData)
		f.store.AssertNotCalled(t, "UpsertMarketData", mock.Anything, mock.Anything)
	})
}

func TestHistoryCalls(t *testing.T) {
	assert.Equal(t, 30, HistoryCalls(10, false))
	assert.Equal(t, 150, HistoryCalls(10, true))
}

func TestFetchHistory(t *testing.T) {
	f := newFixture(Options{DailyLimit: 250})

	snaps := []fmp.Snapshot{
		{PeriodEnd: "2024-09-28", ReportType: "10-K"},
		{PeriodEnd: "", ReportType: "10-K"},
		{PeriodEnd: "2023-09-30", ReportType: "10-K"},
	}
	f.store.On("APICallsToday", mock.Anything).Return(200, nil)
	f.store.On("CompanyID", mock.Anything, "AAPL").Return(int64(7), nil)
	f.fetcher.On("FetchHistory", mock.Anything, "AAPL", 3, false).Return(snaps, 3, nil)
	f.store.On("UpsertSnapshot", mock.Anything, mock.MatchedBy(func(s store.Snapshot) bool { return s.CompanyID == 7 })).Return(int64(1), nil).Twice()
	f.store.On("LogFetch", mock.Anything, store.FetchLog{Ticker: "AAPL", Success: true, APICallsUsed: 3}).Return(nil)

	n, err := f.p.FetchHistory(context.Background(), "AAPL", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	f.store.AssertExpectations(t)
}

func TestFetchHistoryOverBudget(t *testing.T) {
	f := newFixture(Options{DailyLimit: 250})
	f.store.On("APICallsToday", mock.Anything).Return(230, nil)

	_, err := f.p.FetchHistory(context.Background(), "AAPL", 10)
	assert.ErrorIs(t, err, ErrDailyLimitReached)
	f.fetcher.AssertNotCalled(t, "FetchHistory", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun(t *testing.T) {
	f := newFixture(Options{Workers: 4})
	ctx := context.Background()

	require.NoError(t, f.cp.Commit(ctx, checkpoint.NamespaceCompanies, map[string][]byte{"GOOG": []byte("1")}))
	f.store.On("ExistingTickers", mock.Anything).Return(map[string]bool{"MSFT": true}, nil)

	for _, tk := range []string{"AAPL", "NVDA"} {
		f.fetcher.On("FetchCompany", mock.Anything, tk).Return(companyData(tk), nil)
	}
	f.fetcher.On("FetchCompany", mock.Anything, "FAIL").Return(fmp.CompanyData{Calls: 1}, errors.New("boom"))
	f.store.On("UpsertCompany", mock.Anything, mock.Anything).Return(int64(1), nil)
	f.store.On("UpsertSnapshot", mock.Anything, mock.Anything).Return(int64(1), nil)
	f.store.On("UpsertMarketData", mock.Anything, mock.Anything).Return(nil)
	f.store.On("UpsertMetrics", mock.Anything, mock.Anything).Return(nil)
	f.store.On("LogFetch", mock.Anything, mock.Anything).Return(nil)

	report, err := f.p.Run(ctx, []string{"AAPL", "MSFT", "GOOG", "BC-PA", "NVDA", "FAIL"})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, []string{"FAIL"}, report.Failed)
	assert.Equal(t, int64(3*CurrentCalls), report.Calls)

	done, err := f.cp.Done(ctx, checkpoint.NamespaceCompanies, []string{"AAPL", "NVDA", "FAIL"})
	require.NoError(t, err)
	keys := make([]string, 0, len(done))
	for k := range done {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"AAPL", "NVDA"}, keys)

	f.fetcher.AssertNotCalled(t, "FetchCompany", mock.Anything, "MSFT")
	f.fetcher.AssertNotCalled(t, "FetchCompany", mock.Anything, "GOOG")
	f.fetcher.AssertNotCalled(t, "FetchCompany", mock.Anything, "BC-PA")
}

func TestRunStopsAtDailyLimit(t *testing.T) {
	f := newFixture(Options{Workers: 1, DailyLimit: 250})

	f.store.On("ExistingTickers", mock.Anything).Return(map[string]bool{}, nil)
	f.store.On("APICallsToday", mock.Anything).Return(250, nil)

	report, err := f.p.Run(context.Background(), []string{"AAPL", "NVDA"})
	assert.ErrorIs(t, err, ErrDailyLimitReached)
	assert.Equal(t, 0, report.Processed)
	f.fetcher.AssertNotCalled(t, "FetchCompany", mock.Anything, mock.Anything)
}

func TestRunWithHistory(t *testing.T) {
	f := newFixture(Options{Workers: 2, HistoryYears: 10})

	f.store.On("ExistingTickers", mock.Anything).Return(map[string]bool{}, nil)
	f.fetcher.On("FetchCompany", mock.Anything, "AAPL").Return(companyData("AAPL"), nil)
	f.store.On("UpsertCompany", mock.Anything, mock.Anything).Return(int64(7), nil)
	f.store.On("UpsertSnapshot", mock.Anything, mock.Anything).Return(int64(1), nil)
	f.store.On("UpsertMarketData", mock.Anything, mock.Anything).Return(nil)
	f.store.On("UpsertMetrics", mock.Anything, mock.Anything).Return(nil)
	f.store.On("LogFetch", mock.Anything, mock.Anything).Return(nil)
	f.store.On("CompanyID", mock.Anything, "AAPL").Return(int64(7), nil)
	f.fetcher.On("FetchHistory", mock.Anything, "AAPL", 10, false).Return(nil, 1, errors.New("history down"))

	report, err := f.p.Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)

	// a failed history fetch does not fail the company
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, int64(CurrentCalls+30), report.Calls)
	f.fetcher.AssertExpectations(t)
}

func TestUSCompanies(t *testing.T) {
	f := newFixture(Options{})
	f.fetcher.On("StockList", mock.Anything).Return([]fmp.Listing{
		{Symbol: "AAPL", Name: "Apple Inc.", Exchange: "NASDAQ", Type: "stock"},
		{Symbol: "SPY", Name: "SPDR S&P 500 ETF Trust", Exchange: "AMEX", Type: "etf"},
		{Symbol: "VOO", Name: "Vanguard 500 Index Fund", Exchange: "AMEX", Type: "stock"},
		{Symbol: "BC-PA", Name: "Brunswick Corporation 6.500% Se", Exchange: "NYSE", Type: "stock"},
		{Symbol: "BMW.DE", Name: "BMW", Exchange: "XETRA", Type: "stock"},
		{Symbol: "MSFT", Name: "Microsoft Corporation", Exchange: "NASDAQ", Type: "stock"},
		{Symbol: "MSFT", Name: "Microsoft Corporation", Exchange: "NASDAQ", Type: "stock"},
	}, nil)

	got, err := f.p.USCompanies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, got)
}
