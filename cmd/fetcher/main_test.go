package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"balance-sheets/internal/checkpoint"
	"balance-sheets/internal/etl"
	"balance-sheets/internal/fmp"
	"balance-sheets/internal/ratelimit"
	"balance-sheets/internal/store"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{
			name: "tickers are normalized",
			args: []string{"-tickers", " aapl,msft,,"},
			want: options{tickers: []string{"AAPL", "MSFT"}},
		},
		{
			name: "all with history",
			args: []string{"-all", "-history", "10", "-quarters"},
			want: options{all: true, history: 10, quarters: true},
		},
		{
			name: "market only",
			args: []string{"-all", "-market-only"},
			want: options{all: true, marketOnly: true},
		},
		{name: "nothing selected", args: nil, wantErr: true},
		{name: "tickers and all", args: []string{"-all", "-tickers", "AAPL"}, wantErr: true},
		{name: "negative history", args: []string{"-tickers", "AAPL", "-history", "-1"}, wantErr: true},
		{name: "market only with history", args: []string{"-all", "-market-only", "-history", "2"}, wantErr: true},
		{name: "unknown flag", args: []string{"-bogus"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args, io.Discard)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newPipeline(st store.Store, f etl.Fetcher, limit int) *etl.Pipeline {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return etl.New(st, f, ratelimit.PerMinute(750), checkpoint.NewMemory(), etl.Options{DailyLimit: limit}, log)
}

func TestRunMarketOnly(t *testing.T) {
	st := new(store.MockStore)
	f := new(etl.MockFetcher)
	st.On("ExistingTickers", mock.Anything).Return(map[string]bool{"MSFT": true, "AAPL": true}, nil).Once()
	st.On("CompanyID", mock.Anything, "AAPL").Return(int64(1), nil).Once()
	st.On("CompanyID", mock.Anything, "MSFT").Return(int64(0), store.ErrCompanyNotFound).Once()
	f.On("FetchQuote", mock.Anything, "AAPL").Return(fmp.Quote{
		Price:     decimal.NewFromInt(230),
		MarketCap: decimal.NewFromInt(3_500_000_000_000),
	}, nil).Once()
	st.On("UpsertMarketData", mock.Anything, mock.MatchedBy(func(m store.MarketData) bool {
		return m.CompanyID == 1 && m.StockPrice.Equal(decimal.NewFromInt(230))
	})).Return(nil).Once()
	st.On("LogFetch", mock.Anything, store.FetchLog{Ticker: "AAPL", Success: true, APICallsUsed: 1}).Return(nil).Once()

	p := newPipeline(st, f, 0)
	err := run(context.Background(), p, st, options{all: true, marketOnly: true}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, err)
	st.AssertExpectations(t)
	f.AssertExpectations(t)
}

func TestRunMarketOnlyStopsAtDailyLimit(t *testing.T) {
	st := new(store.MockStore)
	f := new(etl.MockFetcher)
	st.On("APICallsToday", mock.Anything).Return(250, nil).Once()

	p := newPipeline(st, f, 250)
	err := run(context.Background(), p, st, options{tickers: []string{"AAPL", "MSFT"}, marketOnly: true}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, err)
	st.AssertExpectations(t)
	f.AssertNotCalled(t, "FetchQuote", mock.Anything, mock.Anything)
}

func TestRunTickersReportsFailures(t *testing.T) {
	st := new(store.MockStore)
	f := new(etl.MockFetcher)
	f.On("FetchCompany", mock.Anything, "ZZZZ").Return(fmp.CompanyData{}, fmp.ErrNoData).Once()
	st.On("LogFetch", mock.Anything, mock.MatchedBy(func(l store.FetchLog) bool {
		return l.Ticker == "ZZZZ" && !l.Success
	})).Return(nil).Once()

	p := newPipeline(st, f, 0)
	err := run(context.Background(), p, st, options{tickers: []string{"ZZZZ"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZZZZ")
	st.AssertExpectations(t)
	f.AssertExpectations(t)
}

func TestRunTickersStopsAtDailyLimit(t *testing.T) {
	st := new(store.MockStore)
	f := new(etl.MockFetcher)
	st.On("APICallsToday", mock.Anything).Return(250, nil).Once()

	p := newPipeline(st, f, 250)
	err := run(context.Background(), p, st, options{tickers: []string{"AAPL", "MSFT"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.True(t, errors.Is(err, etl.ErrDailyLimitReached))
	st.AssertExpectations(t)
}
