// Package etl fetches company fundamentals, derives valuation ratios and
// stores them.
package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"balance-sheets/internal/calc"
	"balance-sheets/internal/checkpoint"
	"balance-sheets/internal/fmp"
	"balance-sheets/internal/ratelimit"
	"balance-sheets/internal/store"
)

// Rate limiter cost of one company, taken up front by Run.
const (
	CurrentCalls        = 6
	HistoryCallsPerYear = 3
)

var ErrDailyLimitReached = errors.New("daily API call limit reached")

// Fetcher is the slice of the FMP client the pipeline uses.
type Fetcher interface {
	FetchCompany(ctx context.Context, ticker string) (fmp.CompanyData, error)
	FetchQuote(ctx context.Context, ticker string) (fmp.Quote, error)
	FetchHistory(ctx context.Context, ticker string, years int, quarters bool) ([]fmp.Snapshot, int, error)
	StockList(ctx context.Context) ([]fmp.Listing, error)
}

type Options struct {
	DailyLimit   int // <= 0 disables the daily budget
	Workers      int
	HistoryYears int // 0 skips history in Run
	Quarters     bool
}

type Pipeline struct {
	store   store.Store
	fetcher Fetcher
	limiter *ratelimit.Limiter
	cp      checkpoint.Store
	opts    Options
	log     *slog.Logger
}

func New(st store.Store, fetcher Fetcher, limiter *ratelimit.Limiter, cp checkpoint.Store, opts Options, log *slog.Logger) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Pipeline{store: st, fetcher: fetcher, limiter: limiter, cp: cp, opts: opts, log: log}
}

// CheckBudget refuses when today's logged calls have reached the daily
// limit or would exceed it after needed more.
func (p *Pipeline) CheckBudget(ctx context.Context, needed int) error {
	if p.opts.DailyLimit <= 0 {
		return nil
	}
	calls, err := p.store.APICallsToday(ctx)
	if err != nil {
		return err
	}
	if calls >= p.opts.DailyLimit || calls+needed > p.opts.DailyLimit {
		p.log.Warn("daily API limit reached", "calls_today", calls, "needed", needed, "limit", p.opts.DailyLimit)
		return fmt.Errorf("%w: %d/%d calls today, %d needed", ErrDailyLimitReached, calls, p.opts.DailyLimit, needed)
	}
	p.log.Debug("API budget", "calls_today", calls, "limit", p.opts.DailyLimit)
	return nil
}

// Result is what ProcessCompany stored.
type Result struct {
	Company  store.Company
	Snapshot store.Snapshot
	Market   store.MarketData
	Metrics  store.Metrics
}

// logFetch records an attempt. It runs after the work, so a cancelled ctx
// must not stop it.
func (p *Pipeline) logFetch(ctx context.Context, ticker string, calls int, err error) {
	entry := store.FetchLog{Ticker: ticker, Success: err == nil, APICallsUsed: calls}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	if logErr := p.store.LogFetch(context.WithoutCancel(ctx), entry); logErr != nil {
		p.log.Error("failed to write fetch log", "ticker", ticker, "err", logErr)
	}
}

// ProcessCompany fetches, computes and stores the current data of ticker.
// Every attempt past the budget check is written to the fetch log.
func (p *Pipeline) ProcessCompany(ctx context.Context, ticker string) (res Result, err error) {
	log := p.log.With("ticker", ticker)
	if err := p.CheckBudget(ctx, 0); err != nil {
		return Result{}, err
	}

	calls := 0
	defer func() {
		p.logFetch(ctx, ticker, calls, err)
		if err != nil {
			log.Error("company processing failed", "err", err)
		}
	}()

	data, err := p.fetcher.FetchCompany(ctx, ticker)
	calls = data.Calls
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", ticker, err)
	}

	res.Company = store.Company{
		Ticker:   data.Profile.Ticker,
		Name:     data.Profile.Name,
		Sector:   data.Profile.Sector,
		Industry: data.Profile.Industry,
		LogoURL:  data.Profile.LogoURL,
	}
	if res.Company.Name == "" {
		res.Company.Name = ticker
	}
	res.Company.ID, err = p.store.UpsertCompany(ctx, res.Company)
	if err != nil {
		return Result{}, err
	}

	res.Snapshot = snapshot(res.Company.ID, data.Snapshot)
	if res.Snapshot.SharesOutstanding.IsZero() {
		res.Snapshot.SharesOutstanding = data.Quote.SharesOutstanding
	}
	res.Snapshot.ID, err = p.store.UpsertSnapshot(ctx, res.Snapshot)
	if err != nil {
		return Result{}, err
	}

	res.Market = store.MarketData{
		CompanyID:  res.Company.ID,
		MarketCap:  data.Quote.MarketCap,
		StockPrice: data.Quote.Price,
	}
	if err = p.store.UpsertMarketData(ctx, res.Market); err != nil {
		return Result{}, err
	}

	m := calc.Calculate(calc.Inputs{
		StockPrice:        res.Market.StockPrice,
		MarketCap:         res.Market.MarketCap,
		NetIncome:         res.Snapshot.NetIncome,
		SharesOutstanding: res.Snapshot.SharesOutstanding,
		Assets:            res.Snapshot.Assets,
		Liabilities:       res.Snapshot.Liabilities,
		Equity:            res.Snapshot.Equity,
		Debt:              res.Snapshot.Debt,
	})
	res.Metrics = store.Metrics{
		CompanyID:       res.Company.ID,
		SnapshotID:      res.Snapshot.ID,
		PE:              m.PE,
		PB:              m.PB,
		DebtToEquity:    m.DebtToEquity,
		CurrentRatio:    m.CurrentRatio,
		ROE:             m.ROE,
		DifficultyScore: m.DifficultyScore,
	}
	if err = p.store.UpsertMetrics(ctx, res.Metrics); err != nil {
		return Result{}, err
	}

	log.Info("company stored",
		"period", res.Snapshot.PeriodEnd,
		"market_cap", res.Market.MarketCap.String(),
		"difficulty", m.DifficultyScore,
		"calls", calls,
	)
	return res, nil
}

func snapshot(companyID int64, s fmp.Snapshot) store.Snapshot {
	return store.Snapshot{
		CompanyID:         companyID,
		PeriodEnd:         s.PeriodEnd,
		ReportType:        s.ReportType,
		Assets:            s.Assets,
		Liabilities:       s.Liabilities,
		Equity:            s.Equity,
		Cash:              s.Cash,
		Debt:              s.Debt,
		Revenue:           s.Revenue,
		NetIncome:         s.NetIncome,
		OperatingCashFlow: s.OperatingCashFlow,
		FreeCashFlow:      s.FreeCashFlow,
		SharesOutstanding: s.SharesOutstanding,
		RawData:           s.Raw,
	}
}

// UpdateMarketData refreshes price and market cap of a stored company with
// a single quote request.
func (p *Pipeline) UpdateMarketData(ctx context.Context, ticker string) (err error) {
	if err := p.CheckBudget(ctx, 0); err != nil {
		return err
	}
	id, err := p.store.CompanyID(ctx, ticker)
	if err != nil {
		return fmt.Errorf("%s: %w", ticker, err)
	}

	defer func() { p.logFetch(ctx, ticker, 1, err) }()

	q, err := p.fetcher.FetchQuote(ctx, ticker)
	if err != nil {
		return fmt.Errorf("quote %s: %w", ticker, err)
	}
	if q.Price.IsZero() && q.MarketCap.IsZero() {
		return fmt.Errorf("quote %s: %w", ticker, fmp.ErrNoData)
	}
	if err = p.store.UpsertMarketData(ctx, store.MarketData{CompanyID: id, MarketCap: q.MarketCap, StockPrice: q.Price}); err != nil {
		return err
	}
	p.log.Info("market data updated", "ticker", ticker, "price", q.Price.String())
	return nil
}

// HistoryCalls is the budget reserved for a history fetch.
func HistoryCalls(years int, quarters bool) int {
	if quarters {
		return years * 5 * HistoryCallsPerYear
	}
	return years * HistoryCallsPerYear
}

// FetchHistory stores up to years annual snapshots of a stored company and
// returns how many were written.
func (p *Pipeline) FetchHistory(ctx context.Context, ticker string, years int) (n int, err error) {
	if err := p.CheckBudget(ctx, HistoryCalls(years, p.opts.Quarters)); err != nil {
		return 0, err
	}
	id, err := p.store.CompanyID(ctx, ticker)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", ticker, err)
	}

	calls := 0
	defer func() { p.logFetch(ctx, ticker, calls, err) }()

	snaps, calls, err := p.fetcher.FetchHistory(ctx, ticker, years, p.opts.Quarters)
	if err != nil {
		return 0, fmt.Errorf("history %s: %w", ticker, err)
	}
	for _, s := range snaps {
		if s.PeriodEnd == "" {
			continue
		}
		if _, err = p.store.UpsertSnapshot(ctx, snapshot(id, s)); err != nil {
			return n, err
		}
		n++
	}
	p.log.Info("history stored", "ticker", ticker, "snapshots", n, "calls", calls)
	return n, nil
}

// Report summarizes Run.
type Report struct {
	Processed int
	Skipped   int
	Failed    []string
	Calls     int64
	Elapsed   time.Duration
}

// Run processes every ticker that is not excluded, stored or checkpointed,
// with Options.Workers workers sharing the rate limiter. It stops early
// when the daily limit is reached or ctx ends.
func (p *Pipeline) Run(ctx context.Context, tickers []string) (Report, error) {
	start := time.Now()
	var report Report

	existing, err := p.store.ExistingTickers(ctx)
	if err != nil {
		return report, fmt.Errorf("existing companies: %w", err)
	}
	done, err := p.cp.Done(ctx, checkpoint.NamespaceCompanies, tickers)
	if err != nil {
		return report, fmt.Errorf("load checkpoint: %w", err)
	}

	var todo []string
	for _, t := range tickers {
		if _, ok := done[t]; ok || existing[t] || Excluded(t, "") {
			report.Skipped++
			continue
		}
		todo = append(todo, t)
	}
	p.log.Info("starting company run", "tickers", len(tickers), "new", len(todo), "workers", p.opts.Workers)

	cost := CurrentCalls
	if p.opts.HistoryYears > 0 {
		cost += HistoryCalls(p.opts.HistoryYears, false)
	}

	var (
		mu        sync.Mutex
		completed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for _, ticker := range todo {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := p.limiter.Wait(gctx, cost); err != nil {
				return err
			}
			err := p.processWithHistory(gctx, ticker)

			mu.Lock()
			defer mu.Unlock()
			completed++
			switch {
			case errors.Is(err, ErrDailyLimitReached):
				return err
			case err != nil:
				report.Failed = append(report.Failed, ticker)
			default:
				report.Processed++
			}
			if completed%50 == 0 {
				elapsed := time.Since(start)
				p.log.Info("progress",
					"completed", completed,
					"total", len(todo),
					"per_minute", float64(completed)/elapsed.Minutes(),
					"calls", p.limiter.Total(),
				)
			}
			return nil
		})
	}

	err = g.Wait()
	report.Calls = p.limiter.Total()
	report.Elapsed = time.Since(start)
	p.log.Info("company run complete",
		"processed", report.Processed,
		"failed", len(report.Failed),
		"skipped", report.Skipped,
		"elapsed", report.Elapsed.String(),
	)
	return report, err
}

func (p *Pipeline) processWithHistory(ctx context.Context, ticker string) error {
	if _, err := p.ProcessCompany(ctx, ticker); err != nil {
		return err
	}
	if p.opts.HistoryYears > 0 {
		if _, err := p.FetchHistory(ctx, ticker, p.opts.HistoryYears); err != nil {
			if errors.Is(err, ErrDailyLimitReached) {
				return err
			}
			p.log.Warn("history fetch failed", "ticker", ticker, "err", err)
		}
	}
	return p.cp.Commit(ctx, checkpoint.NamespaceCompanies, map[string][]byte{ticker: []byte("1")})
}

// USCompanies lists US common stocks from the stock list, without funds
// and non-company securities.
func (p *Pipeline) USCompanies(ctx context.Context) ([]string, error) {
	list, err := p.fetcher.StockList(ctx)
	if err != nil {
		return nil, fmt.Errorf("stock list: %w", err)
	}
	us := make(map[string]bool)
	for _, s := range fmp.FilterUS(list) {
		us[s] = true
	}

	var out []string
	for _, l := range list {
		if !us[l.Symbol] || isFund(l.Symbol, l.Name) || Excluded(l.Symbol, l.Name) {
			continue
		}
		out = append(out, l.Symbol)
		delete(us, l.Symbol)
	}
	p.log.Info("US companies listed", "total", len(list), "companies", len(out))
	return out, nil
}
