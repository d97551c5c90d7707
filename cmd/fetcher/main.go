package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"balance-sheets/internal/app"
	"balance-sheets/internal/etl"
	"balance-sheets/internal/ratelimit"
	"balance-sheets/internal/store"
)

type options struct {
	tickers    []string
	all        bool
	history    int
	marketOnly bool
	quarters   bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("fetcher", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		opts    options
		tickers string
	)
	fs.StringVar(&tickers, "tickers", "", "comma-separated tickers to fetch")
	fs.BoolVar(&opts.all, "all", false, "fetch every US listed company not stored yet")
	fs.IntVar(&opts.history, "history", 0, "also fetch this many years of statements")
	fs.BoolVar(&opts.marketOnly, "market-only", false, "only refresh price and market cap of stored companies")
	fs.BoolVar(&opts.quarters, "quarters", false, "fetch quarterly instead of annual history")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	for _, t := range strings.Split(tickers, ",") {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			opts.tickers = append(opts.tickers, t)
		}
	}
	switch {
	case opts.all && len(opts.tickers) > 0:
		return options{}, errors.New("-tickers and -all are mutually exclusive")
	case !opts.all && len(opts.tickers) == 0:
		return options{}, errors.New("one of -tickers or -all is required")
	case opts.history < 0:
		return options{}, errors.New("-history must not be negative")
	case opts.marketOnly && opts.history > 0:
		return options{}, errors.New("-market-only cannot be combined with -history")
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	deps, err := app.Build(app.ComponentStore, app.ComponentCheckpoint)
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	client, err := app.NewFMP(deps.Config, deps.Log)
	if err != nil {
		deps.Log.Error("failed to build FMP client", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := etl.New(deps.Store, client, ratelimit.PerMinute(deps.Config.FMPCallsPerMinute), deps.Checkpoint, etl.Options{
		DailyLimit:   deps.Config.FMPDailyLimit,
		Workers:      deps.Config.FetchWorkers,
		HistoryYears: opts.history,
		Quarters:     opts.quarters,
	}, deps.Log)

	if err := run(ctx, p, deps.Store, opts, deps.Log); err != nil {
		deps.Log.Error("fetch failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, p *etl.Pipeline, st store.Store, opts options, log *slog.Logger) error {
	if opts.marketOnly {
		tickers := opts.tickers
		if opts.all {
			existing, err := st.ExistingTickers(ctx)
			if err != nil {
				return err
			}
			tickers = sortedKeys(existing)
		}
		return refreshMarket(ctx, p, tickers, log)
	}

	if opts.all {
		tickers, err := p.USCompanies(ctx)
		if err != nil {
			return err
		}
		report, err := p.Run(ctx, tickers)
		if len(report.Failed) > 0 {
			log.Warn("some companies failed", "tickers", report.Failed)
		}
		if errors.Is(err, etl.ErrDailyLimitReached) {
			log.Warn("stopped at daily API limit; rerun tomorrow to continue", "processed", report.Processed)
			return nil
		}
		return err
	}

	var failed []string
	for _, ticker := range opts.tickers {
		err := fetchOne(ctx, p, ticker, opts.history)
		if errors.Is(err, etl.ErrDailyLimitReached) || ctx.Err() != nil {
			return err
		}
		if err != nil {
			failed = append(failed, ticker)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed tickers: %s", strings.Join(failed, ", "))
	}
	return nil
}

// fetchOne stores current data for ticker whether or not it is stored
// already, then its history when asked.
func fetchOne(ctx context.Context, p *etl.Pipeline, ticker string, years int) error {
	if _, err := p.ProcessCompany(ctx, ticker); err != nil {
		return err
	}
	if years > 0 {
		if _, err := p.FetchHistory(ctx, ticker, years); err != nil {
			return err
		}
	}
	return nil
}

func refreshMarket(ctx context.Context, p *etl.Pipeline, tickers []string, log *slog.Logger) error {
	updated := 0
	for i, ticker := range tickers {
		err := p.UpdateMarketData(ctx, ticker)
		switch {
		case errors.Is(err, etl.ErrDailyLimitReached):
			log.Warn("stopped at daily API limit", "updated", updated, "remaining", len(tickers)-i)
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			log.Warn("market data update failed", "ticker", ticker, "err", err)
		default:
			updated++
		}
	}
	log.Info("market data refreshed", "updated", updated, "total", len(tickers))
	return nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
