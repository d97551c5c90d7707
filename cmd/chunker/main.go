package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"balance-sheets/internal/app"
	"balance-sheets/internal/edgar"
	"balance-sheets/internal/filing"
	"balance-sheets/internal/httputil"
	"balance-sheets/internal/interchange"
	"balance-sheets/internal/queue"
	"balance-sheets/internal/store"
)

// filingSource downloads filings that were not uploaded.
type filingSource interface {
	LookupCIK(ctx context.Context, ticker string) (string, error)
	FetchFiling(ctx context.Context, ref edgar.FilingRef) (filing.Filing, error)
	Latest10K(ctx context.Context, ticker string) (filing.Filing, error)
}

type worker struct {
	deps      app.Deps
	source    filingSource
	processor *filing.Processor
}

func main() {
	deps, err := app.Build(app.ComponentStore, app.ComponentQueue, app.ComponentCache)
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	processor, err := app.NewProcessor(deps.Config, deps.Log)
	if err != nil {
		deps.Log.Error("failed to build processor", "err", err)
		os.Exit(1)
	}
	source, err := app.NewEDGAR(deps.Config, deps.Log)
	if err != nil {
		deps.Log.Error("failed to build EDGAR client", "err", err)
		os.Exit(1)
	}
	w := &worker{deps: deps, source: source, processor: processor}
	deps.Log.Info("chunker worker starting")

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeChunk, func(ctx context.Context, task queue.Task) error {
			var payload queue.ChunkPayload
			if err := task.Decode(&payload); err != nil {
				return err
			}
			return w.handleChunk(ctx, payload)
		})
	})

	g.Go(func() error {
		return httputil.ServeHealth(ctx, deps, "chunker")
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("chunker service stopped", "err", err)
	}
}

func (w *worker) handleChunk(ctx context.Context, payload queue.ChunkPayload) error {
	log := w.deps.Log.With("ticker", payload.Ticker, "accession", payload.Accession)

	f, err := w.load(ctx, payload)
	if err != nil {
		return err
	}

	records, sum, err := w.processor.Process(ctx, f)
	if errors.Is(err, filing.ErrNoSections) {
		log.Warn("skipping unprocessable filing", "filing_date", f.FilingDate, "err", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("process %s %s: %w", f.Ticker, f.FilingDate, err)
	}

	chunks, err := store.ChunksFromRecords(records, f.Accession)
	if err != nil {
		return err
	}
	if err := w.deps.Store.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	log.Info("stored chunks", "filing_date", f.FilingDate, "sections", sum.TotalSections, "chunks", sum.TotalChunks)

	if err := w.writeParquet(f, records); err != nil {
		log.Warn("parquet export failed", "err", err)
	}
	if err := w.deps.Cache.InvalidateTicker(ctx, f.Ticker); err != nil {
		log.Warn("failed to invalidate cached searches", "err", err)
	}

	task, err := queue.NewTask(queue.TaskTypeEmbed, queue.EmbedPayload{
		Ticker:     f.Ticker,
		FilingDate: f.FilingDate,
	}, 3)
	if err != nil {
		return err
	}
	task.NotBefore = time.Now()
	return queue.EnqueueWithRetry(ctx, w.deps.Queue, task, 3, 200*time.Millisecond)
}

// load returns the uploaded text, the filing named by accession, or the
// latest 10-K, in that order.
func (w *worker) load(ctx context.Context, payload queue.ChunkPayload) (filing.Filing, error) {
	ticker := strings.ToUpper(payload.Ticker)
	if payload.Text != "" {
		return filing.Filing{
			Ticker:     ticker,
			FilingDate: payload.FilingDate,
			Accession:  payload.Accession,
			Text:       payload.Text,
		}, nil
	}
	if payload.Accession == "" {
		return w.source.Latest10K(ctx, ticker)
	}
	cik, err := w.source.LookupCIK(ctx, ticker)
	if err != nil {
		return filing.Filing{}, err
	}
	return w.source.FetchFiling(ctx, edgar.FilingRef{
		Ticker:     ticker,
		CIK:        cik,
		Accession:  payload.Accession,
		FilingDate: payload.FilingDate,
	})
}

func (w *worker) writeParquet(f filing.Filing, records []filing.Record) error {
	dir := w.deps.Config.OutputDir
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, interchange.BaseName(f.Ticker, f.FilingDate)+".parquet")
	return interchange.WriteParquetFile(path, records)
}
