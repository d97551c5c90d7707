package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"balance-sheets/internal/app"
	"balance-sheets/internal/checkpoint"
	"balance-sheets/internal/cost"
	"balance-sheets/internal/embeddings"
	"balance-sheets/internal/httputil"
	"balance-sheets/internal/queue"
	"balance-sheets/internal/store"
)

type worker struct {
	deps      app.Deps
	batcher   *embeddings.Batcher
	estimator cost.Estimator
	approver  cost.Approver
}

func newWorker(deps app.Deps) *worker {
	var approver cost.Approver = cost.NonInteractive{}
	if deps.Config.EmbedAutoApprove {
		approver = cost.AutoApprove{}
	}
	return &worker{
		deps:      deps,
		batcher:   embeddings.NewBatcher(deps.Embedder, deps.Checkpoint, deps.Config.EmbeddingBatchSize, deps.Log),
		estimator: app.NewEstimator(deps.Config),
		approver:  approver,
	}
}

func main() {
	deps, err := app.Build(
		app.ComponentStore,
		app.ComponentQueue,
		app.ComponentEmbedder,
		app.ComponentCache,
		app.ComponentCheckpoint,
	)
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	w := newWorker(deps)
	deps.Log.Info("embedder worker starting", "model", deps.Config.EmbeddingModel, "auto_approve", deps.Config.EmbedAutoApprove)

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeEmbed, func(ctx context.Context, task queue.Task) error {
			var payload queue.EmbedPayload
			if err := task.Decode(&payload); err != nil {
				return err
			}
			return w.handleEmbed(ctx, payload)
		})
	})

	g.Go(func() error {
		return httputil.ServeHealth(ctx, deps, "embedder")
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("embedder service stopped", "err", err)
	}
}

func (w *worker) handleEmbed(ctx context.Context, payload queue.EmbedPayload) error {
	log := w.deps.Log.With("ticker", payload.Ticker, "filing_date", payload.FilingDate)

	chunks, err := w.deps.Store.ListUnembedded(ctx, payload.Ticker, payload.FilingDate)
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}
	if len(chunks) == 0 {
		log.Info("nothing to embed")
		return nil
	}

	items := make([]embeddings.Item, len(chunks))
	for i, c := range chunks {
		items[i] = embeddings.Item{ID: c.ID, Text: c.Text, Words: c.WordCount}
	}

	gate := embeddings.CostGate(w.estimator, w.approver, log)
	vectors, report, err := w.batcher.Run(ctx, checkpoint.NamespaceEmbeddings, items, gate)
	if errors.Is(err, cost.ErrApprovalRequired) || errors.Is(err, cost.ErrDeclined) {
		// Acked: needs EMBED_AUTO_APPROVE or tenk embed.
		log.Warn("embedding skipped", "chunks", len(chunks), "err", err)
		return nil
	}
	if err != nil {
		return err
	}

	embs := make([]store.Embedding, len(chunks))
	for i, c := range chunks {
		embs[i] = store.Embedding{ChunkID: c.ID, Vector: vectors[i], Model: w.deps.Config.EmbeddingModel}
	}
	if err := w.deps.Store.SaveEmbeddings(ctx, embs); err != nil {
		return fmt.Errorf("save embeddings: %w", err)
	}

	if err := w.deps.Cache.InvalidateTicker(ctx, payload.Ticker); err != nil {
		log.Warn("failed to invalidate cached searches", "err", err)
	}
	log.Info("embedded filing",
		"chunks", len(chunks),
		"reused", report.Reused,
		"batches", report.Batches,
		"tokens", report.Tokens,
		"cost_usd", w.estimator.TokenCost(report.Tokens),
	)
	return nil
}
