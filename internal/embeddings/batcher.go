package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"balance-sheets/internal/checkpoint"
	"balance-sheets/internal/cost"
)

// MaxBatchSize is the provider's per-request input limit.
const MaxBatchSize = 2048

// Item is one text to embed, keyed by a stable id.
type Item struct {
	ID    string
	Text  string
	Words int
}

// CheckpointKey identifies the vector of it in a checkpoint. The text hash
// keeps a vector from being reused after a chunk id is re-chunked with
// different text.
func CheckpointKey(it Item) string {
	sum := sha256.Sum256([]byte(it.Text))
	return it.ID + "#" + hex.EncodeToString(sum[:8])
}

// Report summarizes a batcher run.
type Report struct {
	Embedded int
	Reused   int
	Batches  int
	Tokens   int64
}

// Gate is consulted with the items that still need a provider call, before
// the first call. A non-nil error aborts the run.
type Gate func(ctx context.Context, pending []Item) error

// CostGate adapts a cost estimate and approver into a Gate.
func CostGate(est cost.Estimator, approver cost.Approver, log *slog.Logger) Gate {
	return func(ctx context.Context, pending []Item) error {
		words := 0
		for _, it := range pending {
			words += it.Words
		}
		estimate, err := est.Gate(ctx, words, approver)
		log.Info("embedding cost estimate", "chunks", len(pending), "words", words, "estimate_usd", estimate)
		return err
	}
}

// Batcher embeds items in provider-sized batches and records every
// successful batch in a checkpoint store.
type Batcher struct {
	embedder Embedder
	cp       checkpoint.Store
	size     int
	log      *slog.Logger
}

// NewBatcher returns a Batcher. size is clamped to (0, MaxBatchSize].
func NewBatcher(embedder Embedder, cp checkpoint.Store, size int, log *slog.Logger) *Batcher {
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}
	return &Batcher{embedder: embedder, cp: cp, size: size, log: log}
}

// Run returns one vector per item, in item order. Items already committed
// under ns are reused without a provider call. A failed batch stops the run
// and leaves its items uncommitted.
func (b *Batcher) Run(ctx context.Context, ns string, items []Item, gate Gate) ([]Vector, Report, error) {
	var report Report
	vectors := make([]Vector, len(items))

	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = CheckpointKey(it)
	}
	done, err := b.cp.Done(ctx, ns, keys)
	if err != nil {
		return nil, report, fmt.Errorf("load checkpoint: %w", err)
	}

	var pending []int
	for i, it := range items {
		raw, ok := done[keys[i]]
		if !ok {
			pending = append(pending, i)
			continue
		}
		var v Vector
		if err := json.Unmarshal(raw, &v); err != nil {
			b.log.Warn("discarding unreadable checkpoint entry", "id", it.ID, "error", err)
			pending = append(pending, i)
			continue
		}
		vectors[i] = v
		report.Reused++
	}

	if len(pending) == 0 {
		return vectors, report, nil
	}
	if gate != nil {
		todo := make([]Item, len(pending))
		for j, i := range pending {
			todo[j] = items[i]
		}
		if err := gate(ctx, todo); err != nil {
			return nil, report, err
		}
	}

	for start := 0; start < len(pending); start += b.size {
		end := min(start+b.size, len(pending))
		idx := pending[start:end]

		texts := make([]string, len(idx))
		for j, i := range idx {
			texts[j] = items[i].Text
		}

		vecs, usage, err := b.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, report, fmt.Errorf("embed batch %d: %w", report.Batches+1, err)
		}
		if len(vecs) != len(texts) {
			return nil, report, fmt.Errorf("embed batch %d: got %d vectors for %d texts", report.Batches+1, len(vecs), len(texts))
		}

		entries := make(map[string][]byte, len(idx))
		for j, i := range idx {
			raw, err := json.Marshal(vecs[j])
			if err != nil {
				return nil, report, fmt.Errorf("encode vector %s: %w", items[i].ID, err)
			}
			entries[keys[i]] = raw
		}
		if err := b.cp.Commit(ctx, ns, entries); err != nil {
			return nil, report, fmt.Errorf("commit checkpoint: %w", err)
		}
		for j, i := range idx {
			vectors[i] = vecs[j]
		}

		report.Batches++
		report.Embedded += len(idx)
		report.Tokens += usage.Tokens
		b.log.Info("embedded batch", "batch", report.Batches, "size", len(idx), "done", report.Embedded, "pending", len(pending))
	}
	return vectors, report, nil
}
