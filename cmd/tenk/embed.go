package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"balance-sheets/internal/checkpoint"
	"balance-sheets/internal/cost"
	"balance-sheets/internal/embeddings"
	"balance-sheets/internal/interchange"
)

type embedCmd struct {
	batcher    *embeddings.Batcher
	estimator  cost.Estimator
	approver   cost.Approver
	model      string
	dimensions int
	log        *slog.Logger
}

// run embeds every chunk of the JSON document at path and rewrites it, and
// its Parquet sibling, with vectors and cost. A declined estimate leaves the
// files untouched.
func (c *embedCmd) run(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	doc, err := interchange.ReadJSON(f)
	f.Close()
	if err != nil {
		return err
	}

	items := make([]embeddings.Item, len(doc.Chunks))
	for i, r := range doc.Chunks {
		items[i] = embeddings.Item{ID: r.Metadata.ChunkID, Text: r.Text, Words: r.Metadata.WordCount}
	}

	gate := embeddings.CostGate(c.estimator, c.approver, c.log)
	vectors, report, err := c.batcher.Run(ctx, checkpoint.NamespaceEmbeddings, items, gate)
	if err != nil {
		return err
	}
	for i := range doc.Chunks {
		doc.Chunks[i].Embedding = vectors[i]
	}
	spent := c.estimator.TokenCost(report.Tokens)
	doc.Embedded(c.model, c.dimensions, spent)

	if err := writeFile(path, func(w io.Writer) error { return interchange.WriteJSON(w, doc) }); err != nil {
		return err
	}
	if err := interchange.WriteParquetFile(strings.TrimSuffix(path, ".json")+".parquet", doc.Chunks); err != nil {
		return err
	}
	c.log.Info("embedded chunks",
		"file", path,
		"chunks", len(items),
		"reused", report.Reused,
		"tokens", report.Tokens,
		"cost_usd", fmt.Sprintf("%.4f", spent),
	)
	return nil
}
