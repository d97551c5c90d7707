package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"balance-sheets/internal/edgar"
	"balance-sheets/internal/filing"
	"balance-sheets/internal/interchange"
)

type filingSource interface {
	Recent10Ks(ctx context.Context, ticker string, n int) ([]edgar.FilingRef, error)
	FetchFiling(ctx context.Context, ref edgar.FilingRef) (filing.Filing, error)
}

type processCmd struct {
	source    filingSource
	processor *filing.Processor
	pause     time.Duration
	outDir    string
	log       *slog.Logger
}

// run writes the output files of the last years 10-Ks of ticker and returns
// the JSON paths written. Filings without sections are skipped.
func (c *processCmd) run(ctx context.Context, ticker string, years int) ([]string, error) {
	refs, err := c.source.Recent10Ks(ctx, ticker, years)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.outDir, 0o755); err != nil {
		return nil, err
	}

	var written []string
	for i, ref := range refs {
		if i > 0 && c.pause > 0 {
			select {
			case <-ctx.Done():
				return written, ctx.Err()
			case <-time.After(c.pause):
			}
		}
		log := c.log.With("ticker", ref.Ticker, "filing_date", ref.FilingDate)

		f, err := c.source.FetchFiling(ctx, ref)
		if err != nil {
			return written, err
		}
		records, sum, err := c.processor.Process(ctx, f)
		if errors.Is(err, filing.ErrNoSections) {
			log.Warn("skipping filing", "err", err)
			continue
		}
		if err != nil {
			return written, err
		}

		path, err := writeOutputs(c.outDir, interchange.NewDocument(sum, records))
		if err != nil {
			return written, err
		}
		log.Info("filing processed", "sections", sum.TotalSections, "chunks", sum.TotalChunks, "file", path)
		written = append(written, path)
	}
	return written, nil
}

// writeOutputs writes the JSON document, its summary, and the Parquet and
// XLSX chunk tables side by side, and returns the JSON path.
func writeOutputs(dir string, doc interchange.Document) (string, error) {
	base := filepath.Join(dir, interchange.BaseName(doc.Metadata.Ticker, doc.Metadata.FilingDate))

	if err := writeFile(base+".json", func(w io.Writer) error { return interchange.WriteJSON(w, doc) }); err != nil {
		return "", err
	}
	if err := writeFile(base+"_summary.txt", func(w io.Writer) error { return interchange.WriteSummary(w, doc) }); err != nil {
		return "", err
	}
	if err := interchange.WriteParquetFile(base+".parquet", doc.Chunks); err != nil {
		return "", err
	}
	if err := writeFile(base+".xlsx", func(w io.Writer) error { return interchange.WriteXLSX(w, doc.Chunks) }); err != nil {
		return "", err
	}
	return base + ".json", nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
