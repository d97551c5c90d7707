// Package filing turns the raw text of a 10-K into ordered chunk records.
package filing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"balance-sheets/internal/chunker"
	"balance-sheets/internal/metadata"
	"balance-sheets/internal/sections"
)

// DocumentType is the only form processed.
const DocumentType = "10-K"

// ErrNoSections reports a filing in which no item heading was found.
// Callers log it and move on.
var ErrNoSections = errors.New("unprocessable filing: no sections found")

// Filing is one downloaded 10-K.
type Filing struct {
	Ticker     string `json:"ticker"`
	FilingDate string `json:"filing_date"` // YYYY-MM-DD
	Accession  string `json:"accession_number"`
	Text       string `json:"-"`
}

// ChunkMetadata describes a chunk. TotalChunks is filled in once the whole
// filing has been chunked.
type ChunkMetadata struct {
	ChunkID     string `json:"chunk_id"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	Section     string `json:"section"`
	metadata.Stats
	Ticker       string `json:"ticker"`
	FilingDate   string `json:"filing_date"`
	DocumentType string `json:"document_type"`
	TextPreview  string `json:"text_preview"`
}

// Record is a chunk with its metadata and, once embedded, its vector.
type Record struct {
	Text      string        `json:"text"`
	Metadata  ChunkMetadata `json:"metadata"`
	Embedding []float32     `json:"embedding,omitempty"`
}

// Summary describes one processing pass.
type Summary struct {
	Ticker        string          `json:"ticker"`
	FilingDate    string          `json:"filing_date"`
	Accession     string          `json:"accession_number"`
	ProcessedAt   time.Time       `json:"processing_date"`
	Duration      time.Duration   `json:"processing_time_ns"`
	Sections      []string        `json:"-"`
	TotalSections int             `json:"total_sections"`
	TotalChunks   int             `json:"total_chunks"`
	AvgChunkWords int             `json:"average_chunk_words"`
	ChunkConfig   chunker.Options `json:"chunk_config"`
}

// ChunkID returns the stable id of the chunk at index within a filing.
func ChunkID(ticker, filingDate string, index int) string {
	return fmt.Sprintf("%s_%s_%d", ticker, filingDate, index)
}

// Processor runs section location, chunking and metadata extraction.
type Processor struct {
	locator   *sections.Locator
	chunker   *chunker.Chunker
	extractor *metadata.Extractor
	log       *slog.Logger
	now       func() time.Time
}

func NewProcessor(locator *sections.Locator, ch *chunker.Chunker, ext *metadata.Extractor, log *slog.Logger) *Processor {
	return &Processor{
		locator:   locator,
		chunker:   ch,
		extractor: ext,
		log:       log,
		now:       time.Now,
	}
}

// Process chunks f. Chunk indexes run across the whole filing in section
// order.
func (p *Processor) Process(ctx context.Context, f Filing) ([]Record, Summary, error) {
	start := p.now()
	log := p.log.With("ticker", f.Ticker, "filing_date", f.FilingDate)

	secs := p.locator.Locate(f.Text)
	if len(secs) == 0 {
		return nil, Summary{}, ErrNoSections
	}
	log.Info("extracted sections", "count", len(secs))

	var (
		records []Record
		names   = make([]string, 0, len(secs))
		words   int
	)
	for _, sec := range secs {
		if err := ctx.Err(); err != nil {
			return nil, Summary{}, err
		}
		names = append(names, sec.Name)

		chunks := p.chunker.Split(sec.Text, sec.Name)
		for _, c := range chunks {
			idx := len(records)
			records = append(records, Record{
				Text: c.Text,
				Metadata: ChunkMetadata{
					ChunkID:      ChunkID(f.Ticker, f.FilingDate, idx),
					ChunkIndex:   idx,
					Section:      sec.Name,
					Stats:        p.extractor.Extract(c.Text),
					Ticker:       f.Ticker,
					FilingDate:   f.FilingDate,
					DocumentType: DocumentType,
					TextPreview:  metadata.Preview(c.Text),
				},
			})
			words += c.WordCount
		}
		log.Debug("chunked section", "section", sec.Name, "chunks", len(chunks))
	}

	for i := range records {
		records[i].Metadata.TotalChunks = len(records)
	}

	summary := Summary{
		Ticker:        f.Ticker,
		FilingDate:    f.FilingDate,
		Accession:     f.Accession,
		ProcessedAt:   start,
		Duration:      p.now().Sub(start),
		Sections:      names,
		TotalSections: len(names),
		TotalChunks:   len(records),
		ChunkConfig:   p.chunker.Options(),
	}
	if len(records) > 0 {
		summary.AvgChunkWords = words / len(records)
	}
	log.Info("processed filing", "chunks", summary.TotalChunks, "avg_words", summary.AvgChunkWords)
	return records, summary, nil
}
