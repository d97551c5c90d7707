// Package interchange reads and writes chunk files exchanged between the
// chunking and embedding stages and handed to reviewers.
package interchange

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"balance-sheets/internal/chunker"
	"balance-sheets/internal/filing"
)

// DocumentMetadata heads a chunk document.
type DocumentMetadata struct {
	Ticker             string          `json:"ticker"`
	FilingDate         string          `json:"filing_date"`
	AccessionNumber    string          `json:"accession_number"`
	ProcessingDate     string          `json:"processing_date"`
	TotalSections      int             `json:"total_sections"`
	TotalChunks        int             `json:"total_chunks"`
	ChunkConfig        chunker.Options `json:"chunk_config"`
	EmbeddingModel     string          `json:"embedding_model,omitempty"`
	EmbeddingDimension int             `json:"embedding_dimension,omitempty"`
	TotalCost          *float64        `json:"total_cost,omitempty"`
}

// Document is the JSON form of one processed filing.
type Document struct {
	Metadata DocumentMetadata `json:"metadata"`
	Sections []string         `json:"sections"`
	Chunks   []filing.Record  `json:"chunks"`
}

func NewDocument(sum filing.Summary, records []filing.Record) Document {
	sections := sum.Sections
	if sections == nil {
		sections = []string{}
	}
	return Document{
		Metadata: DocumentMetadata{
			Ticker:          sum.Ticker,
			FilingDate:      sum.FilingDate,
			AccessionNumber: sum.Accession,
			ProcessingDate:  sum.ProcessedAt.Format(time.RFC3339),
			TotalSections:   sum.TotalSections,
			TotalChunks:     sum.TotalChunks,
			ChunkConfig:     sum.ChunkConfig,
		},
		Sections: sections,
		Chunks:   records,
	}
}

// Embedded records the embedding run on the document header.
func (d *Document) Embedded(model string, dimensions int, totalCost float64) {
	d.Metadata.EmbeddingModel = model
	d.Metadata.EmbeddingDimension = dimensions
	d.Metadata.TotalCost = &totalCost
}

func WriteJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	return nil
}

func ReadJSON(r io.Reader) (Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

// AverageWords is the integer mean word count of records.
func AverageWords(records []filing.Record) int {
	if len(records) == 0 {
		return 0
	}
	total := 0
	for _, r := range records {
		total += r.Metadata.WordCount
	}
	return total / len(records)
}

// WriteSummary writes a human-readable processing summary.
func WriteSummary(w io.Writer, doc Document) error {
	var b strings.Builder
	fmt.Fprintf(&b, "10-K Processing Summary for %s\n", doc.Metadata.Ticker)
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&b, "Filing Date: %s\n", doc.Metadata.FilingDate)
	fmt.Fprintf(&b, "Accession Number: %s\n", doc.Metadata.AccessionNumber)
	fmt.Fprintf(&b, "Processing Date: %s\n\n", doc.Metadata.ProcessingDate)
	fmt.Fprintf(&b, "Sections Extracted: %d\n", len(doc.Sections))
	for _, s := range doc.Sections {
		fmt.Fprintf(&b, "  - %s\n", s)
	}
	fmt.Fprintf(&b, "\nTotal Chunks: %d\n", len(doc.Chunks))
	fmt.Fprintf(&b, "Average Chunk Size: %d words\n", AverageWords(doc.Chunks))
	if doc.Metadata.TotalCost != nil {
		fmt.Fprintf(&b, "Embedding Model: %s (%d dimensions)\n", doc.Metadata.EmbeddingModel, doc.Metadata.EmbeddingDimension)
		fmt.Fprintf(&b, "Embedding Cost: $%.4f\n", *doc.Metadata.TotalCost)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// BaseName is the file name stem used for every output of one filing.
func BaseName(ticker, filingDate string) string {
	return fmt.Sprintf("%s_10K_%s", ticker, filingDate)
}
