package interchange

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"balance-sheets/internal/filing"
)

const chunkSheet = "Chunks"

var chunkHeaders = []string{
	"Chunk ID",
	"Index",
	"Total Chunks",
	"Section",
	"Words",
	"Characters",
	"Sentences",
	"Financial Figures",
	"Dates",
	"Percentages",
	"Risk Score",
	"Key Terms",
	"Ticker",
	"Filing Date",
	"Preview",
}

// WriteXLSX writes a workbook with one row of metadata per chunk.
func WriteXLSX(w io.Writer, records []filing.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", chunkSheet); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	for i, h := range chunkHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(chunkSheet, cell, h)
	}

	for i, r := range records {
		row := i + 2
		m := r.Metadata
		values := []any{
			m.ChunkID,
			m.ChunkIndex,
			m.TotalChunks,
			m.Section,
			m.WordCount,
			m.CharCount,
			m.SentenceCount,
			m.FinancialFiguresCount,
			m.DatesCount,
			m.PercentagesCount,
			m.RiskScore,
			keyTerms(m.KeyTerms),
			m.Ticker,
			m.FilingDate,
			m.TextPreview,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(chunkSheet, cell, v)
		}
	}

	_ = f.SetColWidth(chunkSheet, "A", "A", 28) // id
	_ = f.SetColWidth(chunkSheet, "D", "D", 48) // section
	_ = f.SetColWidth(chunkSheet, "L", "L", 40)
	_ = f.SetColWidth(chunkSheet, "O", "O", 80) // preview

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// keyTerms renders term counts as "term=n" pairs, most frequent first.
func keyTerms(terms map[string]int) string {
	names := make([]string, 0, len(terms))
	for k := range terms {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		if terms[names[i]] != terms[names[j]] {
			return terms[names[i]] > terms[names[j]]
		}
		return names[i] < names[j]
	})

	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s=%d", n, terms[n])
	}
	return strings.Join(parts, ", ")
}
