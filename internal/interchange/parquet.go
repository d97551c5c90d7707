package interchange

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"balance-sheets/internal/filing"
)

// Row is one chunk in a Parquet file. Embedding is empty until the
// embedding stage rewrites the file.
type Row struct {
	ChunkID    string    `parquet:"chunk_id,snappy"`
	ChunkIndex int64     `parquet:"chunk_index"`
	Section    string    `parquet:"section,snappy,dict"`
	Text       string    `parquet:"text,snappy"`
	Embedding  []float32 `parquet:"embedding,list"`
	WordCount  int64     `parquet:"word_count"`
	Ticker     string    `parquet:"ticker,dict"`
	FilingDate string    `parquet:"filing_date,dict"`
}

func Rows(records []filing.Record) []Row {
	rows := make([]Row, len(records))
	for i, r := range records {
		rows[i] = Row{
			ChunkID:    r.Metadata.ChunkID,
			ChunkIndex: int64(r.Metadata.ChunkIndex),
			Section:    r.Metadata.Section,
			Text:       r.Text,
			Embedding:  r.Embedding,
			WordCount:  int64(r.Metadata.WordCount),
			Ticker:     r.Metadata.Ticker,
			FilingDate: r.Metadata.FilingDate,
		}
	}
	return rows
}

// Records converts rows back into records. Only the columns stored in the
// file are populated.
func Records(rows []Row) []filing.Record {
	records := make([]filing.Record, len(rows))
	for i, row := range rows {
		records[i] = filing.Record{
			Text:      row.Text,
			Embedding: row.Embedding,
			Metadata: filing.ChunkMetadata{
				ChunkID:      row.ChunkID,
				ChunkIndex:   int(row.ChunkIndex),
				TotalChunks:  len(rows),
				Section:      row.Section,
				Ticker:       row.Ticker,
				FilingDate:   row.FilingDate,
				DocumentType: filing.DocumentType,
			},
		}
		records[i].Metadata.WordCount = int(row.WordCount)
	}
	return records
}

func WriteParquet(w io.Writer, records []filing.Record) error {
	if err := parquet.Write(w, Rows(records)); err != nil {
		return fmt.Errorf("failed to write parquet: %w", err)
	}
	return nil
}

func ReadParquet(r io.ReaderAt, size int64) ([]Row, error) {
	rows, err := parquet.Read[Row](r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet: %w", err)
	}
	return rows, nil
}

func WriteParquetFile(path string, records []filing.Record) error {
	if err := parquet.WriteFile(path, Rows(records)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func ReadParquetFile(path string) ([]Row, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}
