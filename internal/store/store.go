package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"balance-sheets/internal/embeddings"
	"balance-sheets/internal/filing"
)

// Report types accepted by financial_snapshots.
const (
	ReportAnnual    = "10-K"
	ReportQuarterly = "10-Q"
)

var ErrCompanyNotFound = errors.New("company not found")

type Company struct {
	ID        int64     `json:"id"`
	Ticker    string    `json:"ticker"`
	Name      string    `json:"name"`
	Sector    string    `json:"sector,omitempty"`
	Industry  string    `json:"industry,omitempty"`
	LogoURL   string    `json:"logo_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is one reporting period of a company's statements.
type Snapshot struct {
	ID                int64           `json:"id"`
	CompanyID         int64           `json:"company_id"`
	PeriodEnd         string          `json:"period_end_date"` // YYYY-MM-DD
	ReportType        string          `json:"report_type"`
	Assets            decimal.Decimal `json:"assets"`
	Liabilities       decimal.Decimal `json:"liabilities"`
	Equity            decimal.Decimal `json:"equity"`
	Cash              decimal.Decimal `json:"cash"`
	Debt              decimal.Decimal `json:"debt"`
	Revenue           decimal.Decimal `json:"revenue"`
	NetIncome         decimal.Decimal `json:"net_income"`
	OperatingCashFlow decimal.Decimal `json:"operating_cash_flow"`
	FreeCashFlow      decimal.Decimal `json:"free_cash_flow"`
	SharesOutstanding decimal.Decimal `json:"shares_outstanding"`
	RawData           json.RawMessage `json:"-"`
}

type MarketData struct {
	CompanyID   int64           `json:"company_id"`
	MarketCap   decimal.Decimal `json:"market_cap"`
	StockPrice  decimal.Decimal `json:"stock_price"`
	LastUpdated time.Time       `json:"last_updated"`
}

type Metrics struct {
	CompanyID        int64               `json:"company_id"`
	SnapshotID       int64               `json:"snapshot_id"`
	PE               decimal.NullDecimal `json:"p_e_ratio"`
	PB               decimal.NullDecimal `json:"p_b_ratio"`
	DebtToEquity     decimal.NullDecimal `json:"debt_to_equity"`
	CurrentRatio     decimal.NullDecimal `json:"current_ratio"`
	ROE              decimal.NullDecimal `json:"roe"`
	DifficultyScore  int                 `json:"difficulty_score"`
	SectorPercentile decimal.NullDecimal `json:"sector_percentile"`
}

// FetchLog is one row of data_fetch_log.
type FetchLog struct {
	Ticker       string
	Success      bool
	APICallsUsed int
	ErrorMessage string
}

// CompanyOverview is a company with its market data and latest snapshot.
type CompanyOverview struct {
	Company  Company     `json:"company"`
	Market   *MarketData `json:"market_data,omitempty"`
	Snapshot *Snapshot   `json:"latest_snapshot,omitempty"`
	Metrics  *Metrics    `json:"metrics,omitempty"`
}

// Chunk is a stored 10-K chunk.
type Chunk struct {
	ID         string          `json:"chunk_id"`
	Ticker     string          `json:"ticker"`
	FilingDate string          `json:"filing_date"`
	Accession  string          `json:"accession_number"`
	Section    string          `json:"section"`
	Index      int             `json:"chunk_index"`
	Text       string          `json:"text"`
	WordCount  int             `json:"word_count"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

type Embedding struct {
	ChunkID string
	Vector  embeddings.Vector
	Model   string
}

type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// ChunksFromRecords converts processed records into rows for SaveChunks.
func ChunksFromRecords(records []filing.Record, accession string) ([]Chunk, error) {
	out := make([]Chunk, len(records))
	for i, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata %s: %w", r.Metadata.ChunkID, err)
		}
		out[i] = Chunk{
			ID:         r.Metadata.ChunkID,
			Ticker:     r.Metadata.Ticker,
			FilingDate: r.Metadata.FilingDate,
			Accession:  accession,
			Section:    r.Metadata.Section,
			Index:      r.Metadata.ChunkIndex,
			Text:       r.Text,
			WordCount:  r.Metadata.WordCount,
			Metadata:   meta,
		}
	}
	return out, nil
}

// FilingKey identifies one filing's chunks.
type FilingKey struct {
	Ticker     string
	FilingDate string
}

// chunkFilings lists the distinct filings of chunks in first-seen order.
func chunkFilings(chunks []Chunk) []FilingKey {
	seen := make(map[FilingKey]bool)
	var out []FilingKey
	for _, c := range chunks {
		k := FilingKey{Ticker: c.Ticker, FilingDate: c.FilingDate}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// Store defines persistence contract; an external DB implementation can replace this.
type Store interface {
	UpsertCompany(ctx context.Context, c Company) (int64, error)
	CompanyID(ctx context.Context, ticker string) (int64, error)
	GetCompany(ctx context.Context, ticker string) (CompanyOverview, error)
	ExistingTickers(ctx context.Context) (map[string]bool, error)
	UpsertSnapshot(ctx context.Context, s Snapshot) (int64, error)
	UpsertMarketData(ctx context.Context, m MarketData) error
	UpsertMetrics(ctx context.Context, m Metrics) error
	LogFetch(ctx context.Context, l FetchLog) error
	APICallsToday(ctx context.Context) (int, error)

	SaveChunks(ctx context.Context, chunks []Chunk) error
	ListUnembedded(ctx context.Context, ticker, filingDate string) ([]Chunk, error)
	SaveEmbeddings(ctx context.Context, embs []Embedding) error
	Search(ctx context.Context, vector embeddings.Vector, tickers []string, k int) ([]SearchResult, error)
}
