package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"balance-sheets/internal/embeddings"
)

// EmbeddingDimensions is the width of document_chunks.embedding.
const EmbeddingDimensions = 3072

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Advisory lock keeps concurrently starting services from racing on DDL.
	const lockID = 271828182

	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	if !acquired {
		// Another service is running migrations; wait briefly and skip
		time.Sleep(2 * time.Second)
		return nil
	}

	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS companies (
			id SERIAL PRIMARY KEY,
			ticker VARCHAR(10) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL,
			sector VARCHAR(100),
			industry VARCHAR(100),
			logo_url TEXT,
			created_at TIMESTAMPTZ DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS financial_snapshots (
			id SERIAL PRIMARY KEY,
			company_id INT REFERENCES companies(id) ON DELETE CASCADE,
			period_end_date DATE NOT NULL,
			report_type VARCHAR(10) CHECK (report_type IN ('10-K', '10-Q')),
			assets NUMERIC,
			liabilities NUMERIC,
			equity NUMERIC,
			cash NUMERIC,
			debt NUMERIC,
			revenue NUMERIC,
			net_income NUMERIC,
			operating_cash_flow NUMERIC,
			free_cash_flow NUMERIC,
			shares_outstanding NUMERIC,
			raw_data JSONB,
			created_at TIMESTAMPTZ DEFAULT now(),
			UNIQUE (company_id, period_end_date, report_type)
		);`,
		`CREATE TABLE IF NOT EXISTS market_data (
			company_id INT PRIMARY KEY REFERENCES companies(id) ON DELETE CASCADE,
			market_cap NUMERIC,
			stock_price NUMERIC,
			last_updated TIMESTAMPTZ DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS company_metrics (
			company_id INT REFERENCES companies(id) ON DELETE CASCADE,
			snapshot_id INT REFERENCES financial_snapshots(id) ON DELETE CASCADE,
			p_e_ratio NUMERIC,
			p_b_ratio NUMERIC,
			debt_to_equity NUMERIC,
			current_ratio NUMERIC,
			roe NUMERIC,
			difficulty_score INT CHECK (difficulty_score BETWEEN 1 AND 10),
			sector_percentile NUMERIC,
			PRIMARY KEY (company_id, snapshot_id)
		);`,
		`CREATE TABLE IF NOT EXISTS data_fetch_log (
			id SERIAL PRIMARY KEY,
			ticker VARCHAR(10),
			fetch_timestamp TIMESTAMPTZ DEFAULT now(),
			success BOOLEAN,
			api_calls_used INT,
			error_message TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS document_chunks (
			chunk_id TEXT PRIMARY KEY,
			ticker VARCHAR(10) NOT NULL,
			filing_date DATE NOT NULL,
			accession_number TEXT,
			section TEXT,
			chunk_index INT,
			text TEXT,
			word_count INT,
			metadata JSONB,
			embedding vector(3072),
			embedding_model TEXT,
			created_at TIMESTAMPTZ DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_companies_ticker ON companies(ticker);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_company_date ON financial_snapshots(company_id, period_end_date DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_market_data_updated ON market_data(last_updated);`,
		`CREATE INDEX IF NOT EXISTS idx_fetch_log_timestamp ON data_fetch_log(fetch_timestamp);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_filing ON document_chunks(ticker, filing_date);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	// No ANN index: ivfflat and hnsw cap at 2000 dimensions, so search is an
	// exact scan filtered by ticker.
	return nil
}

func (s *PostgresStore) UpsertCompany(ctx context.Context, c Company) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO companies (ticker, name, sector, industry, logo_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ticker) DO UPDATE SET
			name = EXCLUDED.name,
			sector = EXCLUDED.sector,
			industry = EXCLUDED.industry,
			logo_url = EXCLUDED.logo_url
		RETURNING id`,
		c.Ticker, c.Name, c.Sector, c.Industry, c.LogoURL).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert company %s: %w", c.Ticker, err)
	}
	return id, nil
}

func (s *PostgresStore) CompanyID(ctx context.Context, ticker string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM companies WHERE ticker = $1`, ticker).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrCompanyNotFound
		}
		return 0, fmt.Errorf("failed to look up company %s: %w", ticker, err)
	}
	return id, nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, ticker string) (CompanyOverview, error) {
	var ov CompanyOverview
	c := &ov.Company
	var sector, industry, logo sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, ticker, name, sector, industry, logo_url, created_at
		FROM companies WHERE ticker = $1`, ticker).
		Scan(&c.ID, &c.Ticker, &c.Name, &sector, &industry, &logo, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CompanyOverview{}, ErrCompanyNotFound
		}
		return CompanyOverview{}, fmt.Errorf("failed to get company %s: %w", ticker, err)
	}
	c.Sector, c.Industry, c.LogoURL = sector.String, industry.String, logo.String

	var m MarketData
	err = s.db.QueryRowContext(ctx, `
		SELECT company_id, market_cap, stock_price, last_updated
		FROM market_data WHERE company_id = $1`, c.ID).
		Scan(&m.CompanyID, &m.MarketCap, &m.StockPrice, &m.LastUpdated)
	switch {
	case err == nil:
		ov.Market = &m
	case !errors.Is(err, sql.ErrNoRows):
		return CompanyOverview{}, fmt.Errorf("failed to get market data %s: %w", ticker, err)
	}

	var snap Snapshot
	err = s.db.QueryRowContext(ctx, `
		SELECT id, company_id, period_end_date::text, report_type,
			assets, liabilities, equity, cash, debt, revenue, net_income,
			operating_cash_flow, free_cash_flow, shares_outstanding
		FROM financial_snapshots
		WHERE company_id = $1
		ORDER BY period_end_date DESC, report_type ASC
		LIMIT 1`, c.ID).
		Scan(&snap.ID, &snap.CompanyID, &snap.PeriodEnd, &snap.ReportType,
			&snap.Assets, &snap.Liabilities, &snap.Equity, &snap.Cash, &snap.Debt, &snap.Revenue, &snap.NetIncome,
			&snap.OperatingCashFlow, &snap.FreeCashFlow, &snap.SharesOutstanding)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ov, nil
	case err != nil:
		return CompanyOverview{}, fmt.Errorf("failed to get snapshot %s: %w", ticker, err)
	}
	ov.Snapshot = &snap

	var met Metrics
	err = s.db.QueryRowContext(ctx, `
		SELECT company_id, snapshot_id, p_e_ratio, p_b_ratio, debt_to_equity,
			current_ratio, roe, difficulty_score, sector_percentile
		FROM company_metrics
		WHERE company_id = $1 AND snapshot_id = $2`, c.ID, snap.ID).
		Scan(&met.CompanyID, &met.SnapshotID, &met.PE, &met.PB, &met.DebtToEquity,
			&met.CurrentRatio, &met.ROE, &met.DifficultyScore, &met.SectorPercentile)
	switch {
	case err == nil:
		ov.Metrics = &met
	case !errors.Is(err, sql.ErrNoRows):
		return CompanyOverview{}, fmt.Errorf("failed to get metrics %s: %w", ticker, err)
	}
	return ov, nil
}

func (s *PostgresStore) ExistingTickers(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ticker FROM companies`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out[t] = true
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertSnapshot(ctx context.Context, snap Snapshot) (int64, error) {
	raw := []byte(snap.RawData)
	if len(raw) == 0 {
		raw = []byte(`{}`)
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO financial_snapshots (
			company_id, period_end_date, report_type,
			assets, liabilities, equity, cash, debt,
			revenue, net_income, operating_cash_flow, free_cash_flow,
			shares_outstanding, raw_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (company_id, period_end_date, report_type) DO UPDATE SET
			assets = EXCLUDED.assets,
			liabilities = EXCLUDED.liabilities,
			equity = EXCLUDED.equity,
			cash = EXCLUDED.cash,
			debt = EXCLUDED.debt,
			revenue = EXCLUDED.revenue,
			net_income = EXCLUDED.net_income,
			operating_cash_flow = EXCLUDED.operating_cash_flow,
			free_cash_flow = EXCLUDED.free_cash_flow,
			shares_outstanding = EXCLUDED.shares_outstanding,
			raw_data = EXCLUDED.raw_data
		RETURNING id`,
		snap.CompanyID, snap.PeriodEnd, snap.ReportType,
		snap.Assets, snap.Liabilities, snap.Equity, snap.Cash, snap.Debt,
		snap.Revenue, snap.NetIncome, snap.OperatingCashFlow, snap.FreeCashFlow,
		snap.SharesOutstanding, raw).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert snapshot %s: %w", snap.PeriodEnd, err)
	}
	return id, nil
}

func (s *PostgresStore) UpsertMarketData(ctx context.Context, m MarketData) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_data (company_id, market_cap, stock_price, last_updated)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (company_id) DO UPDATE SET
			market_cap = EXCLUDED.market_cap,
			stock_price = EXCLUDED.stock_price,
			last_updated = now()`,
		m.CompanyID, m.MarketCap, m.StockPrice)
	return err
}

func (s *PostgresStore) UpsertMetrics(ctx context.Context, m Metrics) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_metrics (
			company_id, snapshot_id, p_e_ratio, p_b_ratio,
			debt_to_equity, current_ratio, roe, difficulty_score
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (company_id, snapshot_id) DO UPDATE SET
			p_e_ratio = EXCLUDED.p_e_ratio,
			p_b_ratio = EXCLUDED.p_b_ratio,
			debt_to_equity = EXCLUDED.debt_to_equity,
			current_ratio = EXCLUDED.current_ratio,
			roe = EXCLUDED.roe,
			difficulty_score = EXCLUDED.difficulty_score`,
		m.CompanyID, m.SnapshotID, m.PE, m.PB,
		m.DebtToEquity, m.CurrentRatio, m.ROE, m.DifficultyScore)
	return err
}

func (s *PostgresStore) LogFetch(ctx context.Context, l FetchLog) error {
	var msg sql.NullString
	if l.ErrorMessage != "" {
		msg = sql.NullString{String: l.ErrorMessage, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO data_fetch_log (ticker, success, api_calls_used, error_message)
		VALUES ($1, $2, $3, $4)`,
		l.Ticker, l.Success, l.APICallsUsed, msg)
	return err
}

func (s *PostgresStore) APICallsToday(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(api_calls_used), 0)
		FROM data_fetch_log
		WHERE DATE(fetch_timestamp) = CURRENT_DATE AND success = true`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count api calls: %w", err)
	}
	return n, nil
}

// SaveChunks replaces every stored chunk, and vector, of the filings the
// chunks belong to.
func (s *PostgresStore) SaveChunks(ctx context.Context, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// A re-processed filing replaces its previous chunks and vectors.
	for _, f := range chunkFilings(chunks) {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM document_chunks WHERE ticker = $1 AND filing_date = $2`,
			f.Ticker, f.FilingDate); err != nil {
			return fmt.Errorf("failed to clear chunks of %s %s: %w", f.Ticker, f.FilingDate, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_chunks (
			chunk_id, ticker, filing_date, accession_number, section,
			chunk_index, text, word_count, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (chunk_id) DO UPDATE SET
			accession_number = EXCLUDED.accession_number,
			section = EXCLUDED.section,
			chunk_index = EXCLUDED.chunk_index,
			text = EXCLUDED.text,
			word_count = EXCLUDED.word_count,
			metadata = EXCLUDED.metadata,
			embedding = NULL,
			embedding_model = NULL`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		meta := []byte(c.Metadata)
		if len(meta) == 0 {
			meta = []byte(`{}`)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Ticker, c.FilingDate, c.Accession, c.Section,
			c.Index, c.Text, c.WordCount, meta); err != nil {
			return fmt.Errorf("failed to save chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListUnembedded(ctx context.Context, ticker, filingDate string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, ticker, filing_date::text, COALESCE(accession_number, ''),
			COALESCE(section, ''), chunk_index, text, word_count
		FROM document_chunks
		WHERE ticker = $1 AND filing_date = $2 AND embedding IS NULL
		ORDER BY chunk_index`, ticker, filingDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.Ticker, &c.FilingDate, &c.Accession, &c.Section, &c.Index, &c.Text, &c.WordCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveEmbeddings(ctx context.Context, embs []Embedding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range embs {
		res, err := tx.ExecContext(ctx, `
			UPDATE document_chunks SET embedding = $1, embedding_model = $2
			WHERE chunk_id = $3`,
			pgvector.NewVector(e.Vector), e.Model, e.ChunkID)
		if err != nil {
			return fmt.Errorf("failed to save embedding %s: %w", e.ChunkID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("chunk %s not found", e.ChunkID)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) Search(ctx context.Context, vector embeddings.Vector, tickers []string, k int) ([]SearchResult, error) {
	if tickers == nil {
		tickers = []string{}
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			chunk_id,
			ticker,
			filing_date::text,
			COALESCE(accession_number, ''),
			COALESCE(section, ''),
			chunk_index,
			text,
			word_count,
			1 - (embedding <=> $1) AS similarity
		FROM document_chunks
		WHERE embedding IS NOT NULL
			AND (cardinality($2::text[]) = 0 OR ticker = ANY($2))
		ORDER BY embedding <=> $1
		LIMIT $3
	`, pgvector.NewVector(vector), pq.Array(tickers), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		c := &r.Chunk
		if err := rows.Scan(&c.ID, &c.Ticker, &c.FilingDate, &c.Accession, &c.Section, &c.Index, &c.Text, &c.WordCount, &r.Score); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
