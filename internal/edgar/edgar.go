// Package edgar downloads 10-K filings from SEC EDGAR.
package edgar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"balance-sheets/internal/filing"
)

const (
	DefaultTickersURL     = "https://www.sec.gov/files/company_tickers.json"
	DefaultSubmissionsURL = "https://data.sec.gov/submissions"
	DefaultArchivesURL    = "https://www.sec.gov/Archives/edgar/data"

	tickerMapKey = "company_tickers"
	tickerMapTTL = 24 * time.Hour
	htmlSniffLen = 1000
)

var (
	ErrTickerNotFound = errors.New("edgar: ticker not found")
	ErrNoFiling       = errors.New("edgar: no 10-K filing found")
)

// Endpoints are the SEC URLs the client talks to.
type Endpoints struct {
	Tickers     string
	Submissions string
	Archives    string
}

// FilingRef locates one filing in the archive.
type FilingRef struct {
	Ticker          string
	CIK             string // zero-padded to 10 digits
	Accession       string // e.g. 0000320193-24-000123
	FilingDate      string // YYYY-MM-DD
	PrimaryDocument string
}

type Client struct {
	endpoints Endpoints
	userAgent string
	http      *http.Client
	cache     *gocache.Cache
	log       *slog.Logger
}

type Option func(*Client)

func WithEndpoints(e Endpoints) Option {
	return func(c *Client) { c.endpoints = e }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New returns a client. The SEC rejects requests without a descriptive
// User-Agent that includes a contact address.
func New(userAgent string, opts ...Option) (*Client, error) {
	if userAgent == "" {
		return nil, fmt.Errorf("SEC_USER_AGENT is required")
	}
	c := &Client{
		endpoints: Endpoints{
			Tickers:     DefaultTickersURL,
			Submissions: DefaultSubmissionsURL,
			Archives:    DefaultArchivesURL,
		},
		userAgent: userAgent,
		http:      &http.Client{Timeout: 2 * time.Minute},
		cache:     gocache.New(tickerMapTTL, time.Hour),
		log:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("SEC request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("SEC returned status %d for %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

func (c *Client) tickerMap(ctx context.Context) (map[string]string, error) {
	if m, ok := c.cache.Get(tickerMapKey); ok {
		return m.(map[string]string), nil
	}

	body, err := c.fetch(ctx, c.endpoints.Tickers)
	if err != nil {
		return nil, err
	}
	// { "0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."}, ... }
	var raw map[string]struct {
		CIK    int64  `json:"cik_str"`
		Ticker string `json:"ticker"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse ticker mapping: %w", err)
	}
	m := make(map[string]string, len(raw))
	for _, e := range raw {
		m[strings.ToUpper(e.Ticker)] = fmt.Sprintf("%010d", e.CIK)
	}
	c.cache.SetDefault(tickerMapKey, m)
	return m, nil
}

// LookupCIK returns the zero-padded CIK of ticker.
func (c *Client) LookupCIK(ctx context.Context, ticker string) (string, error) {
	m, err := c.tickerMap(ctx)
	if err != nil {
		return "", err
	}
	cik, ok := m[strings.ToUpper(ticker)]
	if !ok {
		return "", fmt.Errorf("%s: %w", ticker, ErrTickerNotFound)
	}
	return cik, nil
}

type submissions struct {
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// Recent10Ks returns up to n 10-K filings of ticker, newest first.
func (c *Client) Recent10Ks(ctx context.Context, ticker string, n int) ([]FilingRef, error) {
	cik, err := c.LookupCIK(ctx, ticker)
	if err != nil {
		return nil, err
	}
	body, err := c.fetch(ctx, fmt.Sprintf("%s/CIK%s.json", c.endpoints.Submissions, cik))
	if err != nil {
		return nil, err
	}
	var sub submissions
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, fmt.Errorf("failed to parse submissions: %w", err)
	}

	recent := sub.Filings.Recent
	var refs []FilingRef
	for i, form := range recent.Form {
		if form != filing.DocumentType {
			continue
		}
		if i >= len(recent.AccessionNumber) || i >= len(recent.FilingDate) {
			break
		}
		ref := FilingRef{
			Ticker:     strings.ToUpper(ticker),
			CIK:        cik,
			Accession:  recent.AccessionNumber[i],
			FilingDate: recent.FilingDate[i],
		}
		if i < len(recent.PrimaryDocument) {
			ref.PrimaryDocument = recent.PrimaryDocument[i]
		}
		refs = append(refs, ref)
		if len(refs) >= n {
			break
		}
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, ErrNoFiling)
	}
	return refs, nil
}

// TextURL is the full submission text file of the filing.
func (c *Client) TextURL(ref FilingRef) string {
	return fmt.Sprintf("%s/%s/%s/%s.txt",
		c.endpoints.Archives,
		strings.TrimLeft(ref.CIK, "0"),
		strings.ReplaceAll(ref.Accession, "-", ""),
		ref.Accession,
	)
}

// FetchFiling downloads the filing and returns the text of its main document.
func (c *Client) FetchFiling(ctx context.Context, ref FilingRef) (filing.Filing, error) {
	url := c.TextURL(ref)
	c.log.Info("downloading filing", "ticker", ref.Ticker, "url", url)

	body, err := c.fetch(ctx, url)
	if err != nil {
		return filing.Filing{}, err
	}
	text, err := ExtractText(string(body))
	if err != nil {
		return filing.Filing{}, fmt.Errorf("%s %s: %w", ref.Ticker, ref.Accession, err)
	}
	c.log.Info("extracted filing text", "ticker", ref.Ticker, "downloaded", len(body), "chars", len(text))

	return filing.Filing{
		Ticker:     ref.Ticker,
		FilingDate: ref.FilingDate,
		Accession:  ref.Accession,
		Text:       text,
	}, nil
}

// Latest10K fetches the most recent 10-K of ticker.
func (c *Client) Latest10K(ctx context.Context, ticker string) (filing.Filing, error) {
	refs, err := c.Recent10Ks(ctx, ticker, 1)
	if err != nil {
		return filing.Filing{}, err
	}
	return c.FetchFiling(ctx, refs[0])
}
