// Package fmp is a client for the Financial Modeling Prep REST API.
package fmp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"balance-sheets/internal/retry"
)

const (
	DefaultBaseURL  = "https://financialmodelingprep.com/api/v3"
	defaultAttempts = 3
	defaultBackoff  = time.Second
	userAgent       = "Balance-Sheets-Backend/1.0"
)

// ErrNoData is returned when an endpoint answers with an empty list.
var ErrNoData = errors.New("fmp: no data returned")

// APIError is an error payload returned with a 200 status.
type APIError struct {
	Message string
}

func (e *APIError) Error() string { return "fmp api error: " + e.Message }

// StatusError is a non-2xx response.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fmp %s: unexpected status %d", e.Endpoint, e.Code)
}

type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	attempts int
	backoff  time.Duration
	log      *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetry sets the attempt count and the base backoff delay.
func WithRetry(attempts int, base time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.backoff = base
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("FMP_API_KEY is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// get returns the JSON body of endpoint. Transport failures and bad statuses
// are retried with exponential backoff; an API error payload is not.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (gjson.Result, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)
	u := c.baseURL + "/" + endpoint + "?" + params.Encode()

	var body []byte
	err := retry.Do(ctx, c.attempts, c.backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &StatusError{Endpoint: endpoint, Code: resp.StatusCode}
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if !gjson.ValidBytes(b) {
			return fmt.Errorf("fmp %s: invalid json response", endpoint)
		}
		if msg := gjson.GetBytes(b, "Error Message"); msg.Exists() {
			return retry.Permanent(&APIError{Message: msg.String()})
		}
		body = b
		return nil
	}, func(attempt int, err error) {
		c.log.Warn("fmp request failed", "endpoint", endpoint, "attempt", attempt+1, "max_attempts", c.attempts, "err", err)
	})
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.ParseBytes(body), nil
}

// first returns the first element of a list endpoint.
func (c *Client) first(ctx context.Context, endpoint string, params url.Values) (gjson.Result, error) {
	res, err := c.get(ctx, endpoint, params)
	if err != nil {
		return gjson.Result{}, err
	}
	if res.IsArray() {
		res = res.Get("0")
	}
	if !res.IsObject() {
		return gjson.Result{}, fmt.Errorf("%s: %w", endpoint, ErrNoData)
	}
	return res, nil
}

func (c *Client) Profile(ctx context.Context, ticker string) (gjson.Result, error) {
	return c.first(ctx, "profile/"+url.PathEscape(ticker), nil)
}

func (c *Client) Quote(ctx context.Context, ticker string) (gjson.Result, error) {
	return c.first(ctx, "quote/"+url.PathEscape(ticker), nil)
}

// StatementKind names a financial statement endpoint.
type StatementKind string

const (
	BalanceSheet    StatementKind = "balance-sheet-statement"
	IncomeStatement StatementKind = "income-statement"
	CashFlow        StatementKind = "cash-flow-statement"
	KeyMetrics      StatementKind = "key-metrics"
)

// Period selects annual or quarterly statements.
type Period string

const (
	Annual  Period = "annual"
	Quarter Period = "quarter"
)

// Statements returns up to limit statements, newest first.
func (c *Client) Statements(ctx context.Context, kind StatementKind, ticker string, period Period, limit int) ([]gjson.Result, error) {
	params := url.Values{}
	params.Set("period", string(period))
	params.Set("limit", strconv.Itoa(limit))
	res, err := c.get(ctx, string(kind)+"/"+url.PathEscape(ticker), params)
	if err != nil {
		return nil, err
	}
	return res.Array(), nil
}

// Listing is one row of the stock list.
type Listing struct {
	Symbol   string
	Name     string
	Exchange string
	Type     string
}

func (c *Client) StockList(ctx context.Context) ([]Listing, error) {
	res, err := c.get(ctx, "stock/list", nil)
	if err != nil {
		return nil, err
	}
	var out []Listing
	res.ForEach(func(_, v gjson.Result) bool {
		out = append(out, Listing{
			Symbol:   v.Get("symbol").String(),
			Name:     v.Get("name").String(),
			Exchange: v.Get("exchangeShortName").String(),
			Type:     v.Get("type").String(),
		})
		return true
	})
	return out, nil
}

// USExchanges are the exchanges the company ETL covers.
var USExchanges = []string{"NYSE", "NASDAQ", "AMEX", "OTC", "OTCBB", "PINK", "OTCQX", "OTCQB"}

// USTickers returns the symbols of common stocks listed on US exchanges.
func (c *Client) USTickers(ctx context.Context) ([]string, error) {
	list, err := c.StockList(ctx)
	if err != nil {
		return nil, err
	}
	return FilterUS(list), nil
}

func FilterUS(list []Listing) []string {
	us := make(map[string]bool, len(USExchanges))
	for _, e := range USExchanges {
		us[e] = true
	}
	var out []string
	for _, l := range list {
		if l.Symbol == "" || !us[l.Exchange] || l.Type != "stock" {
			continue
		}
		out = append(out, l.Symbol)
	}
	return out
}
