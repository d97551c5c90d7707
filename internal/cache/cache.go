package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Cache provides search result caching
type Cache interface {
	// GetQueryResult retrieves a cached query result by key
	// Returns nil if not found
	GetQueryResult(ctx context.Context, key string) (*QueryResult, error)

	// SetQueryResult stores a query result with TTL
	SetQueryResult(ctx context.Context, key string, result *QueryResult, ttl time.Duration) error

	// InvalidateTicker removes cached queries that may involve ticker
	InvalidateTicker(ctx context.Context, ticker string) error

	// Close closes the cache connection
	Close() error
}

// QueryResult represents a cached search response
type QueryResult struct {
	Query   string   `json:"query"`
	Tickers []string `json:"tickers,omitempty"`
	Sources []Source `json:"sources"`
}

// Source represents a 10-K chunk in search results
type Source struct {
	ChunkID    string  `json:"chunk_id"`
	Ticker     string  `json:"ticker"`
	FilingDate string  `json:"filing_date"`
	Section    string  `json:"section"`
	Score      float32 `json:"score"`
	Preview    string  `json:"preview"` // Truncated text preview
}

// GenerateCacheKey hashes the normalized query, ticker filter and k.
func GenerateCacheKey(query string, tickers []string, k int) string {
	norm := make([]string, len(tickers))
	for i, t := range tickers {
		norm[i] = strings.ToUpper(strings.TrimSpace(t))
	}
	sort.Strings(norm)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d", strings.ToLower(strings.TrimSpace(query)), strings.Join(norm, ","), k)
	return hex.EncodeToString(h.Sum(nil))
}

// anyTicker indexes queries without a ticker filter.
const anyTicker = "*"

// indexTickers lists the upper-cased tickers a result filtered on or
// returned. Unfiltered results are indexed under anyTicker as well.
func indexTickers(result *QueryResult) []string {
	seen := map[string]bool{}
	var out []string
	add := func(t string) {
		t = strings.ToUpper(t)
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	if len(result.Tickers) == 0 {
		add(anyTicker)
	}
	for _, t := range result.Tickers {
		add(t)
	}
	for _, s := range result.Sources {
		add(s.Ticker)
	}
	return out
}
