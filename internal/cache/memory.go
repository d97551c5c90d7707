package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache keeps query results in process. The query service falls back
// to it when Redis is not configured or unreachable, so results are not
// shared between replicas.
type MemoryCache struct {
	items *gocache.Cache

	mu      sync.Mutex
	tickers map[string]map[string]struct{}
}

func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{
		items:   gocache.New(gocache.NoExpiration, cleanupInterval),
		tickers: make(map[string]map[string]struct{}),
	}
}

func (c *MemoryCache) GetQueryResult(_ context.Context, key string) (*QueryResult, error) {
	v, ok := c.items.Get(key)
	if !ok {
		return nil, nil
	}
	r := v.(QueryResult)
	return &r, nil
}

func (c *MemoryCache) SetQueryResult(_ context.Context, key string, result *QueryResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items.Set(key, *result, ttl)
	for _, t := range indexTickers(result) {
		keys, ok := c.tickers[t]
		if !ok {
			keys = make(map[string]struct{})
			c.tickers[t] = keys
		}
		keys[key] = struct{}{}
	}
	return nil
}

func (c *MemoryCache) InvalidateTicker(_ context.Context, ticker string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, idx := range []string{strings.ToUpper(ticker), anyTicker} {
		for key := range c.tickers[idx] {
			c.items.Delete(key)
		}
		delete(c.tickers, idx)
	}
	return nil
}

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items.Flush()
	c.tickers = make(map[string]map[string]struct{})
	return nil
}
