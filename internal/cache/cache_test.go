package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisCache(mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func result(query string, filter []string, sourceTickers ...string) *QueryResult {
	r := &QueryResult{Query: query, Tickers: filter}
	for i, t := range sourceTickers {
		r.Sources = append(r.Sources, Source{
			ChunkID:    t + "_2024-11-01_" + string(rune('0'+i)),
			Ticker:     t,
			FilingDate: "2024-11-01",
			Section:    "Item 7 - Management's Discussion and Analysis",
			Score:      0.8,
			Preview:    "Revenue grew...",
		})
	}
	return r
}

func TestGenerateCacheKey(t *testing.T) {
	base := GenerateCacheKey("What are the risks?", []string{"AAPL", "MSFT"}, 5)

	assert.Len(t, base, 64)
	assert.Equal(t, base, GenerateCacheKey("  what are the RISKS? ", []string{"msft", "aapl"}, 5))
	assert.NotEqual(t, base, GenerateCacheKey("What are the risks?", []string{"AAPL"}, 5))
	assert.NotEqual(t, base, GenerateCacheKey("What are the risks?", []string{"AAPL", "MSFT"}, 10))
	assert.NotEqual(t, base, GenerateCacheKey("What is the debt?", []string{"AAPL", "MSFT"}, 5))
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	got, err := c.GetQueryResult(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	want := result("risks", []string{"AAPL"}, "AAPL")
	require.NoError(t, c.SetQueryResult(ctx, "k1", want, time.Minute))

	got, err = c.GetQueryResult(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	mr.FastForward(2 * time.Minute)
	got, err = c.GetQueryResult(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCacheInvalidateTicker(t *testing.T) {
	c, _ := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetQueryResult(ctx, "aapl-only", result("q1", []string{"AAPL"}, "AAPL"), time.Hour))
	require.NoError(t, c.SetQueryResult(ctx, "msft-only", result("q2", []string{"MSFT"}, "MSFT"), time.Hour))
	require.NoError(t, c.SetQueryResult(ctx, "unfiltered", result("q3", nil, "MSFT"), time.Hour))
	require.NoError(t, c.SetQueryResult(ctx, "returned-aapl", result("q4", []string{"MSFT", "AAPL"}, "AAPL"), time.Hour))

	require.NoError(t, c.InvalidateTicker(ctx, "aapl"))

	for key, wantCached := range map[string]bool{
		"aapl-only":     false,
		"returned-aapl": false,
		"unfiltered":    false,
		"msft-only":     true,
	} {
		got, err := c.GetQueryResult(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, wantCached, got != nil, key)
	}

	// nothing left to drop
	assert.NoError(t, c.InvalidateTicker(ctx, "AAPL"))
}

func TestRedisCacheUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(addr, "")
	assert.Error(t, err)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	got, err := c.GetQueryResult(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	want := result("risks", []string{"AAPL"}, "AAPL")
	require.NoError(t, c.SetQueryResult(ctx, "k1", want, time.Hour))
	got, err = c.GetQueryResult(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, c.SetQueryResult(ctx, "short", want, time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	got, err = c.GetQueryResult(ctx, "short")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Close())
	got, err = c.GetQueryResult(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryCacheInvalidateTicker(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	require.NoError(t, c.SetQueryResult(ctx, "aapl-only", result("q1", []string{"AAPL"}, "AAPL"), time.Hour))
	require.NoError(t, c.SetQueryResult(ctx, "msft-only", result("q2", []string{"MSFT"}, "MSFT"), time.Hour))
	require.NoError(t, c.SetQueryResult(ctx, "unfiltered", result("q3", nil, "MSFT"), time.Hour))
	require.NoError(t, c.SetQueryResult(ctx, "returned-aapl", result("q4", []string{"MSFT", "AAPL"}, "AAPL"), time.Hour))

	require.NoError(t, c.InvalidateTicker(ctx, "aapl"))

	for key, wantCached := range map[string]bool{
		"aapl-only":     false,
		"returned-aapl": false,
		"unfiltered":    false,
		"msft-only":     true,
	} {
		got, err := c.GetQueryResult(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, wantCached, got != nil, key)
	}
}

func TestIndexTickers(t *testing.T) {
	assert.Equal(t, []string{"*", "MSFT"}, indexTickers(result("q", nil, "msft", "MSFT")))
	assert.Equal(t, []string{"AAPL", "MSFT"}, indexTickers(result("q", []string{"aapl"}, "MSFT", "AAPL")))
}
