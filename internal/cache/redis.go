package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix = "search:result:"

	// Set of cached result keys touching a ticker
	tickerKeyPrefix = "search:ticker:"
)

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache client
func NewRedisCache(addr, password string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisCache{
		client: client,
	}, nil
}

// GetQueryResult retrieves a cached query result by key
func (c *RedisCache) GetQueryResult(ctx context.Context, key string) (*QueryResult, error) {
	data, err := c.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, err
	}

	var result QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetQueryResult stores a query result with TTL and indexes it under every
// ticker it filtered on or returned.
func (c *RedisCache) SetQueryResult(ctx context.Context, key string, result *QueryResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, cacheKeyPrefix+key, data, ttl)
	for _, t := range indexTickers(result) {
		pipe.SAdd(ctx, tickerKeyPrefix+t, key)
		pipe.Expire(ctx, tickerKeyPrefix+t, ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateTicker removes cached queries that filtered on or returned
// ticker, and every unfiltered query.
func (c *RedisCache) InvalidateTicker(ctx context.Context, ticker string) error {
	indexes := []string{tickerKeyPrefix + strings.ToUpper(ticker), tickerKeyPrefix + anyTicker}

	pipe := c.client.Pipeline()
	for _, idx := range indexes {
		keys, err := c.client.SMembers(ctx, idx).Result()
		if err != nil {
			return err
		}
		for _, k := range keys {
			pipe.Del(ctx, cacheKeyPrefix+k)
		}
		pipe.Del(ctx, idx)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the cache connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
