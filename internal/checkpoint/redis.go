package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "checkpoint:"

// RedisStore keeps one hash per namespace.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string) (*RedisStore, error) {
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
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Done(ctx context.Context, ns string, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := s.client.HMGet(ctx, keyPrefix+ns, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", ns, err)
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		out[keys[i]] = []byte(str)
	}
	return out, nil
}

func (s *RedisStore) Commit(ctx context.Context, ns string, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(entries))
	for k, v := range entries {
		fields[k] = v
	}
	if err := s.client.HSet(ctx, keyPrefix+ns, fields).Err(); err != nil {
		return fmt.Errorf("commit checkpoint %s: %w", ns, err)
	}
	return nil
}

func (s *RedisStore) Reset(ctx context.Context, ns string) error {
	return s.client.Del(ctx, keyPrefix+ns).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
