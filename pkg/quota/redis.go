package quota

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a shared counter backend with atomic increments, safe for
// multi-process deployments
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed counter store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the counter for the bucket
func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

// Add increments the counter atomically and refreshes its expiry
func (s *RedisStore) Add(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, amount)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
