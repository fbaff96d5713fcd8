package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// RedisCache stores embeddings in Redis, shared across processes
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed embedding cache
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{client: client, prefix: "emb:", ttl: ttl}
}

// Get returns the cached vector and whether it was found
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		// A corrupt entry behaves like a miss; the decorator overwrites it
		return nil, false, err
	}
	return vec, true, nil
}

// Set stores a vector under the key with the configured TTL
func (c *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, data, c.ttl).Err()
}
