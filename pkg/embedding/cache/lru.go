package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUCache is an in-process cache. Process-local only: suitable for the
// worker's hot set and for tests.
type LRUCache struct {
	inner *lru.Cache[string, []float32]
}

// NewLRUCache creates an LRU cache holding up to size entries
func NewLRUCache(size int) (*LRUCache, error) {
	if size <= 0 {
		size = 4096
	}
	inner, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{inner: inner}, nil
}

// Get returns the cached vector and whether it was found
func (c *LRUCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	vec, ok := c.inner.Get(key)
	return vec, ok, nil
}

// Set stores a vector under the key
func (c *LRUCache) Set(_ context.Context, key string, vec []float32) error {
	c.inner.Add(key, vec)
	return nil
}
