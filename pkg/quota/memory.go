package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a single-process counter backend intended for tests and
// local development. Multi-process deployments need the Redis store.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	now     func() time.Time
}

type memoryBucket struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory counter store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*memoryBucket), now: time.Now}
}

// Get returns the counter for the bucket
func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evict()
	if b, ok := s.buckets[key]; ok {
		return b.count, nil
	}
	return 0, nil
}

// Add increments the counter and returns the new value
func (s *MemoryStore) Add(_ context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evict()
	b, ok := s.buckets[key]
	if !ok {
		b = &memoryBucket{expiresAt: s.now().Add(ttl)}
		s.buckets[key] = b
	}
	b.count += amount
	return b.count, nil
}

func (s *MemoryStore) evict() {
	now := s.now()
	for key, b := range s.buckets {
		if now.After(b.expiresAt) {
			delete(s.buckets, key)
		}
	}
}
