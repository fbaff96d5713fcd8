package cache

import "context"

// Cache is the embedding cache port. Implementations are best-effort:
// callers treat errors as misses and never fail the pipeline on them.
type Cache interface {
	// Get returns the cached vector and whether it was found
	Get(ctx context.Context, key string) ([]float32, bool, error)
	// Set stores a vector under the key
	Set(ctx context.Context, key string, vec []float32) error
}
