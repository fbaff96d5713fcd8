package cache

import (
	"context"

	"github.com/SaintWyss/rag-corp-sub003/pkg/embedding"
	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
)

// CachedService is a cache-aside decorator around any embedding service.
// Cache faults are logged and swallowed: the pipeline continues against the
// underlying provider.
type CachedService struct {
	inner   embedding.Service
	cache   Cache
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewCachedService wraps inner with the given cache backend
func NewCachedService(inner embedding.Service, cache Cache, logger observability.Logger, metrics observability.MetricsClient) *CachedService {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &CachedService{inner: inner, cache: cache, logger: logger, metrics: metrics}
}

// ModelID returns the wrapped provider's model identifier
func (s *CachedService) ModelID() string { return s.inner.ModelID() }

// Dimension returns the wrapped provider's vector dimension
func (s *CachedService) Dimension() int { return s.inner.Dimension() }

// EmbedQuery embeds a single query with cache-aside lookup
func (s *CachedService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := embedding.ValidateInputs([]string{text}); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbedding, "invalid query input")
	}

	key := BuildKey(s.inner.ModelID(), embedding.TaskRetrievalQuery, text)
	if vec, ok := s.lookup(ctx, key); ok {
		return vec, nil
	}

	vec, err := s.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, vec)
	return vec, nil
}

// EmbedBatch embeds a batch with per-text dedupe: texts that miss the cache
// are requested once per unique text, then fanned back so the output has the
// same length and order as the input.
func (s *CachedService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := embedding.ValidateInputs(texts); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbedding, "invalid batch input")
	}

	results := make([][]float32, len(texts))
	keys := make([]string, len(texts))

	// missing maps each unique missing text to the result positions it fills
	missing := make(map[string][]int)
	var missingOrder []string

	for i, text := range texts {
		keys[i] = BuildKey(s.inner.ModelID(), embedding.TaskRetrievalDocument, text)
		if vec, ok := s.lookup(ctx, keys[i]); ok {
			results[i] = vec
			continue
		}
		if _, seen := missing[text]; !seen {
			missingOrder = append(missingOrder, text)
		}
		missing[text] = append(missing[text], i)
	}

	if len(missingOrder) == 0 {
		return results, nil
	}

	vecs, err := s.inner.EmbedBatch(ctx, missingOrder)
	if err != nil {
		return nil, err
	}
	if err := embedding.ValidateBatch(missingOrder, vecs, s.inner.Dimension()); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbedding, "provider returned invalid batch")
	}

	for j, text := range missingOrder {
		for _, i := range missing[text] {
			results[i] = vecs[j]
		}
		s.store(ctx, keys[missing[text][0]], vecs[j])
	}
	return results, nil
}

func (s *CachedService) lookup(ctx context.Context, key string) ([]float32, bool) {
	vec, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("embedding cache get failed", map[string]interface{}{"error": err.Error()})
		s.metrics.RecordCacheOperation("get", false, 0)
		return nil, false
	}
	if ok {
		s.metrics.IncrementCounterWithLabels("cache_hit", 1, map[string]string{"cache": "embedding"})
		return vec, true
	}
	s.metrics.IncrementCounterWithLabels("cache_miss", 1, map[string]string{"cache": "embedding"})
	return nil, false
}

func (s *CachedService) store(ctx context.Context, key string, vec []float32) {
	if err := s.cache.Set(ctx, key, vec); err != nil {
		s.logger.Warn("embedding cache set failed", map[string]interface{}{"error": err.Error()})
		s.metrics.RecordCacheOperation("set", false, 0)
	}
}
