package embedding

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
	"github.com/SaintWyss/rag-corp-sub003/pkg/retry"
)

// ResilientService wraps a provider with request rate limiting, classified
// retries and a circuit breaker. It satisfies Service, so it composes with
// the cache decorator.
type ResilientService struct {
	inner   Service
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	retryer *retry.Retryer
	logger  observability.Logger
}

// ResilientConfig configures the resilience wrapper
type ResilientConfig struct {
	RequestsPerMinute int
	Retry             retry.Config
	BreakerName       string
}

// NewResilientService wraps inner with rate limiting, retry and breaker
func NewResilientService(inner Service, cfg ResilientConfig, logger observability.Logger, metrics observability.MetricsClient) *ResilientService {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 300
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = "embedding"
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.BreakerName,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})

	return &ResilientService{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), cfg.RequestsPerMinute/10+1),
		breaker: breaker,
		retryer: retry.New(cfg.Retry, logger, metrics),
		logger:  logger,
	}
}

// ModelID returns the wrapped provider's model identifier
func (s *ResilientService) ModelID() string { return s.inner.ModelID() }

// Dimension returns the wrapped provider's vector dimension
func (s *ResilientService) Dimension() int { return s.inner.Dimension() }

// EmbedQuery embeds a single text through the resilience stack
func (s *ResilientService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds a batch through the resilience stack
func (s *ResilientService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return s.embed(ctx, texts)
}

func (s *ResilientService) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbedding, "rate limiter interrupted")
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		var vecs [][]float32
		err := s.retryer.Do(ctx, "embed_batch", func(ctx context.Context) error {
			var innerErr error
			vecs, innerErr = s.inner.EmbedBatch(ctx, texts)
			return innerErr
		})
		return vecs, err
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, apperrors.Wrap(err, apperrors.CodeEmbedding, "embedding provider circuit open")
		}
		return nil, err
	}
	return result.([][]float32), nil
}
