// Package retry executes outbound provider calls with classified,
// exponentially backed-off retries. Permanent faults fail fast; transient
// faults are retried with jitter up to the attempt budget.
package retry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
)

// Config contains retry configuration
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultConfig returns the retry defaults used across providers
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Retryer wraps operations with the retry policy
type Retryer struct {
	config  Config
	logger  observability.Logger
	metrics observability.MetricsClient
}

// New creates a Retryer. Nil logger or metrics fall back to no-ops.
func New(config Config, logger observability.Logger, metrics observability.MetricsClient) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultConfig().BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultConfig().MaxDelay
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &Retryer{config: config, logger: logger, metrics: metrics}
}

// Do runs fn, retrying transient failures. The original error is returned
// once the attempt budget is exhausted. Messages log the classification and
// sleep, never payloads.
func (r *Retryer) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.config.BaseDelay
	bo.MaxInterval = r.config.MaxDelay
	bo.MaxElapsedTime = 0 // attempts bound the retry loop, not wall time

	var attempt int64

	wrapped := func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !apperrors.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, sleep time.Duration) {
		n := atomic.AddInt64(&attempt, 1)
		r.metrics.IncrementCounterWithLabels("retry_attempts", 1, map[string]string{"operation": operation})
		r.logger.Warn("retrying after transient failure", map[string]interface{}{
			"operation": operation,
			"attempt":   n,
			"reason":    "transient",
			"sleep_ms":  sleep.Milliseconds(),
			"error":     err.Error(),
		})
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(r.config.MaxAttempts-1)),
		ctx,
	)
	return backoff.RetryNotify(wrapped, policy, notify)
}
