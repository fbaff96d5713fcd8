// Package quota implements the sliding hourly window limiter for messages,
// tokens and uploads.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
)

// Limits holds the per-hour budgets. Zero means unlimited.
type Limits struct {
	MessagesPerHour int64
	TokensPerHour   int64
	UploadsPerHour  int64
}

// For returns the budget for a resource
func (l Limits) For(resource models.QuotaResource) int64 {
	switch resource {
	case models.QuotaMessages:
		return l.MessagesPerHour
	case models.QuotaTokens:
		return l.TokensPerHour
	case models.QuotaUploads:
		return l.UploadsPerHour
	}
	return 0
}

// Store is the counter backend. Production backends must implement atomic
// increment semantics; the in-memory store is single-process only.
type Store interface {
	// Get returns the counter for the bucket
	Get(ctx context.Context, key string) (int64, error)
	// Add increments the counter and returns the new value. The bucket
	// expires after ttl.
	Add(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error)
}

// Limiter checks and records consumption against hourly buckets
type Limiter struct {
	store  Store
	limits Limits
	now    func() time.Time
}

// NewLimiter creates a quota limiter
func NewLimiter(store Store, limits Limits) *Limiter {
	return &Limiter{store: store, limits: limits, now: time.Now}
}

// WithClock overrides the clock (for tests)
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	return &Limiter{store: l.store, limits: l.limits, now: now}
}

// bucketKey is (scope_type, scope_id, resource, hour_floor)
func bucketKey(resource models.QuotaResource, scope models.QuotaScope, hour time.Time) string {
	return fmt.Sprintf("quota:%s:%s:%s:%d", scope.Type, scope.ID, resource, hour.Unix())
}

// Check reports whether one more unit of the resource is allowed. When
// denied, RetryAfterSeconds is the time until the next hour boundary.
func (l *Limiter) Check(ctx context.Context, resource models.QuotaResource, scope models.QuotaScope) (models.QuotaDecision, error) {
	limit := l.limits.For(resource)
	if limit <= 0 {
		return models.QuotaDecision{Allowed: true, Remaining: -1}, nil
	}

	now := l.now()
	hour := models.HourFloor(now)
	used, err := l.store.Get(ctx, bucketKey(resource, scope, hour))
	if err != nil {
		return models.QuotaDecision{}, err
	}

	remaining := limit - used
	if remaining > 0 {
		return models.QuotaDecision{Allowed: true, Remaining: remaining}, nil
	}
	retryAfter := int64(hour.Add(time.Hour).Sub(now).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	return models.QuotaDecision{Allowed: false, Remaining: 0, RetryAfterSeconds: retryAfter}, nil
}

// Record adds consumption to the current hourly bucket. Amounts are
// non-negative; the counter is monotonic within its hour.
func (l *Limiter) Record(ctx context.Context, resource models.QuotaResource, scope models.QuotaScope, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("quota amount must be non-negative, got %d", amount)
	}
	if amount == 0 {
		return nil
	}
	hour := models.HourFloor(l.now())
	// Buckets expire two hours after their window starts; one hour of slack
	// covers clock skew between processes
	_, err := l.store.Add(ctx, bucketKey(resource, scope, hour), amount, 2*time.Hour)
	return err
}
