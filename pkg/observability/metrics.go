package observability

import "time"

// MetricsClient defines the interface for metrics collection
type MetricsClient interface {
	RecordCounter(name string, value float64, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)
	RecordTimer(name string, duration time.Duration, labels map[string]string)

	// RecordCacheOperation records a cache get/set with its outcome
	RecordCacheOperation(operation string, success bool, durationSeconds float64)
	// RecordOperation records a component-level operation with its outcome
	RecordOperation(component string, operation string, success bool, durationSeconds float64, labels map[string]string)

	IncrementCounter(name string, value float64)
	IncrementCounterWithLabels(name string, value float64, labels map[string]string)

	Close() error
}
