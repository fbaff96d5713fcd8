package observability

import "time"

// NoopLogger discards all log output. Used in tests and as a safe default.
type NoopLogger struct{}

// NewNoopLogger creates a logger that discards everything
func NewNoopLogger() Logger { return &NoopLogger{} }

func (l *NoopLogger) Debug(msg string, fields map[string]interface{}) {}
func (l *NoopLogger) Info(msg string, fields map[string]interface{})  {}
func (l *NoopLogger) Warn(msg string, fields map[string]interface{})  {}
func (l *NoopLogger) Error(msg string, fields map[string]interface{}) {}
func (l *NoopLogger) Fatal(msg string, fields map[string]interface{}) {}
func (l *NoopLogger) WithPrefix(prefix string) Logger                 { return l }
func (l *NoopLogger) With(fields map[string]interface{}) Logger       { return l }

// NoopMetricsClient discards all metrics
type NoopMetricsClient struct{}

// NewNoopMetricsClient creates a metrics client that discards everything
func NewNoopMetricsClient() MetricsClient { return &NoopMetricsClient{} }

func (m *NoopMetricsClient) RecordCounter(name string, value float64, labels map[string]string)   {}
func (m *NoopMetricsClient) RecordGauge(name string, value float64, labels map[string]string)     {}
func (m *NoopMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {}
func (m *NoopMetricsClient) RecordTimer(name string, duration time.Duration, labels map[string]string) {
}
func (m *NoopMetricsClient) RecordCacheOperation(operation string, success bool, durationSeconds float64) {
}
func (m *NoopMetricsClient) RecordOperation(component string, operation string, success bool, durationSeconds float64, labels map[string]string) {
}
func (m *NoopMetricsClient) IncrementCounter(name string, value float64) {}
func (m *NoopMetricsClient) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
}
func (m *NoopMetricsClient) Close() error { return nil }
