package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"
)

type recordingSpan struct {
	noop.Span
	name     string
	attrs    []attribute.KeyValue
	ended    bool
	recorded error
}

func (s *recordingSpan) SetAttributes(attrs ...attribute.KeyValue) {
	s.attrs = append(s.attrs, attrs...)
}

func (s *recordingSpan) RecordError(err error, _ ...trace.EventOption) { s.recorded = err }

func (s *recordingSpan) End(_ ...trace.SpanEndOption) { s.ended = true }

type recordingTracer struct {
	embedded.Tracer
	spans []*recordingSpan
}

func (t *recordingTracer) Start(ctx context.Context, name string, _ ...trace.SpanStartOption) (context.Context, trace.Span) {
	span := &recordingSpan{name: name}
	t.spans = append(t.spans, span)
	return trace.ContextWithSpan(ctx, span), span
}

type recordingProvider struct {
	embedded.TracerProvider
	tracer *recordingTracer
}

func (p *recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer { return p.tracer }

func TestStartSpanRecordsNameAndAttributes(t *testing.T) {
	tracer := &recordingTracer{}
	otel.SetTracerProvider(&recordingProvider{tracer: tracer})
	defer otel.SetTracerProvider(noop.NewTracerProvider())

	_, span := StartSpan(context.Background(), "pipeline.step",
		attribute.String("workspace_id", "ws-1"))
	EndSpan(span, nil)

	require.Len(t, tracer.spans, 1)
	recorded := tracer.spans[0]
	assert.Equal(t, "pipeline.step", recorded.name)
	assert.True(t, recorded.ended)
	assert.Nil(t, recorded.recorded)
	require.Len(t, recorded.attrs, 1)
	assert.Equal(t, attribute.Key("workspace_id"), recorded.attrs[0].Key)
}

func TestEndSpanRecordsError(t *testing.T) {
	tracer := &recordingTracer{}
	otel.SetTracerProvider(&recordingProvider{tracer: tracer})
	defer otel.SetTracerProvider(noop.NewTracerProvider())

	_, span := StartSpan(context.Background(), "pipeline.step")
	EndSpan(span, errors.New("provider down"))

	require.Len(t, tracer.spans, 1)
	assert.True(t, tracer.spans[0].ended)
	assert.EqualError(t, tracer.spans[0].recorded, "provider down")
}

func TestStartSpanDegradesToNoop(t *testing.T) {
	otel.SetTracerProvider(noop.NewTracerProvider())

	ctx, span := StartSpan(context.Background(), "pipeline.step")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	EndSpan(span, nil)
}
