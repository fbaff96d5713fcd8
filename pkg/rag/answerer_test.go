package rag

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/SaintWyss/rag-corp-sub003/pkg/embedding"
	"github.com/SaintWyss/rag-corp-sub003/pkg/llm"
	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
	"github.com/SaintWyss/rag-corp-sub003/pkg/prompts"
)

func newTestAnswerer(dense []models.RetrievedChunk, llmService llm.Service) *Answerer {
	repo := &stubSearchRepo{dense: dense}
	searcher := NewSearcher(embedding.NewFakeService(8), repo, nil, SearcherConfig{TopK: 5})
	return NewAnswerer(
		nil, searcher, nil, nil,
		NewContextBuilder(8000),
		llmService,
		prompts.NewLoader(prompts.DefaultFS(), nil),
		nil, nil,
		AnswererConfig{PromptVersion: "v1", Language: "es"},
	)
}

func readyChunk(title, content string) models.RetrievedChunk {
	return models.RetrievedChunk{
		Chunk:         models.Chunk{ID: uuid.New(), DocumentID: uuid.New(), Content: content},
		Score:         0.9,
		DocumentTitle: title,
	}
}

func TestAnswerer_EmptyRetrievalSkipsLLM(t *testing.T) {
	// An LLM that always errors proves the fallback path never calls it
	answerer := newTestAnswerer(nil, &llm.FakeService{Err: assert.AnError})

	result, err := answerer.Answer(context.Background(), AnswerRequest{
		WorkspaceID: uuid.New(),
		Query:       "¿cuántos días de vacaciones?",
	})
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, result.Answer)
	assert.Empty(t, result.Sources)
	assert.NotEmpty(t, result.ConversationID)
}

func TestAnswerer_AnswersWithSources(t *testing.T) {
	chunks := []models.RetrievedChunk{
		readyChunk("policy.pdf", "los empleados tienen 22 días de vacaciones"),
	}
	answerer := newTestAnswerer(chunks, &llm.FakeService{FixedText: "22 días. FUENTES: [S1]"})

	result, err := answerer.Answer(context.Background(), AnswerRequest{
		WorkspaceID:    uuid.New(),
		Query:          "¿cuántos días de vacaciones?",
		ConversationID: "conv-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "22 días. FUENTES: [S1]", result.Answer)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, 1, result.Sources[0].Index)
	assert.Equal(t, "policy.pdf", result.Sources[0].DocumentTitle)
	assert.Equal(t, "conv-1", result.ConversationID)
}

func TestAnswerer_EmptyQueryIsValidationError(t *testing.T) {
	answerer := newTestAnswerer(nil, llm.NewFakeService())
	_, err := answerer.Answer(context.Background(), AnswerRequest{WorkspaceID: uuid.New()})
	require.Error(t, err)
}

func collectEvents(t *testing.T, events <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var collected []StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return collected
			}
			collected = append(collected, event)
		case <-timeout:
			t.Fatal("stream did not terminate")
		}
	}
}

func TestAnswerStream_OrderedAndConcatenationMatchesDone(t *testing.T) {
	chunks := []models.RetrievedChunk{
		readyChunk("policy.pdf", "los empleados tienen 22 días de vacaciones"),
	}
	answerer := newTestAnswerer(chunks, &llm.FakeService{FixedText: "la respuesta es 22 días"})

	events, err := answerer.AnswerStream(context.Background(), AnswerRequest{
		WorkspaceID: uuid.New(),
		Query:       "¿cuántos días de vacaciones?",
	})
	require.NoError(t, err)

	collected := collectEvents(t, events)
	require.GreaterOrEqual(t, len(collected), 3)
	assert.Equal(t, EventSources, collected[0].Type)
	require.Len(t, collected[0].Sources, 1)

	last := collected[len(collected)-1]
	require.Equal(t, EventDone, last.Type)

	var concat strings.Builder
	for _, event := range collected[1 : len(collected)-1] {
		require.Equal(t, EventToken, event.Type)
		concat.WriteString(event.Token)
	}
	assert.Equal(t, last.Answer, concat.String())
	assert.Equal(t, "la respuesta es 22 días", last.Answer)
}

func TestAnswerStream_EmptyContextStreamsFallback(t *testing.T) {
	answerer := newTestAnswerer(nil, &llm.FakeService{Err: assert.AnError})

	events, err := answerer.AnswerStream(context.Background(), AnswerRequest{
		WorkspaceID: uuid.New(),
		Query:       "¿hola?",
	})
	require.NoError(t, err)

	collected := collectEvents(t, events)
	require.Len(t, collected, 3)
	assert.Equal(t, EventSources, collected[0].Type)
	assert.Empty(t, collected[0].Sources)
	assert.Equal(t, EventToken, collected[1].Type)
	assert.Equal(t, FallbackAnswer, collected[1].Token)
	assert.Equal(t, EventDone, collected[2].Type)
	assert.Equal(t, FallbackAnswer, collected[2].Answer)
}

// gatedService hands out one fragment per feed and dies with the context,
// matching how a real provider stream behaves under cancellation
type gatedService struct {
	fragments chan string

	mu     sync.Mutex
	closed bool
}

func (g *gatedService) GenerateAnswer(context.Context, string, string) (string, error) {
	return "", nil
}

func (g *gatedService) GenerateText(context.Context, string, int) (string, error) {
	return "", nil
}

func (g *gatedService) GenerateStream(ctx context.Context, _ string) (llm.Stream, error) {
	return &gatedStream{service: g, ctx: ctx}, nil
}

type gatedStream struct {
	service *gatedService
	ctx     context.Context
}

func (s *gatedStream) Recv() (string, error) {
	select {
	case fragment := <-s.service.fragments:
		return fragment, nil
	case <-s.ctx.Done():
		return "", s.ctx.Err()
	}
}

func (s *gatedStream) Close() error {
	s.service.mu.Lock()
	defer s.service.mu.Unlock()
	s.service.closed = true
	return nil
}

func (g *gatedService) wasClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

func TestAnswerStream_CancellationStopsWithoutDone(t *testing.T) {
	chunks := []models.RetrievedChunk{readyChunk("policy.pdf", "contenido relevante")}
	service := &gatedService{fragments: make(chan string)}
	answerer := newTestAnswerer(chunks, service)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := answerer.AnswerStream(ctx, AnswerRequest{
		WorkspaceID: uuid.New(),
		Query:       "¿pregunta?",
	})
	require.NoError(t, err)

	first := <-events
	require.Equal(t, EventSources, first.Type)

	service.fragments <- "hola "
	second := <-events
	require.Equal(t, EventToken, second.Type)

	cancel()

	collected := collectEvents(t, events)
	for _, event := range collected {
		assert.NotEqual(t, EventDone, event.Type)
		assert.NotEqual(t, EventError, event.Type)
	}
	assert.Eventually(t, service.wasClosed, 2*time.Second, 10*time.Millisecond)
}

func TestAnswerStream_OverflowTerminatesWithError(t *testing.T) {
	chunks := []models.RetrievedChunk{readyChunk("policy.pdf", "contenido relevante")}
	answerer := newTestAnswerer(chunks, &llm.FakeService{
		FixedText: strings.Repeat("palabra ", 2500),
	})

	events, err := answerer.AnswerStream(context.Background(), AnswerRequest{
		WorkspaceID: uuid.New(),
		Query:       "¿pregunta?",
	})
	require.NoError(t, err)

	collected := collectEvents(t, events)
	require.NotEmpty(t, collected)
	last := collected[len(collected)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, "OVERFLOW", last.Code)
	for _, event := range collected {
		assert.NotEqual(t, EventDone, event.Type)
	}
}

type spanRecorder struct {
	embedded.Tracer
	names []string
}

func (r *spanRecorder) Start(ctx context.Context, name string, _ ...trace.SpanStartOption) (context.Context, trace.Span) {
	r.names = append(r.names, name)
	return ctx, noop.Span{}
}

type spanRecorderProvider struct {
	embedded.TracerProvider
	tracer *spanRecorder
}

func (p *spanRecorderProvider) Tracer(string, ...trace.TracerOption) trace.Tracer { return p.tracer }

func TestAnswerer_EmitsSpans(t *testing.T) {
	recorder := &spanRecorder{}
	otel.SetTracerProvider(&spanRecorderProvider{tracer: recorder})
	defer otel.SetTracerProvider(noop.NewTracerProvider())

	answerer := newTestAnswerer(nil, llm.NewFakeService())
	req := AnswerRequest{WorkspaceID: uuid.New(), Query: "¿cuántos días de vacaciones?"}

	_, err := answerer.Answer(context.Background(), req)
	require.NoError(t, err)

	events, err := answerer.AnswerStream(context.Background(), req)
	require.NoError(t, err)
	collectEvents(t, events)

	assert.Equal(t, []string{"rag.answer", "rag.answer_stream"}, recorder.names)
}
