package rag

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/llm"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
	"github.com/SaintWyss/rag-corp-sub003/pkg/prompts"
	"github.com/SaintWyss/rag-corp-sub003/pkg/retry"
)

// Stream caps. Past either, the producer terminates with an "overflow" error
// event instead of streaming unbounded output.
const (
	MaxStreamEvents = 2000
	MaxStreamChars  = 12000
)

// FallbackAnswer is returned without any LLM call when retrieval produces an
// empty context
const FallbackAnswer = "No encontré información relevante en los documentos del workspace para responder esa pregunta."

// EventType tags answer stream events
type EventType string

const (
	EventSources EventType = "sources"
	EventToken   EventType = "token"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// Source maps a citation index to its document
type Source struct {
	Index         int       `json:"index"`
	DocumentID    uuid.UUID `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
}

// StreamEvent is one logical event of an answer stream. Order is always
// sources, then tokens, then exactly one done or error.
type StreamEvent struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Sources        []Source  `json:"sources,omitempty"`
	Token          string    `json:"token,omitempty"`
	Answer         string    `json:"answer,omitempty"`
	Code           string    `json:"code,omitempty"`
	Message        string    `json:"message,omitempty"`
}

// AnswerRequest is one question against a workspace
type AnswerRequest struct {
	WorkspaceID    uuid.UUID
	Query          string
	History        []string
	ConversationID string
}

// AnswerResult is the single-shot answer
type AnswerResult struct {
	Answer         string
	Sources        []Source
	ConversationID string
	HybridUsed     bool
	QueryRewritten bool
}

// AnswererConfig controls answer generation
type AnswererConfig struct {
	PromptVersion string
	Language      string
}

// Answerer runs the full pipeline: rewrite, search, filter, rerank, build
// context, generate.
type Answerer struct {
	rewriter *Rewriter
	searcher *Searcher
	filter   *InjectionFilter
	reranker *Reranker
	builder  *ContextBuilder
	llm      llm.Service
	prompts  *prompts.Loader
	retryer  *retry.Retryer
	logger   observability.Logger
	cfg      AnswererConfig
}

// NewAnswerer creates the answering pipeline
func NewAnswerer(
	rewriter *Rewriter,
	searcher *Searcher,
	filter *InjectionFilter,
	reranker *Reranker,
	builder *ContextBuilder,
	llmService llm.Service,
	loader *prompts.Loader,
	retryer *retry.Retryer,
	logger observability.Logger,
	cfg AnswererConfig,
) *Answerer {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Answerer{
		rewriter: rewriter,
		searcher: searcher,
		filter:   filter,
		reranker: reranker,
		builder:  builder,
		llm:      llmService,
		prompts:  loader,
		retryer:  retryer,
		logger:   logger,
		cfg:      cfg,
	}
}

// prepared is the pipeline output shared by both answer paths
type prepared struct {
	contextText    string
	sources        []Source
	conversationID string
	hybridUsed     bool
	rewritten      bool
	prompt         string
}

func (a *Answerer) prepare(ctx context.Context, req AnswerRequest) (*prepared, error) {
	if req.Query == "" {
		return nil, apperrors.Validation("query must not be empty")
	}
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	query, rewritten := req.Query, false
	if a.rewriter != nil {
		query, rewritten = a.rewriter.Rewrite(ctx, req.Query, req.History)
	}

	searchResult, err := a.searcher.Search(ctx, req.WorkspaceID, query)
	if err != nil {
		return nil, err
	}

	chunks := searchResult.Chunks
	if a.filter != nil {
		chunks = a.filter.Apply(chunks)
	}
	if a.reranker != nil {
		chunks = a.reranker.Rerank(ctx, query, chunks)
	}

	contextText, used := a.builder.Build(chunks)
	result := &prepared{
		contextText:    contextText,
		conversationID: conversationID,
		hybridUsed:     searchResult.HybridUsed,
		rewritten:      rewritten,
	}
	if contextText == "" {
		return result, nil
	}

	for i, chunk := range used {
		result.sources = append(result.sources, Source{
			Index:         i + 1,
			DocumentID:    chunk.DocumentID,
			DocumentTitle: chunk.DocumentTitle,
		})
	}

	prompt, err := a.prompts.Get(a.cfg.PromptVersion, prompts.CapabilityRAGAnswer, a.cfg.Language)
	if err != nil {
		return nil, err
	}
	text, err := prompt.Format(map[string]string{
		"context": contextText,
		"query":   req.Query,
	})
	if err != nil {
		return nil, err
	}
	result.prompt = text
	return result, nil
}

// Answer runs the pipeline and returns a single-shot answer. An empty
// context short-circuits to the fallback string without calling the LLM.
func (a *Answerer) Answer(ctx context.Context, req AnswerRequest) (res *AnswerResult, err error) {
	ctx, span := observability.StartSpan(ctx, "rag.answer",
		attribute.String("workspace_id", req.WorkspaceID.String()))
	defer func() { observability.EndSpan(span, err) }()

	prep, err := a.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	result := &AnswerResult{
		Sources:        prep.sources,
		ConversationID: prep.conversationID,
		HybridUsed:     prep.hybridUsed,
		QueryRewritten: prep.rewritten,
	}
	if prep.contextText == "" {
		result.Answer = FallbackAnswer
		return result, nil
	}

	var answer string
	generate := func(ctx context.Context) error {
		var genErr error
		answer, genErr = a.llm.GenerateText(ctx, prep.prompt, llm.DefaultMaxTokens)
		return genErr
	}
	if a.retryer != nil {
		err = a.retryer.Do(ctx, "llm.generate_answer", generate)
	} else {
		err = generate(ctx)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLLM, "answer generation failed")
	}
	result.Answer = answer
	return result, nil
}

// AnswerStream runs the pipeline and streams the answer. Events arrive on
// the returned channel strictly ordered: sources, then tokens, then done or
// error. The channel closes after the terminal event. Cancelling ctx aborts
// the LLM call; no events follow and no retry is attempted once streaming
// has begun — the emitted prefix is not idempotent.
func (a *Answerer) AnswerStream(ctx context.Context, req AnswerRequest) (events <-chan StreamEvent, err error) {
	ctx, span := observability.StartSpan(ctx, "rag.answer_stream",
		attribute.String("workspace_id", req.WorkspaceID.String()))
	defer func() { observability.EndSpan(span, err) }()

	prep, err := a.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamEvent, 8)
	go a.streamInto(ctx, prep, ch)
	return ch, nil
}

func (a *Answerer) streamInto(ctx context.Context, prep *prepared, events chan<- StreamEvent) {
	defer close(events)

	emit := func(event StreamEvent) bool {
		select {
		case events <- event:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(StreamEvent{Type: EventSources, ConversationID: prep.conversationID, Sources: prep.sources}) {
		return
	}
	if prep.contextText == "" {
		if emit(StreamEvent{Type: EventToken, Token: FallbackAnswer}) {
			emit(StreamEvent{Type: EventDone, ConversationID: prep.conversationID, Answer: FallbackAnswer})
		}
		return
	}

	// Retry wraps only stream establishment. Once the first fragment is out,
	// a retry would replay the prefix.
	var stream llm.Stream
	begin := func(ctx context.Context) error {
		var beginErr error
		stream, beginErr = a.llm.GenerateStream(ctx, prep.prompt)
		return beginErr
	}
	var err error
	if a.retryer != nil {
		err = a.retryer.Do(ctx, "llm.generate_stream", begin)
	} else {
		err = begin(ctx)
	}
	if err != nil {
		emit(StreamEvent{Type: EventError, Code: string(apperrors.CodeLLM), Message: "failed to start generation"})
		return
	}
	defer stream.Close()

	var answer []byte
	emitted := 1 // the sources event
	for {
		if ctx.Err() != nil {
			return
		}
		fragment, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Warn("Answer stream aborted", map[string]interface{}{
				"conversation_id": prep.conversationID,
				"error":           recvErr.Error(),
			})
			emit(StreamEvent{Type: EventError, Code: string(apperrors.CodeLLM), Message: "generation interrupted"})
			return
		}
		if fragment == "" {
			continue
		}

		emitted++
		answer = append(answer, fragment...)
		if emitted >= MaxStreamEvents || len(answer) > MaxStreamChars {
			emit(StreamEvent{Type: EventError, Code: "OVERFLOW", Message: "overflow"})
			return
		}
		if !emit(StreamEvent{Type: EventToken, Token: fragment}) {
			return
		}
	}

	emit(StreamEvent{Type: EventDone, ConversationID: prep.conversationID, Answer: string(answer)})
}
