package llm

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
)

// FakeService is a deterministic LLM used in tests and local development
// (llm_fake=true). Answers echo the citation markers found in the context so
// the FUENTES invariants are exercisable end to end.
type FakeService struct {
	// FixedText, when set, is returned verbatim by every call
	FixedText string
	// Err, when set, is returned by every call
	Err error
}

// NewFakeService creates a fake LLM
func NewFakeService() *FakeService { return &FakeService{} }

// GenerateAnswer produces a canned grounded answer citing the [S#] markers
// present in contextText
func (f *FakeService) GenerateAnswer(ctx context.Context, query, contextText string) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	if f.FixedText != "" {
		return f.FixedText, nil
	}
	markers := citationMarkers(contextText)
	if len(markers) == 0 {
		return "No encontré información relevante en los documentos.", nil
	}
	return fmt.Sprintf("Según los documentos, la respuesta a %q se encuentra en las fuentes citadas.\n\nFUENTES: %s",
		query, strings.Join(markers, ", ")), nil
}

// GenerateText completes a prompt deterministically
func (f *FakeService) GenerateText(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	if f.FixedText != "" {
		return f.FixedText, nil
	}
	// Echo the last non-empty prompt line, bounded: good enough for the
	// rewriter which wants a single self-contained query back
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	last := ""
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			last = l
			break
		}
	}
	if maxTokens > 0 && len(last) > maxTokens*4 {
		last = last[:maxTokens*4]
	}
	return last, nil
}

// GenerateStream streams the answer word by word
func (f *FakeService) GenerateStream(ctx context.Context, prompt string) (Stream, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	text := f.FixedText
	if text == "" {
		markers := citationMarkers(prompt)
		text = "Respuesta generada a partir del contexto."
		if len(markers) > 0 {
			text += "\n\nFUENTES: " + strings.Join(markers, ", ")
		}
	}

	words := strings.SplitAfter(text, " ")
	return &fakeStream{fragments: words}, nil
}

func citationMarkers(text string) []string {
	seen := map[string]bool{}
	var markers []string
	for i := 1; i <= 50; i++ {
		marker := fmt.Sprintf("[S%d]", i)
		if strings.Contains(text, marker) && !seen[marker] {
			seen[marker] = true
			markers = append(markers, marker)
		}
	}
	return markers
}

type fakeStream struct {
	mu        sync.Mutex
	fragments []string
	pos       int
	closed    bool
}

func (s *fakeStream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", apperrors.New(apperrors.CodeLLM, "stream closed")
	}
	if s.pos >= len(s.fragments) {
		return "", io.EOF
	}
	fragment := s.fragments[s.pos]
	s.pos++
	return fragment, nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
