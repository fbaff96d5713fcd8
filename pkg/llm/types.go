// Package llm defines the text generation capability port and its
// implementations.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// DefaultMaxTokens bounds generation when the caller does not specify a
// budget
const DefaultMaxTokens = 1024

// Stream is a lazy sequence of text fragments. Recv returns io.EOF after the
// final fragment. Close releases the underlying connection and may be called
// at any time; it is how consumer cancellation propagates to the provider.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Service is the LLM capability port
type Service interface {
	// GenerateAnswer produces a grounded answer for query from contextText
	GenerateAnswer(ctx context.Context, query, contextText string) (string, error)
	// GenerateText completes an arbitrary prompt within a token budget
	GenerateText(ctx context.Context, prompt string, maxTokens int) (string, error)
	// GenerateStream starts streaming a completion of prompt
	GenerateStream(ctx context.Context, prompt string) (Stream, error)
}

// answerPrompt is the built-in composition used by GenerateAnswer when the
// caller has not gone through the prompt assembler
func answerPrompt(query, contextText string) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below. Cite sources with their [S#] markers.\n\n")
	fmt.Fprintf(&b, "Context:\n%s\n\nQuestion: %s\n", contextText, query)
	return b.String()
}
