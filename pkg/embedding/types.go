// Package embedding defines the embedding capability port and its
// implementations. All business logic depends on the Service interface only.
package embedding

import (
	"context"
	"fmt"
)

// DefaultDimension is the process-wide vector dimension. It must match the
// column width of the vector store; mismatches fail fast at ingest.
const DefaultDimension = 768

// TaskType partitions cache keys so query and document embeddings never
// collide
type TaskType string

const (
	TaskRetrievalQuery    TaskType = "retrieval_query"
	TaskRetrievalDocument TaskType = "retrieval_document"
)

// Service is the embedding capability port. EmbedBatch is 1:1: the output
// has the same length and order as the input.
type Service interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelID() string
	Dimension() int
}

// ValidateBatch checks the provider contract: output cardinality equals
// input cardinality and every vector has the configured dimension.
func ValidateBatch(inputs []string, outputs [][]float32, dimension int) error {
	if len(outputs) != len(inputs) {
		return fmt.Errorf("embedding cardinality mismatch: %d inputs, %d outputs", len(inputs), len(outputs))
	}
	for i, vec := range outputs {
		if vec == nil {
			return fmt.Errorf("embedding %d is missing", i)
		}
		if len(vec) != dimension {
			return fmt.Errorf("embedding %d has dimension %d, want %d", i, len(vec), dimension)
		}
	}
	return nil
}

// ValidateInputs fails fast on empty batch elements before any provider call
func ValidateInputs(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("empty input batch")
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("input %d is empty", i)
		}
	}
	return nil
}
