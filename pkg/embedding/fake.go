package embedding

import (
	"context"
	"hash/fnv"
	"math"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
)

// FakeService produces deterministic unit-length vectors derived from the
// input text. Used in tests and local development (fake_embeddings=true):
// identical texts always embed identically, so cache and dedupe behavior is
// observable without a provider.
type FakeService struct {
	modelID   string
	dimension int
}

// NewFakeService creates a fake embedding service
func NewFakeService(dimension int) *FakeService {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &FakeService{modelID: "fake-embeddings", dimension: dimension}
}

// ModelID returns the fake model identifier
func (f *FakeService) ModelID() string { return f.modelID }

// Dimension returns the configured vector dimension
func (f *FakeService) Dimension() int { return f.dimension }

// EmbedQuery embeds a single text
func (f *FakeService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds a batch of texts
func (f *FakeService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateInputs(texts); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbedding, "invalid embedding input")
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = f.vectorFor(text)
	}
	return vecs, nil
}

func (f *FakeService) vectorFor(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, f.dimension)
	var norm float64
	state := seed
	for i := range vec {
		// xorshift64 keeps the sequence deterministic per text
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		v := float32(int64(state%2000)-1000) / 1000
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
