package rag

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/SaintWyss/rag-corp-sub003/pkg/llm"
	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
	"github.com/SaintWyss/rag-corp-sub003/pkg/prompts"
)

// RerankMode selects the reranking strategy
type RerankMode string

const (
	RerankDisabled  RerankMode = "disabled"
	RerankHeuristic RerankMode = "heuristic"
	RerankLLM       RerankMode = "llm"
)

// llmRerankCandidateCap bounds how many chunks the llm mode will score; each
// candidate is one LLM round-trip
const llmRerankCandidateCap = 20

// RerankerConfig controls reranking
type RerankerConfig struct {
	Mode          RerankMode
	TopK          int
	PromptVersion string
	Language      string
}

// Reranker reorders or trims retrieved chunks before context assembly
type Reranker struct {
	llm     llm.Service
	prompts *prompts.Loader
	logger  observability.Logger
	cfg     RerankerConfig
}

// NewReranker creates a reranker
func NewReranker(llmService llm.Service, loader *prompts.Loader, logger observability.Logger, cfg RerankerConfig) *Reranker {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.Mode == "" {
		cfg.Mode = RerankDisabled
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Reranker{llm: llmService, prompts: loader, logger: logger, cfg: cfg}
}

// Rerank applies the configured strategy. Disabled mode is the identity.
func (r *Reranker) Rerank(ctx context.Context, query string, chunks []models.RetrievedChunk) []models.RetrievedChunk {
	switch r.cfg.Mode {
	case RerankHeuristic:
		return r.heuristic(query, chunks)
	case RerankLLM:
		return r.withLLM(ctx, query, chunks)
	}
	return chunks
}

// heuristic scores each chunk from term overlap with the query, chunk length,
// original position and the retrieval similarity, then keeps the top-K by
// score. Fully deterministic.
func (r *Reranker) heuristic(query string, chunks []models.RetrievedChunk) []models.RetrievedChunk {
	queryTerms := termSet(query)

	type scored struct {
		chunk    models.RetrievedChunk
		score    float64
		position int
	}
	items := make([]scored, 0, len(chunks))
	for i, chunk := range chunks {
		score := 0.5*termOverlap(queryTerms, chunk.Content) +
			0.3*chunk.Score +
			0.1*lengthScore(chunk.Content) +
			0.1*positionScore(i, len(chunks))
		items = append(items, scored{chunk: chunk, score: score, position: i})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].position < items[j].position
	})
	if len(items) > r.cfg.TopK {
		items = items[:r.cfg.TopK]
	}

	result := make([]models.RetrievedChunk, 0, len(items))
	for _, item := range items {
		result = append(result, item.chunk)
	}
	return result
}

// withLLM asks the model to score each (query, chunk) pair, selects the
// top-K by score, and emits the winners in their original retrieval order so
// downstream citation indices stay aligned with retrieval. Any failure falls
// back to trimming without reordering.
func (r *Reranker) withLLM(ctx context.Context, query string, chunks []models.RetrievedChunk) []models.RetrievedChunk {
	candidates := chunks
	if len(candidates) > llmRerankCandidateCap {
		candidates = candidates[:llmRerankCandidateCap]
	}

	prompt, err := r.prompts.Get(r.cfg.PromptVersion, prompts.CapabilityRerank, r.cfg.Language)
	if err != nil {
		r.logger.Warn("Rerank prompt unavailable, trimming without scores", map[string]interface{}{
			"error": err.Error(),
		})
		return trim(chunks, r.cfg.TopK)
	}

	type scored struct {
		position int
		score    float64
	}
	items := make([]scored, 0, len(candidates))
	for i, chunk := range candidates {
		text, ferr := prompt.Format(map[string]string{"query": query, "chunk": chunk.Content})
		if ferr != nil {
			return trim(chunks, r.cfg.TopK)
		}
		reply, lerr := r.llm.GenerateText(ctx, text, 8)
		if lerr != nil {
			r.logger.Warn("LLM rerank failed, trimming without scores", map[string]interface{}{
				"error": lerr.Error(),
			})
			return trim(chunks, r.cfg.TopK)
		}
		items = append(items, scored{position: i, score: parseScore(reply)})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].position < items[j].position
	})
	if len(items) > r.cfg.TopK {
		items = items[:r.cfg.TopK]
	}

	keep := make(map[int]struct{}, len(items))
	for _, item := range items {
		keep[item.position] = struct{}{}
	}
	result := make([]models.RetrievedChunk, 0, len(items))
	for i, chunk := range candidates {
		if _, ok := keep[i]; ok {
			result = append(result, chunk)
		}
	}
	return result
}

func trim(chunks []models.RetrievedChunk, topK int) []models.RetrievedChunk {
	if len(chunks) > topK {
		return chunks[:topK]
	}
	return chunks
}

// parseScore extracts the leading 0-10 score from an LLM reply; anything
// unparseable counts as zero
func parseScore(reply string) float64 {
	fields := strings.Fields(strings.TrimSpace(reply))
	if len(fields) == 0 {
		return 0
	}
	score, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], "."), 64)
	if err != nil || score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

func termSet(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:¿?¡!\"'()")
		if len(word) > 2 {
			terms[word] = struct{}{}
		}
	}
	return terms
}

func termOverlap(queryTerms map[string]struct{}, content string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	contentTerms := termSet(content)
	matched := 0
	for term := range queryTerms {
		if _, ok := contentTerms[term]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

// lengthScore prefers substantial chunks without rewarding sheer size
func lengthScore(content string) float64 {
	n := len(content)
	switch {
	case n < 100:
		return 0.2
	case n < 400:
		return 0.6
	default:
		return 1.0
	}
}

// positionScore preserves a mild bias toward the original retrieval order
func positionScore(index, total int) float64 {
	if total <= 1 {
		return 1
	}
	return 1 - float64(index)/float64(total-1)
}
