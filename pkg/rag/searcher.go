package rag

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/SaintWyss/rag-corp-sub003/pkg/embedding"
	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
)

// DefaultRRFK is the reciprocal rank fusion constant
const DefaultRRFK = 60

// SearchRepository is the slice of the document repository search needs
type SearchRepository interface {
	SearchSimilar(ctx context.Context, workspaceID uuid.UUID, embedding []float32, topK int) ([]models.RetrievedChunk, error)
	SearchFullText(ctx context.Context, workspaceID uuid.UUID, query string, topK int) ([]models.RetrievedChunk, error)
}

// SearcherConfig controls retrieval
type SearcherConfig struct {
	TopK int
	// Hybrid enables the sparse full-text branch fused via RRF
	Hybrid bool
	// RRFK is the fusion constant, DefaultRRFK when zero
	RRFK int
}

// SearchResult carries the retrieved chunks plus observability metadata
type SearchResult struct {
	Chunks []models.RetrievedChunk
	// HybridUsed is false whenever the sparse branch was skipped or failed
	HybridUsed bool
}

// Searcher retrieves the most relevant chunks for a query within a workspace
type Searcher struct {
	embedder embedding.Service
	repo     SearchRepository
	logger   observability.Logger
	cfg      SearcherConfig
}

// NewSearcher creates a searcher
func NewSearcher(embedder embedding.Service, repo SearchRepository, logger observability.Logger, cfg SearcherConfig) *Searcher {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = DefaultRRFK
	}
	return &Searcher{embedder: embedder, repo: repo, logger: logger, cfg: cfg}
}

// Search embeds the query and retrieves the top chunks. With hybrid enabled
// it fuses dense and sparse rankings; a sparse failure degrades to dense-only
// instead of failing the query.
func (s *Searcher) Search(ctx context.Context, workspaceID uuid.UUID, query string) (*SearchResult, error) {
	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	dense, err := s.repo.SearchSimilar(ctx, workspaceID, queryVec, s.cfg.TopK)
	if err != nil {
		return nil, err
	}
	if !s.cfg.Hybrid {
		return &SearchResult{Chunks: dense}, nil
	}

	sparse, err := s.repo.SearchFullText(ctx, workspaceID, query, s.cfg.TopK)
	if err != nil {
		s.logger.Warn("Full-text branch failed, degrading to dense-only", map[string]interface{}{
			"workspace_id": workspaceID.String(),
			"error":        err.Error(),
		})
		return &SearchResult{Chunks: dense}, nil
	}

	fused := fuseRRF([][]models.RetrievedChunk{dense, sparse}, s.cfg.RRFK, s.cfg.TopK)
	return &SearchResult{Chunks: fused, HybridUsed: true}, nil
}

// fuseRRF merges ranked lists with reciprocal rank fusion:
// score(c) = sum over lists of 1/(k + rank). Ties break by chunk id ascending
// so fusion is deterministic across runs.
func fuseRRF(lists [][]models.RetrievedChunk, k, topK int) []models.RetrievedChunk {
	type fusedEntry struct {
		chunk models.RetrievedChunk
		score float64
	}
	byID := make(map[uuid.UUID]*fusedEntry)
	for _, list := range lists {
		for rank, chunk := range list {
			entry, ok := byID[chunk.ID]
			if !ok {
				entry = &fusedEntry{chunk: chunk}
				byID[chunk.ID] = entry
			}
			entry.score += 1.0 / float64(k+rank+1)
		}
	}

	fused := make([]*fusedEntry, 0, len(byID))
	for _, entry := range byID {
		fused = append(fused, entry)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].chunk.ID.String() < fused[j].chunk.ID.String()
	})

	if len(fused) > topK {
		fused = fused[:topK]
	}
	result := make([]models.RetrievedChunk, 0, len(fused))
	for _, entry := range fused {
		chunk := entry.chunk
		chunk.Score = entry.score
		result = append(result, chunk)
	}
	return result
}
