package ingestion

import (
	"context"

	"github.com/google/uuid"

	"github.com/SaintWyss/rag-corp-sub003/pkg/chunking"
	"github.com/SaintWyss/rag-corp-sub003/pkg/embedding"
	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
)

// DirectIngestInput is plain text ingested synchronously, without a file or
// the queue
type DirectIngestInput struct {
	WorkspaceID uuid.UUID
	Actor       models.Actor
	Title       string
	Content     string
}

// DirectIngestUseCase chunks, embeds and persists text in one call. The
// document lands directly in READY.
type DirectIngestUseCase struct {
	policy   WorkspaceResolver
	docs     DocumentStore
	chunker  *chunking.FixedSizeChunker
	embedder embedding.Service
	audit    AuditRecorder
	logger   observability.Logger
}

// NewDirectIngestUseCase creates the direct text ingest use case
func NewDirectIngestUseCase(
	policy WorkspaceResolver,
	docs DocumentStore,
	chunker *chunking.FixedSizeChunker,
	embedder embedding.Service,
	audit AuditRecorder,
	logger observability.Logger,
) *DirectIngestUseCase {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if chunker == nil {
		chunker = chunking.NewFixedSizeChunker(0, 0)
	}
	return &DirectIngestUseCase{
		policy:   policy,
		docs:     docs,
		chunker:  chunker,
		embedder: embedder,
		audit:    audit,
		logger:   logger,
	}
}

// Ingest validates, chunks and persists document plus chunks atomically.
// Embedding is skipped entirely when chunking yields nothing.
func (d *DirectIngestUseCase) Ingest(ctx context.Context, input DirectIngestInput) (*models.Document, error) {
	if input.Title == "" {
		return nil, apperrors.Validation("title is required")
	}
	if input.Content == "" {
		return nil, apperrors.Validation("content is required")
	}

	workspace, err := d.policy.ResolveForWrite(ctx, input.WorkspaceID, input.Actor)
	if err != nil {
		return nil, err
	}

	parts := d.chunker.Chunk(input.Content)
	chunks := make([]*models.Chunk, 0, len(parts))
	if len(parts) > 0 {
		embeddings, eerr := d.embedder.EmbedBatch(ctx, parts)
		if eerr != nil {
			return nil, apperrors.Wrap(eerr, apperrors.CodeEmbedding, "failed to embed content")
		}
		if verr := embedding.ValidateBatch(parts, embeddings, d.embedder.Dimension()); verr != nil {
			return nil, apperrors.Wrap(verr, apperrors.CodeEmbedding, "embedding validation failed")
		}
		for i, content := range parts {
			risk, flags := ScoreInjectionRisk(content)
			metadata := map[string]interface{}{
				models.ChunkMetaDocumentTitle: input.Title,
				models.ChunkMetaInjectionRisk: risk,
			}
			if len(flags) > 0 {
				metadata[models.ChunkMetaInjectionFlags] = flags
			}
			chunks = append(chunks, &models.Chunk{
				ChunkIndex: i,
				Content:    content,
				Embedding:  embeddings[i],
				Metadata:   metadata,
			})
		}
	}

	doc := &models.Document{
		WorkspaceID:      workspace.ID,
		Title:            input.Title,
		UploadedByUserID: input.Actor.UserID,
	}
	if err := d.docs.SaveDocumentWithChunks(ctx, doc, chunks); err != nil {
		return nil, err
	}
	for _, chunk := range chunks {
		chunk.DocumentID = doc.ID
	}

	if d.audit != nil {
		d.audit.Record(ctx, models.AuditEvent{
			WorkspaceID: workspace.ID,
			ActorUserID: input.Actor.UserID,
			Action:      models.AuditDocumentUpload,
			TargetID:    doc.ID,
			Metadata:    map[string]interface{}{"direct": true},
		})
	}
	return doc, nil
}
