package ingestion

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/SaintWyss/rag-corp-sub003/pkg/chunking"
	"github.com/SaintWyss/rag-corp-sub003/pkg/embedding"
	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
	"github.com/SaintWyss/rag-corp-sub003/pkg/storage"
)

// missingMetadataMessage is stored on documents that reached processing
// without the file metadata the worker needs
const missingMetadataMessage = "Missing file metadata for processing"

// maxErrorMessageLen bounds what gets persisted on FAILED documents
const maxErrorMessageLen = 500

// claimableStates are the states a worker may claim a document from
var claimableStates = []models.DocumentStatus{models.StatusPending, models.StatusFailed}

// Processor executes the asynchronous document processing job
type Processor struct {
	docs     DocumentStore
	blobs    storage.FileStorage
	extract  TextExtractor
	chunker  *chunking.FixedSizeChunker
	embedder embedding.Service
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewProcessor creates the worker-side processor
func NewProcessor(
	docs DocumentStore,
	blobs storage.FileStorage,
	extractor TextExtractor,
	chunker *chunking.FixedSizeChunker,
	embedder embedding.Service,
	logger observability.Logger,
	metrics observability.MetricsClient,
) *Processor {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	if chunker == nil {
		chunker = chunking.NewFixedSizeChunker(0, 0)
	}
	return &Processor{
		docs:     docs,
		blobs:    blobs,
		extract:  extractor,
		chunker:  chunker,
		embedder: embedder,
		logger:   logger,
		metrics:  metrics,
	}
}

// Process runs one job. It is idempotent under at-least-once delivery: the
// compare-and-set into PROCESSING serializes concurrent workers, and losers
// return the observed status without doing work. Pipeline failures are
// absorbed into the FAILED state; they never propagate out of the job.
func (p *Processor) Process(ctx context.Context, documentID, workspaceID string) (status models.DocumentStatus, err error) {
	ctx, span := observability.StartSpan(ctx, "ingestion.process_document",
		attribute.String("document_id", documentID),
		attribute.String("workspace_id", workspaceID))
	defer func() { observability.EndSpan(span, err) }()

	docID, err := uuid.Parse(documentID)
	if err != nil {
		return "", apperrors.Validation("invalid document id")
	}
	wsID, err := uuid.Parse(workspaceID)
	if err != nil {
		return "", apperrors.Validation("invalid workspace id")
	}

	doc, err := p.docs.GetDocument(ctx, wsID, docID)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", apperrors.Missing("document not found for processing")
	}
	if doc.Status == models.StatusReady || doc.Status == models.StatusProcessing {
		return doc.Status, nil
	}

	claimed, err := p.docs.TransitionStatus(ctx, wsID, docID, claimableStates, models.StatusProcessing, "")
	if err != nil {
		return "", err
	}
	if !claimed {
		current, gerr := p.docs.GetDocument(ctx, wsID, docID)
		if gerr != nil || current == nil {
			return "", apperrors.Missing("document disappeared during claim")
		}
		return current.Status, nil
	}

	if p.blobs == nil || !doc.HasFileMetadata() {
		return p.fail(ctx, wsID, docID, missingMetadataMessage)
	}

	if err := p.run(ctx, doc); err != nil {
		p.metrics.IncrementCounterWithLabels("ingestion_jobs", 1, map[string]string{"result": "failed"})
		return p.fail(ctx, wsID, docID, truncate(err.Error(), maxErrorMessageLen))
	}

	if _, err := p.docs.TransitionStatus(ctx, wsID, docID,
		[]models.DocumentStatus{models.StatusProcessing}, models.StatusReady, ""); err != nil {
		return "", err
	}
	p.metrics.IncrementCounterWithLabels("ingestion_jobs", 1, map[string]string{"result": "ready"})
	return models.StatusReady, nil
}

// run executes download, extract, chunk, embed, score and persist
func (p *Processor) run(ctx context.Context, doc *models.Document) error {
	data, err := p.blobs.Download(ctx, doc.StorageKey)
	if err != nil {
		return err
	}
	text, err := p.extract.Extract(doc.MimeType, data)
	if err != nil {
		return err
	}

	parts := p.chunker.Chunk(text)
	chunks := make([]*models.Chunk, 0, len(parts))
	var embeddings [][]float32
	if len(parts) > 0 {
		embeddings, err = p.embedder.EmbedBatch(ctx, parts)
		if err != nil {
			return err
		}
		if err := embedding.ValidateBatch(parts, embeddings, p.embedder.Dimension()); err != nil {
			return err
		}
	}

	for i, content := range parts {
		risk, flags := ScoreInjectionRisk(content)
		metadata := map[string]interface{}{
			models.ChunkMetaDocumentTitle: doc.Title,
			models.ChunkMetaInjectionRisk: risk,
		}
		if len(flags) > 0 {
			metadata[models.ChunkMetaInjectionFlags] = flags
		}
		chunks = append(chunks, &models.Chunk{
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    content,
			Embedding:  embeddings[i],
			Metadata:   metadata,
		})
	}

	return p.docs.ReplaceChunks(ctx, doc.ID, chunks)
}

func (p *Processor) fail(ctx context.Context, wsID, docID uuid.UUID, message string) (models.DocumentStatus, error) {
	p.logger.Error("Document processing failed", map[string]interface{}{
		"document_id": docID.String(),
		"reason":      message,
	})
	if _, err := p.docs.TransitionStatus(ctx, wsID, docID,
		[]models.DocumentStatus{models.StatusProcessing}, models.StatusFailed, message); err != nil {
		return "", err
	}
	return models.StatusFailed, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
