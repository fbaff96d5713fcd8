package ingestion

import (
	"context"

	"github.com/google/uuid"

	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
)

// DocumentStore is the slice of the document repository ingestion needs
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, workspaceID, documentID uuid.UUID) (*models.Document, error)
	TransitionStatus(ctx context.Context, workspaceID, documentID uuid.UUID, from []models.DocumentStatus, to models.DocumentStatus, errorMessage string) (bool, error)
	ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []*models.Chunk) error
	SaveDocumentWithChunks(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error
	SoftDeleteDocument(ctx context.Context, workspaceID, documentID uuid.UUID) error
}

// WorkspaceResolver authorizes mutations against a workspace
type WorkspaceResolver interface {
	ResolveForWrite(ctx context.Context, workspaceID uuid.UUID, actor models.Actor) (*models.Workspace, error)
}

// QuotaLimiter checks and records hourly consumption
type QuotaLimiter interface {
	Check(ctx context.Context, resource models.QuotaResource, scope models.QuotaScope) (models.QuotaDecision, error)
	Record(ctx context.Context, resource models.QuotaResource, scope models.QuotaScope, amount int64) error
}

// AuditRecorder records sensitive actions best-effort
type AuditRecorder interface {
	Record(ctx context.Context, event models.AuditEvent)
}
