package ingestion

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
	"github.com/SaintWyss/rag-corp-sub003/pkg/queue"
	"github.com/SaintWyss/rag-corp-sub003/pkg/storage"
)

// ManageUseCase covers the operator-facing document lifecycle operations:
// reprocess, cancel and delete
type ManageUseCase struct {
	policy WorkspaceResolver
	docs   DocumentStore
	blobs  storage.FileStorage
	jobs   queue.ProcessingQueue
	audit  AuditRecorder
	logger observability.Logger
}

// NewManageUseCase creates the management use case
func NewManageUseCase(
	policy WorkspaceResolver,
	docs DocumentStore,
	blobs storage.FileStorage,
	jobs queue.ProcessingQueue,
	audit AuditRecorder,
	logger observability.Logger,
) *ManageUseCase {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &ManageUseCase{policy: policy, docs: docs, blobs: blobs, jobs: jobs, audit: audit, logger: logger}
}

// Reprocess re-runs ingestion for a document. A document currently being
// processed cannot be reprocessed; the running job owns it.
func (m *ManageUseCase) Reprocess(ctx context.Context, workspaceID, documentID uuid.UUID, actor models.Actor) error {
	workspace, err := m.policy.ResolveForWrite(ctx, workspaceID, actor)
	if err != nil {
		return err
	}
	if m.jobs == nil {
		return apperrors.ServiceUnavailable("processing queue is not configured")
	}

	doc, err := m.docs.GetDocument(ctx, workspace.ID, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return apperrors.NotFound("document not found")
	}
	if doc.Status == models.StatusProcessing {
		return apperrors.Conflict("document is currently being processed")
	}

	moved, err := m.docs.TransitionStatus(ctx, workspace.ID, documentID,
		[]models.DocumentStatus{models.StatusPending, models.StatusReady, models.StatusFailed},
		models.StatusPending, "")
	if err != nil {
		return err
	}
	if !moved {
		return apperrors.Conflict("document changed state concurrently")
	}

	if _, err := m.jobs.Enqueue(ctx, documentID.String(), workspace.ID.String()); err != nil {
		if _, terr := m.docs.TransitionStatus(ctx, workspace.ID, documentID,
			[]models.DocumentStatus{models.StatusPending}, models.StatusFailed,
			"failed to enqueue reprocessing job"); terr != nil {
			m.logger.Error("Failed to mark document FAILED after enqueue failure", map[string]interface{}{
				"document_id": documentID.String(),
				"error":       terr.Error(),
			})
		}
		return apperrors.Wrap(err, apperrors.CodeServiceUnavailable, "failed to enqueue reprocessing job")
	}

	if m.audit != nil {
		m.audit.Record(ctx, models.AuditEvent{
			WorkspaceID: workspace.ID,
			ActorUserID: actor.UserID,
			Action:      models.AuditDocumentReproc,
			TargetID:    documentID,
		})
	}
	return nil
}

// Cancel frees a document stuck in PROCESSING, typically a zombie left by a
// dead worker. Any other state is a conflict.
func (m *ManageUseCase) Cancel(ctx context.Context, workspaceID, documentID uuid.UUID, actor models.Actor, reason string) error {
	workspace, err := m.policy.ResolveForWrite(ctx, workspaceID, actor)
	if err != nil {
		return err
	}

	doc, err := m.docs.GetDocument(ctx, workspace.ID, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return apperrors.NotFound("document not found")
	}
	if doc.Status != models.StatusProcessing {
		return apperrors.Conflict("only PROCESSING documents can be cancelled")
	}

	if reason == "" {
		reason = "cancelled by operator"
	}
	moved, err := m.docs.TransitionStatus(ctx, workspace.ID, documentID,
		[]models.DocumentStatus{models.StatusProcessing}, models.StatusFailed,
		truncate(fmt.Sprintf("cancelled: %s", reason), maxErrorMessageLen))
	if err != nil {
		return err
	}
	if !moved {
		return apperrors.Conflict("document changed state concurrently")
	}

	if m.audit != nil {
		m.audit.Record(ctx, models.AuditEvent{
			WorkspaceID: workspace.ID,
			ActorUserID: actor.UserID,
			Action:      models.AuditDocumentCancel,
			TargetID:    documentID,
			Metadata:    map[string]interface{}{"reason": reason},
		})
	}
	return nil
}

// Delete soft-deletes the document and removes its blob best-effort
func (m *ManageUseCase) Delete(ctx context.Context, workspaceID, documentID uuid.UUID, actor models.Actor) error {
	workspace, err := m.policy.ResolveForWrite(ctx, workspaceID, actor)
	if err != nil {
		return err
	}

	doc, err := m.docs.GetDocument(ctx, workspace.ID, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return apperrors.NotFound("document not found")
	}

	if err := m.docs.SoftDeleteDocument(ctx, workspace.ID, documentID); err != nil {
		return err
	}
	if m.blobs != nil && doc.StorageKey != "" {
		if derr := m.blobs.Delete(ctx, doc.StorageKey); derr != nil {
			m.logger.Warn("Failed to delete document blob", map[string]interface{}{
				"storage_key": doc.StorageKey,
				"error":       derr.Error(),
			})
		}
	}

	if m.audit != nil {
		m.audit.Record(ctx, models.AuditEvent{
			WorkspaceID: workspace.ID,
			ActorUserID: actor.UserID,
			Action:      models.AuditDocumentDelete,
			TargetID:    documentID,
		})
	}
	return nil
}
