package ingestion

import (
	"context"
	"io"

	"github.com/google/uuid"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
	"github.com/SaintWyss/rag-corp-sub003/pkg/queue"
	"github.com/SaintWyss/rag-corp-sub003/pkg/quota"
	"github.com/SaintWyss/rag-corp-sub003/pkg/storage"
)

// UploadInput describes one file upload
type UploadInput struct {
	WorkspaceID uuid.UUID
	Actor       models.Actor
	Title       string
	FileName    string
	MimeType    string
	Content     io.Reader
}

// UploadUseCase stores the blob, persists the PENDING document row and
// enqueues processing
type UploadUseCase struct {
	policy  WorkspaceResolver
	docs    DocumentStore
	blobs   storage.FileStorage
	jobs    queue.ProcessingQueue
	quota   QuotaLimiter
	audit   AuditRecorder
	extract TextExtractor
	logger  observability.Logger
}

// NewUploadUseCase creates the upload use case. Storage and queue may be nil
// when unconfigured; uploads then fail fast with SERVICE_UNAVAILABLE.
func NewUploadUseCase(
	policy WorkspaceResolver,
	docs DocumentStore,
	blobs storage.FileStorage,
	jobs queue.ProcessingQueue,
	quotaLimiter QuotaLimiter,
	audit AuditRecorder,
	extractor TextExtractor,
	logger observability.Logger,
) *UploadUseCase {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &UploadUseCase{
		policy:  policy,
		docs:    docs,
		blobs:   blobs,
		jobs:    jobs,
		quota:   quotaLimiter,
		audit:   audit,
		extract: extractor,
		logger:  logger,
	}
}

// Upload runs the upload flow. The blob is stored before the document row so
// the repository never references a blob that does not exist; on enqueue
// failure the document is failed and the blob deleted best-effort.
func (u *UploadUseCase) Upload(ctx context.Context, input UploadInput) (*models.Document, error) {
	if input.FileName == "" || input.MimeType == "" {
		return nil, apperrors.Validation("file_name and mime_type are required")
	}
	if input.Content == nil {
		return nil, apperrors.Validation("file content is required")
	}
	if u.extract != nil && !u.extract.Supports(input.MimeType) {
		return nil, apperrors.Newf(apperrors.CodeValidation, "unsupported mime type %q", input.MimeType)
	}

	workspace, err := u.policy.ResolveForWrite(ctx, input.WorkspaceID, input.Actor)
	if err != nil {
		return nil, err
	}
	if u.blobs == nil {
		return nil, apperrors.ServiceUnavailable("file storage is not configured")
	}
	if u.jobs == nil {
		return nil, apperrors.ServiceUnavailable("processing queue is not configured")
	}

	if u.quota != nil {
		scope := models.QuotaScope{Type: models.QuotaScopeWorkspace, ID: workspace.ID.String()}
		decision, qerr := u.quota.Check(ctx, models.QuotaUploads, scope)
		if qerr != nil {
			return nil, apperrors.Wrap(qerr, apperrors.CodeServiceUnavailable, "quota backend unavailable")
		}
		if !decision.Allowed {
			return nil, &quota.ExceededError{Resource: models.QuotaUploads, Decision: decision}
		}
	}

	title := input.Title
	if title == "" {
		title = input.FileName
	}
	documentID := uuid.New()
	storageKey := models.StorageKeyFor(documentID, input.FileName)

	if err := u.blobs.Upload(ctx, storageKey, input.Content, input.MimeType); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorage, "failed to store uploaded file")
	}

	doc := &models.Document{
		ID:               documentID,
		WorkspaceID:      workspace.ID,
		Title:            title,
		FileName:         input.FileName,
		MimeType:         input.MimeType,
		StorageKey:       storageKey,
		Status:           models.StatusPending,
		UploadedByUserID: input.Actor.UserID,
	}
	if err := u.docs.CreateDocument(ctx, doc); err != nil {
		u.deleteBlobBestEffort(ctx, storageKey)
		return nil, err
	}

	if _, err := u.jobs.Enqueue(ctx, documentID.String(), workspace.ID.String()); err != nil {
		u.logger.Error("Failed to enqueue document processing", map[string]interface{}{
			"document_id": documentID.String(),
			"error":       err.Error(),
		})
		if _, terr := u.docs.TransitionStatus(ctx, workspace.ID, documentID,
			[]models.DocumentStatus{models.StatusPending}, models.StatusFailed,
			"failed to enqueue processing job"); terr != nil {
			u.logger.Error("Failed to mark document FAILED after enqueue failure", map[string]interface{}{
				"document_id": documentID.String(),
				"error":       terr.Error(),
			})
		}
		u.deleteBlobBestEffort(ctx, storageKey)
		return nil, apperrors.Wrap(err, apperrors.CodeServiceUnavailable, "failed to enqueue processing job")
	}

	if u.quota != nil {
		scope := models.QuotaScope{Type: models.QuotaScopeWorkspace, ID: workspace.ID.String()}
		if qerr := u.quota.Record(ctx, models.QuotaUploads, scope, 1); qerr != nil {
			u.logger.Warn("Failed to record upload quota", map[string]interface{}{"error": qerr.Error()})
		}
	}
	if u.audit != nil {
		u.audit.Record(ctx, models.AuditEvent{
			WorkspaceID: workspace.ID,
			ActorUserID: input.Actor.UserID,
			Action:      models.AuditDocumentUpload,
			TargetID:    documentID,
			Metadata:    map[string]interface{}{"file_name": input.FileName, "mime_type": input.MimeType},
		})
	}
	return doc, nil
}

func (u *UploadUseCase) deleteBlobBestEffort(ctx context.Context, key string) {
	if err := u.blobs.Delete(ctx, key); err != nil {
		u.logger.Warn("Failed to delete orphan blob", map[string]interface{}{
			"storage_key": key,
			"error":       err.Error(),
		})
	}
}
