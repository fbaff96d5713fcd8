package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
)

// AuditRepository persists audit events
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates an audit repository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert writes one audit event
func (r *AuditRepository) Insert(ctx context.Context, event *models.AuditEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	meta, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_events (id, workspace_id, actor_user_id, action, target_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query,
		event.ID, event.WorkspaceID, event.ActorUserID, event.Action,
		event.TargetID, meta, event.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// AuditInserter is the slice of the audit repository the writer needs
type AuditInserter interface {
	Insert(ctx context.Context, event *models.AuditEvent) error
}

// AuditWriter records audit events best-effort: a failed write is logged and
// swallowed so it can never fail the action being audited.
type AuditWriter struct {
	repo   AuditInserter
	logger observability.Logger
}

// NewAuditWriter creates a best-effort audit writer
func NewAuditWriter(repo AuditInserter, logger observability.Logger) *AuditWriter {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &AuditWriter{repo: repo, logger: logger}
}

// Record writes the event, swallowing any persistence failure
func (w *AuditWriter) Record(ctx context.Context, event models.AuditEvent) {
	if w.repo == nil {
		return
	}
	if err := w.repo.Insert(ctx, &event); err != nil {
		w.logger.Warn("Failed to persist audit event", map[string]interface{}{
			"action":       string(event.Action),
			"workspace_id": event.WorkspaceID.String(),
			"error":        err.Error(),
		})
	}
}
