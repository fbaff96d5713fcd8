package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction identifies a sensitive action worth recording
type AuditAction string

const (
	AuditWorkspaceCreate  AuditAction = "workspace.create"
	AuditWorkspacePublish AuditAction = "workspace.publish"
	AuditWorkspaceShare   AuditAction = "workspace.share"
	AuditWorkspaceArchive AuditAction = "workspace.archive"
	AuditDocumentUpload   AuditAction = "document.upload"
	AuditDocumentReproc   AuditAction = "document.reprocess"
	AuditDocumentCancel   AuditAction = "document.cancel"
	AuditDocumentDelete   AuditAction = "document.delete"
)

// AuditEvent is a best-effort record of a sensitive action. Failing to
// persist one must never fail the parent operation.
type AuditEvent struct {
	ID          uuid.UUID              `json:"id" db:"id"`
	WorkspaceID uuid.UUID              `json:"workspace_id" db:"workspace_id"`
	ActorUserID uuid.UUID              `json:"actor_user_id" db:"actor_user_id"`
	Action      AuditAction            `json:"action" db:"action"`
	TargetID    uuid.UUID              `json:"target_id" db:"target_id"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
}
