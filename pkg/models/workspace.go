// Package models defines the core data models for the workspace RAG system
package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkspaceVisibility controls who can read a workspace beyond its owner
type WorkspaceVisibility string

const (
	VisibilityPrivate WorkspaceVisibility = "PRIVATE"
	VisibilityOrgRead WorkspaceVisibility = "ORG_READ"
	VisibilityShared  WorkspaceVisibility = "SHARED"
)

// Workspace is the tenancy boundary. Every document, chunk and quota bucket
// hangs off exactly one workspace.
type Workspace struct {
	ID          uuid.UUID           `json:"id" db:"id"`
	Name        string              `json:"name" db:"name"`
	Visibility  WorkspaceVisibility `json:"visibility" db:"visibility"`
	OwnerUserID uuid.UUID           `json:"owner_user_id" db:"owner_user_id"`
	ArchivedAt  *time.Time          `json:"archived_at,omitempty" db:"archived_at"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at" db:"updated_at"`
}

// IsArchived reports whether the workspace is soft-deleted
func (w *Workspace) IsArchived() bool { return w.ArchivedAt != nil }

// WorkspaceACL is the per-workspace allow-list layered on top of visibility
type WorkspaceACL struct {
	WorkspaceID    uuid.UUID   `json:"workspace_id" db:"workspace_id"`
	AllowedUserIDs []uuid.UUID `json:"allowed_user_ids"`
	AllowedRoles   []Role      `json:"allowed_roles"`
}

// AllowsUser reports whether the user id is on the allow-list
func (a *WorkspaceACL) AllowsUser(userID uuid.UUID) bool {
	if a == nil {
		return false
	}
	for _, id := range a.AllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// AllowsRole reports whether the role is on the allow-list
func (a *WorkspaceACL) AllowsRole(role Role) bool {
	if a == nil {
		return false
	}
	for _, r := range a.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}
