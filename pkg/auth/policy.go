// Package auth implements the workspace access policy every use case
// consults: role, visibility and per-workspace ACL.
package auth

import (
	"context"

	"github.com/google/uuid"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
)

// WorkspaceReader is the slice of the workspace repository the policy needs
type WorkspaceReader interface {
	GetWorkspace(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
	GetACL(ctx context.Context, workspaceID uuid.UUID) (*models.WorkspaceACL, error)
}

// Policy resolves workspaces for read or write on behalf of an actor
type Policy struct {
	workspaces WorkspaceReader
}

// NewPolicy creates the access policy
func NewPolicy(workspaces WorkspaceReader) *Policy {
	return &Policy{workspaces: workspaces}
}

// ResolveForRead loads the workspace when the actor may read it. A workspace
// the actor cannot see resolves to NOT_FOUND, never FORBIDDEN, so its
// existence does not leak.
func (p *Policy) ResolveForRead(ctx context.Context, workspaceID uuid.UUID, actor models.Actor) (*models.Workspace, error) {
	ws, err := p.workspaces.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, apperrors.NotFound("workspace not found")
	}

	if actor.IsAdmin() {
		return ws, nil
	}
	if ws.IsArchived() {
		return nil, apperrors.NotFound("workspace not found")
	}
	if ws.OwnerUserID == actor.UserID && actor.Authenticated {
		return ws, nil
	}
	if ws.Visibility == models.VisibilityOrgRead && actor.Authenticated {
		return ws, nil
	}

	acl, err := p.workspaces.GetACL(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if actor.Authenticated && (acl.AllowsUser(actor.UserID) || acl.AllowsRole(actor.Role)) {
		return ws, nil
	}
	return nil, apperrors.NotFound("workspace not found")
}

// ResolveForWrite loads the workspace when the actor may mutate it: admin or
// owner only. Archived workspaces refuse all writes with CONFLICT.
func (p *Policy) ResolveForWrite(ctx context.Context, workspaceID uuid.UUID, actor models.Actor) (*models.Workspace, error) {
	ws, err := p.workspaces.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, apperrors.NotFound("workspace not found")
	}

	isOwner := actor.Authenticated && ws.OwnerUserID == actor.UserID
	if !actor.IsAdmin() && !isOwner {
		// A caller who could read the workspace learns it exists; everyone
		// else gets the same NOT_FOUND as on the read path
		if _, readErr := p.ResolveForRead(ctx, workspaceID, actor); readErr == nil {
			return nil, apperrors.Forbidden("write access denied")
		}
		return nil, apperrors.NotFound("workspace not found")
	}
	if ws.IsArchived() {
		return nil, apperrors.Conflict("workspace is archived")
	}
	return ws, nil
}
