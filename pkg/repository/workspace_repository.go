package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
)

// WorkspaceRepository persists workspaces and their ACLs
type WorkspaceRepository struct {
	db *sqlx.DB
}

// NewWorkspaceRepository creates a workspace repository
func NewWorkspaceRepository(db *sqlx.DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

// CreateWorkspace inserts a new workspace
func (r *WorkspaceRepository) CreateWorkspace(ctx context.Context, ws *models.Workspace) error {
	if ws.ID == uuid.Nil {
		ws.ID = uuid.New()
	}
	if ws.Visibility == "" {
		ws.Visibility = models.VisibilityPrivate
	}
	now := time.Now().UTC()
	if ws.CreatedAt.IsZero() {
		ws.CreatedAt = now
	}
	ws.UpdatedAt = now

	query := `
		INSERT INTO workspaces (id, name, visibility, owner_user_id, archived_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		ws.ID, ws.Name, ws.Visibility, ws.OwnerUserID, ws.ArchivedAt, ws.CreatedAt, ws.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return apperrors.Conflict("workspace already exists")
		}
		return fmt.Errorf("failed to insert workspace: %w", err)
	}
	return nil
}

// GetWorkspace loads a workspace by id, archived or not. Returns nil when it
// does not exist; the access policy decides what archived means per caller.
func (r *WorkspaceRepository) GetWorkspace(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	query := `
		SELECT id, name, visibility, owner_user_id, archived_at, created_at, updated_at
		FROM workspaces WHERE id = $1`
	var ws models.Workspace
	if err := r.db.GetContext(ctx, &ws, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return &ws, nil
}

// ListWorkspacesForOwner returns the caller's non-archived workspaces
func (r *WorkspaceRepository) ListWorkspacesForOwner(ctx context.Context, ownerUserID uuid.UUID) ([]*models.Workspace, error) {
	query := `
		SELECT id, name, visibility, owner_user_id, archived_at, created_at, updated_at
		FROM workspaces
		WHERE owner_user_id = $1 AND archived_at IS NULL
		ORDER BY created_at DESC`
	workspaces := []*models.Workspace{}
	if err := r.db.SelectContext(ctx, &workspaces, query, ownerUserID); err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	return workspaces, nil
}

// SetVisibility updates the workspace visibility
func (r *WorkspaceRepository) SetVisibility(ctx context.Context, id uuid.UUID, visibility models.WorkspaceVisibility) error {
	query := `
		UPDATE workspaces SET visibility = $1, updated_at = NOW()
		WHERE id = $2 AND archived_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, visibility, id)
	if err != nil {
		return fmt.Errorf("failed to update workspace visibility: %w", err)
	}
	return requireRowAffected(result, "workspace not found")
}

// Archive soft-deletes the workspace. Archiving twice is a no-op conflict.
func (r *WorkspaceRepository) Archive(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE workspaces SET archived_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND archived_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to archive workspace: %w", err)
	}
	return requireRowAffected(result, "workspace not found")
}

// GetACL loads the workspace allow-list. A workspace with no ACL rows gets an
// empty ACL, which allows nobody beyond visibility rules.
func (r *WorkspaceRepository) GetACL(ctx context.Context, workspaceID uuid.UUID) (*models.WorkspaceACL, error) {
	acl := &models.WorkspaceACL{WorkspaceID: workspaceID}

	userQuery := `SELECT user_id FROM workspace_acl_users WHERE workspace_id = $1`
	if err := r.db.SelectContext(ctx, &acl.AllowedUserIDs, userQuery, workspaceID); err != nil {
		return nil, fmt.Errorf("failed to load ACL users: %w", err)
	}
	roleQuery := `SELECT role FROM workspace_acl_roles WHERE workspace_id = $1`
	if err := r.db.SelectContext(ctx, &acl.AllowedRoles, roleQuery, workspaceID); err != nil {
		return nil, fmt.Errorf("failed to load ACL roles: %w", err)
	}
	return acl, nil
}

// ShareWithUser adds a user to the workspace allow-list, idempotently
func (r *WorkspaceRepository) ShareWithUser(ctx context.Context, workspaceID, userID uuid.UUID) error {
	query := `
		INSERT INTO workspace_acl_users (workspace_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (workspace_id, user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, workspaceID, userID); err != nil {
		return fmt.Errorf("failed to share workspace with user: %w", err)
	}
	return nil
}

// ShareWithRole adds a role to the workspace allow-list, idempotently
func (r *WorkspaceRepository) ShareWithRole(ctx context.Context, workspaceID uuid.UUID, role models.Role) error {
	query := `
		INSERT INTO workspace_acl_roles (workspace_id, role)
		VALUES ($1, $2)
		ON CONFLICT (workspace_id, role) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, workspaceID, role); err != nil {
		return fmt.Errorf("failed to share workspace with role: %w", err)
	}
	return nil
}

// RevokeUser removes a user from the allow-list
func (r *WorkspaceRepository) RevokeUser(ctx context.Context, workspaceID, userID uuid.UUID) error {
	query := `DELETE FROM workspace_acl_users WHERE workspace_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, workspaceID, userID); err != nil {
		return fmt.Errorf("failed to revoke workspace user: %w", err)
	}
	return nil
}

func requireRowAffected(result sql.Result, notFoundMsg string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound(notFoundMsg)
	}
	return nil
}
