package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
)

type createWorkspaceRequest struct {
	Name       string `json:"name" binding:"required"`
	Visibility string `json:"visibility"`
}

func (s *Server) handleCreateWorkspace(c *gin.Context) {
	actor := actorFrom(c)
	if !actor.Authenticated {
		writeError(c, apperrors.Forbidden("authentication required"))
		return
	}

	var req createWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Validation("name is required"))
		return
	}
	visibility := models.WorkspaceVisibility(req.Visibility)
	switch visibility {
	case "", models.VisibilityPrivate:
		visibility = models.VisibilityPrivate
	case models.VisibilityOrgRead, models.VisibilityShared:
	default:
		writeError(c, apperrors.Validation("invalid visibility"))
		return
	}

	ws := &models.Workspace{
		Name:        req.Name,
		Visibility:  visibility,
		OwnerUserID: actor.UserID,
	}
	if err := s.workspaces.CreateWorkspace(c.Request.Context(), ws); err != nil {
		writeError(c, err)
		return
	}
	if s.audit != nil {
		s.audit.Record(c.Request.Context(), models.AuditEvent{
			WorkspaceID: ws.ID,
			ActorUserID: actor.UserID,
			Action:      models.AuditWorkspaceCreate,
			TargetID:    ws.ID,
		})
	}
	c.JSON(http.StatusCreated, ws)
}

func (s *Server) handleListWorkspaces(c *gin.Context) {
	actor := actorFrom(c)
	if !actor.Authenticated {
		writeError(c, apperrors.Forbidden("authentication required"))
		return
	}
	workspaces, err := s.workspaces.ListWorkspacesForOwner(c.Request.Context(), actor.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": workspaces})
}

func (s *Server) handleArchiveWorkspace(c *gin.Context) {
	wsID, ok := workspaceID(c)
	if !ok {
		return
	}
	actor := actorFrom(c)
	ws, err := s.policy.ResolveForWrite(c.Request.Context(), wsID, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.workspaces.Archive(c.Request.Context(), ws.ID); err != nil {
		writeError(c, err)
		return
	}
	if s.audit != nil {
		s.audit.Record(c.Request.Context(), models.AuditEvent{
			WorkspaceID: ws.ID,
			ActorUserID: actor.UserID,
			Action:      models.AuditWorkspaceArchive,
			TargetID:    ws.ID,
		})
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handlePublishWorkspace(c *gin.Context) {
	wsID, ok := workspaceID(c)
	if !ok {
		return
	}
	actor := actorFrom(c)
	ws, err := s.policy.ResolveForWrite(c.Request.Context(), wsID, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.workspaces.SetVisibility(c.Request.Context(), ws.ID, models.VisibilityOrgRead); err != nil {
		writeError(c, err)
		return
	}
	if s.audit != nil {
		s.audit.Record(c.Request.Context(), models.AuditEvent{
			WorkspaceID: ws.ID,
			ActorUserID: actor.UserID,
			Action:      models.AuditWorkspacePublish,
			TargetID:    ws.ID,
		})
	}
	c.Status(http.StatusNoContent)
}

type shareWorkspaceRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (s *Server) handleShareWorkspace(c *gin.Context) {
	wsID, ok := workspaceID(c)
	if !ok {
		return
	}
	actor := actorFrom(c)
	ws, err := s.policy.ResolveForWrite(c.Request.Context(), wsID, actor)
	if err != nil {
		writeError(c, err)
		return
	}

	var req shareWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.UserID == "" && req.Role == "") {
		writeError(c, apperrors.Validation("user_id or role is required"))
		return
	}

	ctx := c.Request.Context()
	if req.UserID != "" {
		userID, perr := uuid.Parse(req.UserID)
		if perr != nil {
			writeError(c, apperrors.Validation("invalid user_id"))
			return
		}
		if err := s.workspaces.ShareWithUser(ctx, ws.ID, userID); err != nil {
			writeError(c, err)
			return
		}
	}
	if req.Role != "" {
		if err := s.workspaces.ShareWithRole(ctx, ws.ID, models.Role(req.Role)); err != nil {
			writeError(c, err)
			return
		}
	}
	if err := s.workspaces.SetVisibility(ctx, ws.ID, models.VisibilityShared); err != nil {
		writeError(c, err)
		return
	}

	if s.audit != nil {
		s.audit.Record(ctx, models.AuditEvent{
			WorkspaceID: ws.ID,
			ActorUserID: actor.UserID,
			Action:      models.AuditWorkspaceShare,
			TargetID:    ws.ID,
			Metadata:    map[string]interface{}{"user_id": req.UserID, "role": req.Role},
		})
	}
	c.Status(http.StatusNoContent)
}
