package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/ingestion"
	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
	"github.com/SaintWyss/rag-corp-sub003/pkg/repository"
)

func (s *Server) handleUploadDocument(c *gin.Context) {
	wsID, ok := workspaceID(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxFileSize)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		writeError(c, apperrors.Validation("multipart field 'file' is required"))
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	doc, err := s.upload.Upload(c.Request.Context(), ingestion.UploadInput{
		WorkspaceID: wsID,
		Actor:       actorFrom(c),
		Title:       c.PostForm("title"),
		FileName:    header.Filename,
		MimeType:    mimeType,
		Content:     file,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, doc)
}

func (s *Server) handleListDocuments(c *gin.Context) {
	wsID, ok := workspaceID(c)
	if !ok {
		return
	}
	ws, err := s.policy.ResolveForRead(c.Request.Context(), wsID, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	filter := repository.ListFilter{
		Status: models.DocumentStatus(c.Query("status")),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, perr := strconv.Atoi(raw)
		if perr != nil || limit < 1 {
			writeError(c, apperrors.Validation("invalid limit"))
			return
		}
		filter.Limit = limit
	}
	if raw := c.Query("cursor"); raw != "" {
		cursor, perr := uuid.Parse(raw)
		if perr != nil {
			writeError(c, apperrors.Validation("invalid cursor"))
			return
		}
		filter.Cursor = cursor
	}

	docs, err := s.documents.ListDocuments(c.Request.Context(), ws.ID, filter)
	if err != nil {
		writeError(c, err)
		return
	}

	next := ""
	if len(docs) > 0 && filter.Limit > 0 && len(docs) == filter.Limit {
		next = docs[len(docs)-1].ID.String()
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "next_cursor": next})
}

func (s *Server) handleGetDocument(c *gin.Context) {
	wsID, ok := workspaceID(c)
	if !ok {
		return
	}
	docID, ok := documentID(c)
	if !ok {
		return
	}
	ws, err := s.policy.ResolveForRead(c.Request.Context(), wsID, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	doc, err := s.documents.GetDocument(c.Request.Context(), ws.ID, docID)
	if err != nil {
		writeError(c, err)
		return
	}
	if doc == nil {
		writeError(c, apperrors.NotFound("document not found"))
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleDownloadDocument(c *gin.Context) {
	wsID, ok := workspaceID(c)
	if !ok {
		return
	}
	docID, ok := documentID(c)
	if !ok {
		return
	}
	ws, err := s.policy.ResolveForRead(c.Request.Context(), wsID, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	doc, err := s.documents.GetDocument(c.Request.Context(), ws.ID, docID)
	if err != nil {
		writeError(c, err)
		return
	}
	if doc == nil || !doc.HasFileMetadata() {
		writeError(c, apperrors.NotFound("document has no downloadable file"))
		return
	}
	if s.blobs == nil {
		writeError(c, apperrors.ServiceUnavailable("file storage is not configured"))
		return
	}

	url, err := s.blobs.Presign(c.Request.Context(), doc.StorageKey, s.presignTTL, doc.FileName)
	if err != nil {
		writeError(c, apperrors.Wrap(err, apperrors.CodeStorage, "failed to presign download"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expires_in_seconds": int(s.presignTTL.Seconds())})
}

func (s *Server) handleReprocessDocument(c *gin.Context) {
	wsID, ok := workspaceID(c)
	if !ok {
		return
	}
	docID, ok := documentID(c)
	if !ok {
		return
	}
	if err := s.manage.Reprocess(c.Request.Context(), wsID, docID, actorFrom(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCancelDocument(c *gin.Context) {
	wsID, ok := workspaceID(c)
	if !ok {
		return
	}
	docID, ok := documentID(c)
	if !ok {
		return
	}
	var req cancelRequest
	_ = c.ShouldBindJSON(&req)

	if err := s.manage.Cancel(c.Request.Context(), wsID, docID, actorFrom(c), req.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	wsID, ok := workspaceID(c)
	if !ok {
		return
	}
	docID, ok := documentID(c)
	if !ok {
		return
	}
	if err := s.manage.Delete(c.Request.Context(), wsID, docID, actorFrom(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type directIngestRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
}

func (s *Server) handleDirectIngest(c *gin.Context) {
	wsID, ok := workspaceID(c)
	if !ok {
		return
	}
	var req directIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Validation("title and content are required"))
		return
	}

	doc, err := s.directIngest.Ingest(c.Request.Context(), ingestion.DirectIngestInput{
		WorkspaceID: wsID,
		Actor:       actorFrom(c),
		Title:       req.Title,
		Content:     req.Content,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}
