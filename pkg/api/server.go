package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/SaintWyss/rag-corp-sub003/pkg/ingestion"
	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
	"github.com/SaintWyss/rag-corp-sub003/pkg/rag"
	"github.com/SaintWyss/rag-corp-sub003/pkg/repository"
	"github.com/SaintWyss/rag-corp-sub003/pkg/storage"
)

// WorkspaceStore is the slice of the workspace repository the API needs
type WorkspaceStore interface {
	CreateWorkspace(ctx context.Context, ws *models.Workspace) error
	ListWorkspacesForOwner(ctx context.Context, ownerUserID uuid.UUID) ([]*models.Workspace, error)
	SetVisibility(ctx context.Context, id uuid.UUID, visibility models.WorkspaceVisibility) error
	Archive(ctx context.Context, id uuid.UUID) error
	ShareWithUser(ctx context.Context, workspaceID, userID uuid.UUID) error
	ShareWithRole(ctx context.Context, workspaceID uuid.UUID, role models.Role) error
}

// DocumentReader is the read-side slice of the document repository
type DocumentReader interface {
	GetDocument(ctx context.Context, workspaceID, documentID uuid.UUID) (*models.Document, error)
	ListDocuments(ctx context.Context, workspaceID uuid.UUID, filter repository.ListFilter) ([]*models.Document, error)
}

// WorkspacePolicy resolves workspaces for reads and writes
type WorkspacePolicy interface {
	ResolveForRead(ctx context.Context, workspaceID uuid.UUID, actor models.Actor) (*models.Workspace, error)
	ResolveForWrite(ctx context.Context, workspaceID uuid.UUID, actor models.Actor) (*models.Workspace, error)
}

// Answerer runs the question answering pipeline
type Answerer interface {
	Answer(ctx context.Context, req rag.AnswerRequest) (*rag.AnswerResult, error)
	AnswerStream(ctx context.Context, req rag.AnswerRequest) (<-chan rag.StreamEvent, error)
}

// Server wires the use cases to HTTP
type Server struct {
	policy       WorkspacePolicy
	workspaces   WorkspaceStore
	documents    DocumentReader
	upload       *ingestion.UploadUseCase
	manage       *ingestion.ManageUseCase
	directIngest *ingestion.DirectIngestUseCase
	answerer     Answerer
	blobs        storage.FileStorage
	quota        ingestion.QuotaLimiter
	audit        ingestion.AuditRecorder
	logger       observability.Logger

	jwtSecret   string
	presignTTL  time.Duration
	maxFileSize int64
}

// Options configures the server
type Options struct {
	Policy       WorkspacePolicy
	Workspaces   WorkspaceStore
	Documents    DocumentReader
	Upload       *ingestion.UploadUseCase
	Manage       *ingestion.ManageUseCase
	DirectIngest *ingestion.DirectIngestUseCase
	Answerer     Answerer
	Blobs        storage.FileStorage
	Quota        ingestion.QuotaLimiter
	Audit        ingestion.AuditRecorder
	Logger       observability.Logger
	JWTSecret    string
}

// NewServer creates the HTTP server
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Server{
		policy:       opts.Policy,
		workspaces:   opts.Workspaces,
		documents:    opts.Documents,
		upload:       opts.Upload,
		manage:       opts.Manage,
		directIngest: opts.DirectIngest,
		answerer:     opts.Answerer,
		blobs:        opts.Blobs,
		quota:        opts.Quota,
		audit:        opts.Audit,
		logger:       logger,
		jwtSecret:    opts.JWTSecret,
		presignTTL:   15 * time.Minute,
		maxFileSize:  32 << 20,
	}
}

// Router builds the gin engine with all routes registered
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ActorMiddleware(s.jwtSecret, s.logger))

	router.GET("/health", s.handleHealth)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/workspaces", s.handleCreateWorkspace)
		v1.GET("/workspaces", s.handleListWorkspaces)
		v1.POST("/workspaces/:id/archive", s.handleArchiveWorkspace)
		v1.POST("/workspaces/:id/publish", s.handlePublishWorkspace)
		v1.POST("/workspaces/:id/share", s.handleShareWorkspace)

		v1.POST("/workspaces/:id/documents", s.handleUploadDocument)
		v1.GET("/workspaces/:id/documents", s.handleListDocuments)
		v1.GET("/workspaces/:id/documents/:docID", s.handleGetDocument)
		v1.GET("/workspaces/:id/documents/:docID/download", s.handleDownloadDocument)
		v1.POST("/workspaces/:id/documents/:docID/reprocess", s.handleReprocessDocument)
		v1.POST("/workspaces/:id/documents/:docID/cancel", s.handleCancelDocument)
		v1.DELETE("/workspaces/:id/documents/:docID", s.handleDeleteDocument)
		v1.POST("/workspaces/:id/ingest", s.handleDirectIngest)

		v1.POST("/workspaces/:id/ask", s.handleAsk)
		v1.POST("/workspaces/:id/ask/stream", s.handleAskStream)
	}
	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

// workspaceID parses the :id path parameter
func workspaceID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid workspace id"})
		return uuid.Nil, false
	}
	return id, true
}

func documentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("docID"))
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid document id"})
		return uuid.Nil, false
	}
	return id, true
}
