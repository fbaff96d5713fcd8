package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
	"github.com/SaintWyss/rag-corp-sub003/pkg/rag"
	"github.com/SaintWyss/rag-corp-sub003/pkg/repository"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubPolicy struct {
	workspace *models.Workspace
	err       error
}

func (p *stubPolicy) ResolveForRead(ctx context.Context, workspaceID uuid.UUID, actor models.Actor) (*models.Workspace, error) {
	return p.workspace, p.err
}

func (p *stubPolicy) ResolveForWrite(ctx context.Context, workspaceID uuid.UUID, actor models.Actor) (*models.Workspace, error) {
	return p.workspace, p.err
}

type stubWorkspaces struct {
	created []*models.Workspace
	err     error
}

func (s *stubWorkspaces) CreateWorkspace(ctx context.Context, ws *models.Workspace) error {
	if s.err != nil {
		return s.err
	}
	ws.ID = uuid.New()
	s.created = append(s.created, ws)
	return nil
}

func (s *stubWorkspaces) ListWorkspacesForOwner(ctx context.Context, ownerUserID uuid.UUID) ([]*models.Workspace, error) {
	return s.created, s.err
}

func (s *stubWorkspaces) SetVisibility(ctx context.Context, id uuid.UUID, visibility models.WorkspaceVisibility) error {
	return s.err
}

func (s *stubWorkspaces) Archive(ctx context.Context, id uuid.UUID) error { return s.err }

func (s *stubWorkspaces) ShareWithUser(ctx context.Context, workspaceID, userID uuid.UUID) error {
	return s.err
}

func (s *stubWorkspaces) ShareWithRole(ctx context.Context, workspaceID uuid.UUID, role models.Role) error {
	return s.err
}

type stubDocuments struct {
	doc        *models.Document
	docs       []*models.Document
	lastFilter repository.ListFilter
	err        error
}

func (s *stubDocuments) GetDocument(ctx context.Context, workspaceID, documentID uuid.UUID) (*models.Document, error) {
	return s.doc, s.err
}

func (s *stubDocuments) ListDocuments(ctx context.Context, workspaceID uuid.UUID, filter repository.ListFilter) ([]*models.Document, error) {
	s.lastFilter = filter
	return s.docs, s.err
}

type stubAnswerer struct {
	result *rag.AnswerResult
	events []rag.StreamEvent
	err    error
}

func (s *stubAnswerer) Answer(ctx context.Context, req rag.AnswerRequest) (*rag.AnswerResult, error) {
	return s.result, s.err
}

func (s *stubAnswerer) AnswerStream(ctx context.Context, req rag.AnswerRequest) (<-chan rag.StreamEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan rag.StreamEvent, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

type stubQuota struct {
	decision models.QuotaDecision
	checkErr error
	recorded map[models.QuotaResource]int64
}

func newStubQuota() *stubQuota {
	return &stubQuota{
		decision: models.QuotaDecision{Allowed: true, Remaining: -1},
		recorded: make(map[models.QuotaResource]int64),
	}
}

func (s *stubQuota) Check(ctx context.Context, resource models.QuotaResource, scope models.QuotaScope) (models.QuotaDecision, error) {
	return s.decision, s.checkErr
}

func (s *stubQuota) Record(ctx context.Context, resource models.QuotaResource, scope models.QuotaScope, amount int64) error {
	s.recorded[resource] += amount
	return nil
}

type stubAudit struct {
	events []models.AuditEvent
}

func (s *stubAudit) Record(ctx context.Context, event models.AuditEvent) {
	s.events = append(s.events, event)
}

type fixture struct {
	server     *Server
	policy     *stubPolicy
	workspaces *stubWorkspaces
	documents  *stubDocuments
	answerer   *stubAnswerer
	quota      *stubQuota
	audit      *stubAudit
	workspace  *models.Workspace
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ws := &models.Workspace{
		ID:          uuid.New(),
		Name:        "docs-legal",
		Visibility:  models.VisibilityPrivate,
		OwnerUserID: uuid.New(),
	}
	f := &fixture{
		policy:     &stubPolicy{workspace: ws},
		workspaces: &stubWorkspaces{},
		documents:  &stubDocuments{},
		answerer:   &stubAnswerer{},
		quota:      newStubQuota(),
		audit:      &stubAudit{},
		workspace:  ws,
	}
	f.server = NewServer(Options{
		Policy:     f.policy,
		Workspaces: f.workspaces,
		Documents:  f.documents,
		Answerer:   f.answerer,
		Quota:      f.quota,
		Audit:      f.audit,
		JWTSecret:  testSecret,
	})
	return f
}

func signToken(t *testing.T, subject uuid.UUID, role string) string {
	t.Helper()
	claims := actorClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestActorMiddleware(t *testing.T) {
	logger := observability.NewNoopLogger()

	newEngine := func() (*gin.Engine, *models.Actor) {
		var captured models.Actor
		router := gin.New()
		router.Use(ActorMiddleware(testSecret, logger))
		router.GET("/probe", func(c *gin.Context) {
			captured = actorFrom(c)
			c.Status(http.StatusOK)
		})
		return router, &captured
	}

	t.Run("no header resolves anonymous actor", func(t *testing.T) {
		router, captured := newEngine()
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, captured.Authenticated)
		assert.Equal(t, uuid.Nil, captured.UserID)
	})

	t.Run("valid token resolves authenticated actor", func(t *testing.T) {
		router, captured := newEngine()
		userID := uuid.New()
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, userID, "editor"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, captured.Authenticated)
		assert.Equal(t, userID, captured.UserID)
		assert.Equal(t, models.Role("EDITOR"), captured.Role)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		router, _ := newEngine()
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("non-bearer header is rejected", func(t *testing.T) {
		router, _ := newEngine()
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestCreateWorkspace(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		f := newFixture(t)
		rec := doJSON(t, f.server.Router(), http.MethodPost, "/api/v1/workspaces", "", gin.H{"name": "docs"})

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("creates and audits", func(t *testing.T) {
		f := newFixture(t)
		token := signToken(t, uuid.New(), "admin")
		rec := doJSON(t, f.server.Router(), http.MethodPost, "/api/v1/workspaces", token, gin.H{"name": "docs"})

		require.Equal(t, http.StatusCreated, rec.Code)
		require.Len(t, f.workspaces.created, 1)
		assert.Equal(t, models.VisibilityPrivate, f.workspaces.created[0].Visibility)
		require.Len(t, f.audit.events, 1)
		assert.Equal(t, models.AuditWorkspaceCreate, f.audit.events[0].Action)
	})

	t.Run("rejects unknown visibility", func(t *testing.T) {
		f := newFixture(t)
		token := signToken(t, uuid.New(), "admin")
		rec := doJSON(t, f.server.Router(), http.MethodPost, "/api/v1/workspaces", token,
			gin.H{"name": "docs", "visibility": "EVERYONE"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetDocument(t *testing.T) {
	t.Run("missing document maps to 404", func(t *testing.T) {
		f := newFixture(t)
		path := fmt.Sprintf("/api/v1/workspaces/%s/documents/%s", f.workspace.ID, uuid.New())
		rec := doJSON(t, f.server.Router(), http.MethodGet, path, "", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), string(apperrors.CodeNotFound))
	})

	t.Run("forbidden workspace maps to 403", func(t *testing.T) {
		f := newFixture(t)
		f.policy.workspace = nil
		f.policy.err = apperrors.Forbidden("access denied")
		path := fmt.Sprintf("/api/v1/workspaces/%s/documents/%s", uuid.New(), uuid.New())
		rec := doJSON(t, f.server.Router(), http.MethodGet, path, "", nil)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("invalid workspace id maps to 400", func(t *testing.T) {
		f := newFixture(t)
		rec := doJSON(t, f.server.Router(), http.MethodGet, "/api/v1/workspaces/nope/documents/"+uuid.New().String(), "", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListDocuments(t *testing.T) {
	t.Run("passes status and cursor through", func(t *testing.T) {
		f := newFixture(t)
		cursor := uuid.New()
		path := fmt.Sprintf("/api/v1/workspaces/%s/documents?status=READY&cursor=%s&limit=10", f.workspace.ID, cursor)
		rec := doJSON(t, f.server.Router(), http.MethodGet, path, "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, models.StatusReady, f.documents.lastFilter.Status)
		assert.Equal(t, cursor, f.documents.lastFilter.Cursor)
		assert.Equal(t, 10, f.documents.lastFilter.Limit)
	})

	t.Run("rejects malformed cursor", func(t *testing.T) {
		f := newFixture(t)
		path := fmt.Sprintf("/api/v1/workspaces/%s/documents?cursor=abc", f.workspace.ID)
		rec := doJSON(t, f.server.Router(), http.MethodGet, path, "", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAsk(t *testing.T) {
	t.Run("returns the answer with sources", func(t *testing.T) {
		f := newFixture(t)
		docID := uuid.New()
		f.answerer.result = &rag.AnswerResult{
			Answer:         "El contrato vence el 31 de diciembre.",
			Sources:        []rag.Source{{Index: 1, DocumentID: docID, DocumentTitle: "Contrato marco"}},
			ConversationID: uuid.New().String(),
			HybridUsed:     true,
		}
		path := fmt.Sprintf("/api/v1/workspaces/%s/ask", f.workspace.ID)
		rec := doJSON(t, f.server.Router(), http.MethodPost, path, "", gin.H{"query": "¿cuándo vence el contrato?"})

		require.Equal(t, http.StatusOK, rec.Code)
		var resp askResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, f.answerer.result.Answer, resp.Answer)
		require.Len(t, resp.Sources, 1)
		assert.Equal(t, docID, resp.Sources[0].DocumentID)
		assert.True(t, resp.HybridUsed)

		assert.Equal(t, int64(1), f.quota.recorded[models.QuotaMessages])
		assert.Equal(t, estimateTokens(f.answerer.result.Answer), f.quota.recorded[models.QuotaTokens])
	})

	t.Run("quota denial maps to 429 with Retry-After", func(t *testing.T) {
		f := newFixture(t)
		f.quota.decision = models.QuotaDecision{Allowed: false, RetryAfterSeconds: 120}
		path := fmt.Sprintf("/api/v1/workspaces/%s/ask", f.workspace.ID)
		rec := doJSON(t, f.server.Router(), http.MethodPost, path, "", gin.H{"query": "hola"})

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "120", rec.Header().Get("Retry-After"))
		assert.Equal(t, int64(0), f.quota.recorded[models.QuotaMessages])
	})

	t.Run("missing query maps to 400", func(t *testing.T) {
		f := newFixture(t)
		path := fmt.Sprintf("/api/v1/workspaces/%s/ask", f.workspace.ID)
		rec := doJSON(t, f.server.Router(), http.MethodPost, path, "", gin.H{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("generation failure maps to 502", func(t *testing.T) {
		f := newFixture(t)
		f.answerer.err = apperrors.New(apperrors.CodeLLM, "provider down")
		path := fmt.Sprintf("/api/v1/workspaces/%s/ask", f.workspace.ID)
		rec := doJSON(t, f.server.Router(), http.MethodPost, path, "", gin.H{"query": "hola"})

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestAskStream(t *testing.T) {
	f := newFixture(t)
	conversationID := uuid.New().String()
	f.answerer.events = []rag.StreamEvent{
		{Type: rag.EventSources, ConversationID: conversationID, Sources: []rag.Source{{Index: 1, DocumentTitle: "Contrato"}}},
		{Type: rag.EventToken, Token: "El contrato "},
		{Type: rag.EventToken, Token: "vence en diciembre."},
		{Type: rag.EventDone, ConversationID: conversationID, Answer: "El contrato vence en diciembre."},
	}

	path := fmt.Sprintf("/api/v1/workspaces/%s/ask/stream", f.workspace.ID)
	rec := doJSON(t, f.server.Router(), http.MethodPost, path, "", gin.H{"query": "¿cuándo vence?"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	frames := strings.Split(strings.TrimSpace(body), "\n\n")
	require.Len(t, frames, 4)
	assert.True(t, strings.HasPrefix(frames[0], "event: sources\n"))
	assert.True(t, strings.HasPrefix(frames[1], "event: token\n"))
	assert.True(t, strings.HasPrefix(frames[3], "event: done\n"))
	assert.Contains(t, frames[3], conversationID)

	assert.Equal(t, int64(1), f.quota.recorded[models.QuotaMessages])
	assert.Greater(t, f.quota.recorded[models.QuotaTokens], int64(0))
}

func TestDownloadDocument(t *testing.T) {
	f := newFixture(t)
	f.documents.doc = &models.Document{
		ID:          uuid.New(),
		WorkspaceID: f.workspace.ID,
		Title:       "Contrato marco",
		FileName:    "contrato.pdf",
		MimeType:    "application/pdf",
		StorageKey:  "documents/y/contrato.pdf",
		Status:      models.StatusReady,
		CreatedAt:   time.Now(),
	}
	f.server.blobs = &presignOnlyBlobs{url: "https://blobs.example/contrato.pdf?sig=abc"}

	path := fmt.Sprintf("/api/v1/workspaces/%s/documents/%s/download", f.workspace.ID, f.documents.doc.ID)
	rec := doJSON(t, f.server.Router(), http.MethodGet, path, "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://blobs.example/contrato.pdf")
}

type presignOnlyBlobs struct {
	url string
}

func (b *presignOnlyBlobs) Upload(ctx context.Context, key string, content io.Reader, contentType string) error {
	return nil
}

func (b *presignOnlyBlobs) Download(ctx context.Context, key string) ([]byte, error) {
	return nil, nil
}

func (b *presignOnlyBlobs) Delete(ctx context.Context, key string) error { return nil }

func (b *presignOnlyBlobs) Presign(ctx context.Context, key string, ttl time.Duration, suggestedFilename string) (string, error) {
	return b.url, nil
}
