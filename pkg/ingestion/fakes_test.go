package ingestion

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
)

// memDocStore is an in-memory DocumentStore with real CAS semantics
type memDocStore struct {
	mu     sync.Mutex
	docs   map[uuid.UUID]*models.Document
	chunks map[uuid.UUID][]*models.Chunk

	createErr  error
	replaceErr error
}

func newMemDocStore() *memDocStore {
	return &memDocStore{
		docs:   make(map[uuid.UUID]*models.Document),
		chunks: make(map[uuid.UUID][]*models.Chunk),
	}
}

func (s *memDocStore) CreateDocument(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	copied := *doc
	s.docs[doc.ID] = &copied
	return nil
}

func (s *memDocStore) GetDocument(_ context.Context, workspaceID, documentID uuid.UUID) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok || doc.WorkspaceID != workspaceID || doc.DeletedAt != nil {
		return nil, nil
	}
	copied := *doc
	return &copied, nil
}

func (s *memDocStore) TransitionStatus(_ context.Context, workspaceID, documentID uuid.UUID, from []models.DocumentStatus, to models.DocumentStatus, errorMessage string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok || doc.WorkspaceID != workspaceID || doc.DeletedAt != nil {
		return false, nil
	}
	for _, allowed := range from {
		if doc.Status == allowed {
			doc.Status = to
			doc.ErrorMessage = errorMessage
			return true, nil
		}
	}
	return false, nil
}

func (s *memDocStore) ReplaceChunks(_ context.Context, documentID uuid.UUID, chunks []*models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.chunks[documentID] = chunks
	return nil
}

func (s *memDocStore) SaveDocumentWithChunks(_ context.Context, doc *models.Document, chunks []*models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	doc.Status = models.StatusReady
	copied := *doc
	s.docs[doc.ID] = &copied
	s.chunks[doc.ID] = chunks
	return nil
}

func (s *memDocStore) SoftDeleteDocument(_ context.Context, workspaceID, documentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok || doc.WorkspaceID != workspaceID {
		return nil
	}
	now := time.Now()
	doc.DeletedAt = &now
	return nil
}

// memBlobs is an in-memory FileStorage
type memBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte

	uploadErr   error
	downloadErr error
	deleted     []string
}

func newMemBlobs() *memBlobs { return &memBlobs{blobs: make(map[string][]byte)} }

func (b *memBlobs) Upload(_ context.Context, key string, content io.Reader, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploadErr != nil {
		return b.uploadErr
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	b.blobs[key] = data
	return nil
}

func (b *memBlobs) Download(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.downloadErr != nil {
		return nil, b.downloadErr
	}
	return bytes.Clone(b.blobs[key]), nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, key)
	b.deleted = append(b.deleted, key)
	return nil
}

func (b *memBlobs) Presign(_ context.Context, key string, _ time.Duration, _ string) (string, error) {
	return "https://example.test/" + key, nil
}

// stubQueue records enqueues and can be made to fail
type stubQueue struct {
	mu       sync.Mutex
	enqueued []string
	err      error
}

func (q *stubQueue) Enqueue(_ context.Context, documentID, _ string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.enqueued = append(q.enqueued, documentID)
	return uuid.NewString(), nil
}

// allowAllPolicy resolves every workspace for write
type allowAllPolicy struct {
	workspace *models.Workspace
	err       error
}

func (p *allowAllPolicy) ResolveForWrite(context.Context, uuid.UUID, models.Actor) (*models.Workspace, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.workspace, nil
}

// recordingAudit captures audit events
type recordingAudit struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (a *recordingAudit) Record(_ context.Context, event models.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *recordingAudit) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}
