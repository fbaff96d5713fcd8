package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
)

// DocumentRepository persists documents and their chunks
type DocumentRepository struct {
	db     *sqlx.DB
	logger observability.Logger
}

// NewDocumentRepository creates a document repository
func NewDocumentRepository(db *sqlx.DB, logger observability.Logger) *DocumentRepository {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &DocumentRepository{db: db, logger: logger}
}

// CreateDocument inserts a new document row
func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO documents (id, workspace_id, title, file_name, mime_type, storage_key, status, error_message, uploaded_by_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.WorkspaceID, doc.Title, doc.FileName, doc.MimeType,
		doc.StorageKey, doc.Status, doc.ErrorMessage, doc.UploadedByUserID, doc.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return apperrors.Conflict("document already exists")
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// UpdateFileMetadata records the uploaded blob's location and content type
func (r *DocumentRepository) UpdateFileMetadata(ctx context.Context, workspaceID, documentID uuid.UUID, fileName, mimeType, storageKey string) error {
	query := `
		UPDATE documents
		SET file_name = $1, mime_type = $2, storage_key = $3
		WHERE id = $4 AND workspace_id = $5 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, fileName, mimeType, storageKey, documentID, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to update file metadata: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("document not found")
	}
	return nil
}

// TransitionStatus moves the document to a new status only when its current
// status is in the allowed set. It returns false without error when another
// writer won the race, so callers can treat the transition as idempotent.
func (r *DocumentRepository) TransitionStatus(ctx context.Context, workspaceID, documentID uuid.UUID, from []models.DocumentStatus, to models.DocumentStatus, errorMessage string) (bool, error) {
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}

	query := `
		UPDATE documents
		SET status = $1, error_message = $2
		WHERE id = $3 AND workspace_id = $4 AND status = ANY($5) AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, to, errorMessage, documentID, workspaceID, pq.Array(allowed))
	if err != nil {
		return false, fmt.Errorf("failed to transition document status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		r.logger.Debug("Document status transition lost compare-and-set", map[string]interface{}{
			"document_id": documentID.String(),
			"target":      string(to),
		})
		return false, nil
	}
	return true, nil
}

// GetDocument loads a document by id within a workspace. Returns nil when the
// document does not exist, is soft-deleted, or belongs to another workspace.
func (r *DocumentRepository) GetDocument(ctx context.Context, workspaceID, documentID uuid.UUID) (*models.Document, error) {
	query := `
		SELECT id, workspace_id, title, file_name, mime_type, storage_key, status, error_message, uploaded_by_user_id, created_at, deleted_at
		FROM documents
		WHERE id = $1 AND workspace_id = $2 AND deleted_at IS NULL`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, documentID, workspaceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// ListFilter narrows ListDocuments results
type ListFilter struct {
	Status models.DocumentStatus
	Limit  int
	// Cursor is the id of the last document from the previous page
	Cursor uuid.UUID
}

// ListDocuments returns workspace documents newest first with cursor paging
func (r *DocumentRepository) ListDocuments(ctx context.Context, workspaceID uuid.UUID, filter ListFilter) ([]*models.Document, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT id, workspace_id, title, file_name, mime_type, storage_key, status, error_message, uploaded_by_user_id, created_at, deleted_at
		FROM documents
		WHERE workspace_id = $1 AND deleted_at IS NULL`
	args := []interface{}{workspaceID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Cursor != uuid.Nil {
		args = append(args, filter.Cursor)
		query += fmt.Sprintf(" AND (created_at, id) < (SELECT created_at, id FROM documents WHERE id = $%d)", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	docs := []*models.Document{}
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// SoftDeleteDocument marks the document deleted. Chunks stay in place but are
// excluded from every search by the deleted_at predicate.
func (r *DocumentRepository) SoftDeleteDocument(ctx context.Context, workspaceID, documentID uuid.UUID) error {
	query := `
		UPDATE documents SET deleted_at = NOW()
		WHERE id = $1 AND workspace_id = $2 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, documentID, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("document not found")
	}
	return nil
}

// ReplaceChunks atomically swaps the document's chunks: old rows are deleted
// and the new set is inserted in one transaction, so readers never observe a
// half-replaced document.
func (r *DocumentRepository) ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []*models.Chunk) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}
	if err := insertChunks(ctx, tx, documentID, chunks); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk replacement: %w", err)
	}
	return nil
}

// SaveDocumentWithChunks inserts a READY document and all its chunks in one
// transaction. Used by direct text ingestion, which skips the queue.
func (r *DocumentRepository) SaveDocumentWithChunks(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.Status = models.StatusReady

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO documents (id, workspace_id, title, file_name, mime_type, storage_key, status, error_message, uploaded_by_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := tx.ExecContext(ctx, query,
		doc.ID, doc.WorkspaceID, doc.Title, doc.FileName, doc.MimeType,
		doc.StorageKey, doc.Status, doc.ErrorMessage, doc.UploadedByUserID, doc.CreatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return apperrors.Conflict("document already exists")
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	if err := insertChunks(ctx, tx, doc.ID, chunks); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document with chunks: %w", err)
	}
	return nil
}

func insertChunks(ctx context.Context, tx *sqlx.Tx, documentID uuid.UUID, chunks []*models.Chunk) error {
	query := `
		INSERT INTO document_chunks (id, document_id, chunk_index, content, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5::vector, $6, $7)`
	now := time.Now().UTC()
	for _, chunk := range chunks {
		if chunk.ID == uuid.Nil {
			chunk.ID = uuid.New()
		}
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = now
		}
		meta, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query,
			chunk.ID, documentID, chunk.ChunkIndex, chunk.Content,
			vectorLiteral(chunk.Embedding), meta, chunk.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunk.ChunkIndex, err)
		}
	}
	return nil
}

// searchRow is the scan target shared by both search branches
type searchRow struct {
	ID            uuid.UUID `db:"id"`
	DocumentID    uuid.UUID `db:"document_id"`
	ChunkIndex    int       `db:"chunk_index"`
	Content       string    `db:"content"`
	Metadata      []byte    `db:"metadata"`
	CreatedAt     time.Time `db:"created_at"`
	Score         float64   `db:"score"`
	DocumentTitle string    `db:"document_title"`
}

func (row *searchRow) toRetrieved() (models.RetrievedChunk, error) {
	chunk := models.Chunk{
		ID:         row.ID,
		DocumentID: row.DocumentID,
		ChunkIndex: row.ChunkIndex,
		Content:    row.Content,
		CreatedAt:  row.CreatedAt,
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &chunk.Metadata); err != nil {
			return models.RetrievedChunk{}, fmt.Errorf("failed to unmarshal chunk metadata: %w", err)
		}
	}
	return models.RetrievedChunk{Chunk: chunk, Score: row.Score, DocumentTitle: row.DocumentTitle}, nil
}

// SearchSimilar returns the topK chunks closest to the query embedding within
// the workspace. Only READY, non-deleted documents in non-archived workspaces
// participate. Equal distances break ties by chunk id ascending so results
// are deterministic.
func (r *DocumentRepository) SearchSimilar(ctx context.Context, workspaceID uuid.UUID, embedding []float32, topK int) ([]models.RetrievedChunk, error) {
	if topK <= 0 {
		topK = 10
	}
	query := `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.metadata, c.created_at,
		       1 - (c.embedding <=> $2::vector) AS score,
		       d.title AS document_title
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		JOIN workspaces w ON w.id = d.workspace_id
		WHERE d.workspace_id = $1
		  AND d.status = 'READY'
		  AND d.deleted_at IS NULL
		  AND w.archived_at IS NULL
		ORDER BY c.embedding <=> $2::vector, c.id ASC
		LIMIT $3`

	rows := []searchRow{}
	if err := r.db.SelectContext(ctx, &rows, query, workspaceID, vectorLiteral(embedding), topK); err != nil {
		return nil, fmt.Errorf("failed to run similarity search: %w", err)
	}
	return toRetrievedChunks(rows)
}

// SearchFullText returns the topK chunks ranked by Postgres full-text match
// against the raw query. This is the sparse branch of hybrid retrieval.
func (r *DocumentRepository) SearchFullText(ctx context.Context, workspaceID uuid.UUID, query string, topK int) ([]models.RetrievedChunk, error) {
	if topK <= 0 {
		topK = 10
	}
	sqlQuery := `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.metadata, c.created_at,
		       ts_rank(to_tsvector('simple', c.content), plainto_tsquery('simple', $2)) AS score,
		       d.title AS document_title
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		JOIN workspaces w ON w.id = d.workspace_id
		WHERE d.workspace_id = $1
		  AND d.status = 'READY'
		  AND d.deleted_at IS NULL
		  AND w.archived_at IS NULL
		  AND to_tsvector('simple', c.content) @@ plainto_tsquery('simple', $2)
		ORDER BY score DESC, c.id ASC
		LIMIT $3`

	rows := []searchRow{}
	if err := r.db.SelectContext(ctx, &rows, sqlQuery, workspaceID, query, topK); err != nil {
		return nil, fmt.Errorf("failed to run full-text search: %w", err)
	}
	return toRetrievedChunks(rows)
}

func toRetrievedChunks(rows []searchRow) ([]models.RetrievedChunk, error) {
	results := make([]models.RetrievedChunk, 0, len(rows))
	for i := range rows {
		rc, err := rows[i].toRetrieved()
		if err != nil {
			return nil, err
		}
		results = append(results, rc)
	}
	return results, nil
}
