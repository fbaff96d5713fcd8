package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentStatus is the ingestion state of a document
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "PENDING"
	StatusProcessing DocumentStatus = "PROCESSING"
	StatusReady      DocumentStatus = "READY"
	StatusFailed     DocumentStatus = "FAILED"
)

// Document represents an ingested document. storage_key and mime_type must be
// set before the document may enter PROCESSING.
type Document struct {
	ID               uuid.UUID      `json:"id" db:"id"`
	WorkspaceID      uuid.UUID      `json:"workspace_id" db:"workspace_id"`
	Title            string         `json:"title" db:"title"`
	FileName         string         `json:"file_name,omitempty" db:"file_name"`
	MimeType         string         `json:"mime_type,omitempty" db:"mime_type"`
	StorageKey       string         `json:"storage_key,omitempty" db:"storage_key"`
	Status           DocumentStatus `json:"status" db:"status"`
	ErrorMessage     string         `json:"error_message,omitempty" db:"error_message"`
	UploadedByUserID uuid.UUID      `json:"uploaded_by_user_id" db:"uploaded_by_user_id"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	DeletedAt        *time.Time     `json:"deleted_at,omitempty" db:"deleted_at"`
}

// HasFileMetadata reports whether the document carries everything the worker
// needs to download and extract it
func (d *Document) HasFileMetadata() bool {
	return d.StorageKey != "" && d.MimeType != ""
}

// StorageKeyFor builds the canonical blob key for a document file
func StorageKeyFor(documentID uuid.UUID, fileName string) string {
	return fmt.Sprintf("documents/%s/%s", documentID, fileName)
}

// Chunk represents a contiguous fragment of a document with its embedding.
// ChunkIndex is strictly increasing and contiguous within a document.
type Chunk struct {
	ID         uuid.UUID              `json:"id" db:"id"`
	DocumentID uuid.UUID              `json:"document_id" db:"document_id"`
	ChunkIndex int                    `json:"chunk_index" db:"chunk_index"`
	Content    string                 `json:"content" db:"content"`
	Embedding  []float32              `json:"-" db:"-"`
	Metadata   map[string]interface{} `json:"metadata" db:"metadata"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
}

// Metadata keys attached to chunks during ingestion
const (
	ChunkMetaDocumentTitle  = "document_title"
	ChunkMetaInjectionRisk  = "injection_risk"
	ChunkMetaInjectionFlags = "injection_flags"
)

// InjectionRisk returns the precomputed injection risk score, 0 when absent
func (c *Chunk) InjectionRisk() float64 {
	if c.Metadata == nil {
		return 0
	}
	switch v := c.Metadata[ChunkMetaInjectionRisk].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// RetrievedChunk is a chunk with its similarity score from search
type RetrievedChunk struct {
	Chunk
	Score         float64 `json:"score"`
	DocumentTitle string  `json:"document_title"`
}
