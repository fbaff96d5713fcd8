// Package storage provides the blob storage capability port backed by S3.
// Blobs are keyed documents/{document_id}/{file_name}; the document row is
// the authoritative index, the blob is content.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrKind tags storage failures so callers can map them onto the error
// envelope without knowing the backend
type ErrKind string

const (
	ErrConfiguration ErrKind = "Configuration"
	ErrNotFound      ErrKind = "NotFound"
	ErrPermission    ErrKind = "Permission"
	ErrUnavailable   ErrKind = "Unavailable"
)

// Error is a tagged storage error
type Error struct {
	Kind  ErrKind
	Op    string
	Key   string
	cause error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %q: %s: %v", e.Op, e.Key, e.Kind, e.cause)
	}
	return fmt.Sprintf("storage %s: %s: %v", e.Op, e.Kind, e.cause)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error { return e.cause }

// KindOf extracts the kind from an error chain, ErrUnavailable by default
func KindOf(err error) ErrKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ErrUnavailable
}

// FileStorage is the blob storage capability port
type FileStorage interface {
	// Upload stores the content under key
	Upload(ctx context.Context, key string, content io.Reader, contentType string) error
	// Download returns the blob bytes
	Download(ctx context.Context, key string) ([]byte, error)
	// Delete removes the blob; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
	// Presign returns a GET-only URL valid for ttl. When suggestedFilename
	// is non-empty the URL forces an attachment download under that name.
	Presign(ctx context.Context, key string, ttl time.Duration, suggestedFilename string) (string, error)
}
