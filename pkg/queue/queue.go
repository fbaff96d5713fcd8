// Package queue provides the document processing queue port backed by SQS.
// Delivery is at-least-once; consumers must be idempotent.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ProcessDocumentJobPath is the stable dotted path of the worker job that
// processes an uploaded document
const ProcessDocumentJobPath = "ingestion.process_document_job"

// Job is a queued unit of work. All arguments are string-serializable.
type Job struct {
	JobID       string    `json:"job_id"`
	Path        string    `json:"path"`
	DocumentID  string    `json:"document_id"`
	WorkspaceID string    `json:"workspace_id"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// ProcessingQueue is the enqueue side of the port
type ProcessingQueue interface {
	// Enqueue schedules processing of a document and returns the job id
	Enqueue(ctx context.Context, documentID, workspaceID string) (string, error)
}

// Handler executes a job
type Handler func(ctx context.Context, documentID, workspaceID string) error

// Registry maps job paths to handlers. Enqueuers validate against it so a
// job whose path nothing can execute is rejected at the door.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty job registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a job path
func (r *Registry) Register(path string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[path] = handler
}

// Resolve returns the handler for a path
func (r *Registry) Resolve(path string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[path]
	return h, ok
}

// Validate fails when the path has no registered handler
func (r *Registry) Validate(path string) error {
	if _, ok := r.Resolve(path); !ok {
		return fmt.Errorf("job path %q is not resolvable", path)
	}
	return nil
}
