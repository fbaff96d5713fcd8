package errors

import "fmt"

// StatusError carries an upstream HTTP status so the retry layer can
// classify it without string matching.
type StatusError struct {
	Status  int
	Message string
}

// Error implements the error interface
func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// NewStatusError creates a StatusError
func NewStatusError(status int, message string) *StatusError {
	return &StatusError{Status: status, Message: message}
}
