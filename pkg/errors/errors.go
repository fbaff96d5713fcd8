// Package errors defines the typed failure envelope shared by every use case
// and the transient/permanent classification used by the retry layer.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies a failure category. Transports map these to status codes
// but must not invent new ones.
type Code string

const (
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeValidation         Code = "VALIDATION"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeMissing            Code = "MISSING"
	CodeEmbedding          Code = "EMBEDDING_ERROR"
	CodeLLM                Code = "LLM_ERROR"
	CodeStorage            Code = "STORAGE_ERROR"
	CodeInternal           Code = "INTERNAL"
)

// Error is the typed error carried across use-case boundaries
type Error struct {
	Code    Code
	Message string
	TraceID string
	cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.TraceID != "" {
		return fmt.Sprintf("[%s] %s (trace_id: %s)", e.Code, e.Message, e.TraceID)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error { return e.cause }

// New creates a typed error
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a typed error with a formatted message
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// WithTraceID returns a copy of the error carrying the trace id
func (e *Error) WithTraceID(traceID string) *Error {
	return &Error{Code: e.Code, Message: e.Message, TraceID: traceID, cause: e.cause}
}

// CodeOf extracts the code from an error chain, CodeInternal when untyped
func CodeOf(err error) Code {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return CodeInternal
}

// IsCode reports whether the error chain carries the given code
func IsCode(err error, code Code) bool { return CodeOf(err) == code }

// Convenience constructors for the common cases

func Forbidden(message string) *Error          { return New(CodeForbidden, message) }
func NotFound(message string) *Error           { return New(CodeNotFound, message) }
func Conflict(message string) *Error           { return New(CodeConflict, message) }
func Validation(message string) *Error         { return New(CodeValidation, message) }
func ServiceUnavailable(message string) *Error { return New(CodeServiceUnavailable, message) }
func Missing(message string) *Error            { return New(CodeMissing, message) }
