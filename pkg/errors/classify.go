package errors

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// ErrorClass represents the retry classification of an error
type ErrorClass int

const (
	// ClassUnknown indicates an unclassified error
	ClassUnknown ErrorClass = iota
	// ClassTransient indicates a temporary error that may be retried
	ClassTransient
	// ClassPermanent indicates a permanent error that should not be retried
	ClassPermanent
)

// transientStatusCodes are HTTP statuses worth retrying. 501 is excluded:
// Not Implemented never heals on its own.
func transientStatus(status int) bool {
	if status == 408 || status == 429 {
		return true
	}
	return status >= 500 && status != 501
}

// permanentStatusCodes are HTTP statuses that fail fast
func permanentStatus(status int) bool {
	switch status {
	case 400, 401, 403, 404:
		return true
	}
	return false
}

// ClassifyStatus classifies an HTTP status code from a provider response
func ClassifyStatus(status int) ErrorClass {
	switch {
	case transientStatus(status):
		return ClassTransient
	case permanentStatus(status):
		return ClassPermanent
	default:
		return ClassUnknown
	}
}

// transientMarkers are provider error strings that clearly indicate a
// retryable condition. Matching is deliberately conservative: anything not
// recognized here stays permanent.
var transientMarkers = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"broken pipe",
	"temporarily unavailable",
	"service unavailable",
	"slow down",
	"throttl",
	"rate limit",
	"too many requests",
	"try again",
	"eof",
}

// Classify classifies an arbitrary error from an SDK or network call.
// Context cancellation is permanent: the caller gave up, retrying is wrong.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassPermanent
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if class := ClassifyStatus(statusErr.Status); class != ClassUnknown {
			return class
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return ClassTransient
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return ClassTransient
		}
	}
	return ClassPermanent
}

// IsTransient reports whether the error should be retried
func IsTransient(err error) bool { return Classify(err) == ClassTransient }
