// Package api exposes the service over HTTP: JSON endpoints for workspace
// and document management, ask, and an SSE stream for answers.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/quota"
)

// writeError maps the error envelope onto HTTP. Quota denials become 429
// with a Retry-After header.
func writeError(c *gin.Context, err error) {
	var exceeded *quota.ExceededError
	if errors.As(err, &exceeded) {
		c.Header("Retry-After", strconv.FormatInt(exceeded.Decision.RetryAfterSeconds, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":               "quota exceeded",
			"resource":            string(exceeded.Resource),
			"retry_after_seconds": exceeded.Decision.RetryAfterSeconds,
		})
		return
	}

	code := apperrors.CodeOf(err)
	c.JSON(statusFor(code), gin.H{
		"error": err.Error(),
		"code":  string(code),
	})
}

func statusFor(code apperrors.Code) int {
	switch code {
	case apperrors.CodeValidation:
		return http.StatusBadRequest
	case apperrors.CodeForbidden:
		return http.StatusForbidden
	case apperrors.CodeNotFound, apperrors.CodeMissing:
		return http.StatusNotFound
	case apperrors.CodeConflict:
		return http.StatusConflict
	case apperrors.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.CodeEmbedding, apperrors.CodeLLM, apperrors.CodeStorage:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
