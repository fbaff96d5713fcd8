package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
	"github.com/SaintWyss/rag-corp-sub003/pkg/quota"
	"github.com/SaintWyss/rag-corp-sub003/pkg/rag"
)

type askRequest struct {
	Query          string   `json:"query" binding:"required"`
	History        []string `json:"history"`
	ConversationID string   `json:"conversation_id"`
}

type askResponse struct {
	Answer         string       `json:"answer"`
	Sources        []rag.Source `json:"sources"`
	ConversationID string       `json:"conversation_id"`
	HybridUsed     bool         `json:"hybrid_used"`
	QueryRewritten bool         `json:"query_rewritten"`
}

// estimateTokens approximates billed tokens from answer length. Four
// characters per token tracks the provider tokenizers closely enough for
// hourly budgeting.
func estimateTokens(answer string) int64 {
	n := int64(len(answer) / 4)
	if n < 1 {
		n = 1
	}
	return n
}

// checkMessageQuota gates an ask against the workspace message budget
func (s *Server) checkMessageQuota(c *gin.Context, scope models.QuotaScope) error {
	if s.quota == nil {
		return nil
	}
	decision, err := s.quota.Check(c.Request.Context(), models.QuotaMessages, scope)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeServiceUnavailable, "quota backend unavailable")
	}
	if !decision.Allowed {
		return &quota.ExceededError{Resource: models.QuotaMessages, Decision: decision}
	}
	return nil
}

func (s *Server) recordAskUsage(c *gin.Context, scope models.QuotaScope, answer string) {
	if s.quota == nil {
		return
	}
	ctx := c.Request.Context()
	if err := s.quota.Record(ctx, models.QuotaMessages, scope, 1); err != nil {
		s.logger.Warn("Failed to record message quota", map[string]interface{}{"error": err.Error()})
	}
	if err := s.quota.Record(ctx, models.QuotaTokens, scope, estimateTokens(answer)); err != nil {
		s.logger.Warn("Failed to record token quota", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Server) handleAsk(c *gin.Context) {
	wsID, ok := workspaceID(c)
	if !ok {
		return
	}
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Validation("query is required"))
		return
	}

	ws, err := s.policy.ResolveForRead(c.Request.Context(), wsID, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	scope := models.QuotaScope{Type: models.QuotaScopeWorkspace, ID: ws.ID.String()}
	if err := s.checkMessageQuota(c, scope); err != nil {
		writeError(c, err)
		return
	}

	result, err := s.answerer.Answer(c.Request.Context(), rag.AnswerRequest{
		WorkspaceID:    ws.ID,
		Query:          req.Query,
		History:        req.History,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	s.recordAskUsage(c, scope, result.Answer)
	c.JSON(http.StatusOK, askResponse{
		Answer:         result.Answer,
		Sources:        result.Sources,
		ConversationID: result.ConversationID,
		HybridUsed:     result.HybridUsed,
		QueryRewritten: result.QueryRewritten,
	})
}

func (s *Server) handleAskStream(c *gin.Context) {
	wsID, ok := workspaceID(c)
	if !ok {
		return
	}
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Validation("query is required"))
		return
	}

	ws, err := s.policy.ResolveForRead(c.Request.Context(), wsID, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	scope := models.QuotaScope{Type: models.QuotaScopeWorkspace, ID: ws.ID.String()}
	if err := s.checkMessageQuota(c, scope); err != nil {
		writeError(c, err)
		return
	}

	events, err := s.answerer.AnswerStream(c.Request.Context(), rag.AnswerRequest{
		WorkspaceID:    ws.ID,
		Query:          req.Query,
		History:        req.History,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)
	for event := range events {
		if !writeSSEEvent(c, event) {
			// Client went away; the answerer sees the cancelled request
			// context and stops producing.
			return
		}
		if canFlush {
			flusher.Flush()
		}
		if event.Type == rag.EventDone {
			s.recordAskUsage(c, scope, event.Answer)
		}
	}
}

// writeSSEEvent serializes one event in SSE framing. Returns false once the
// connection is no longer writable.
func writeSSEEvent(c *gin.Context, event rag.StreamEvent) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		return false
	}
	_, err = fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.Type, payload)
	return err == nil
}
