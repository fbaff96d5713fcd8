// Package rag implements the retrieval and answering pipeline: query
// rewriting, vector and hybrid search, injection filtering, reranking,
// context assembly and answer generation.
package rag

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/SaintWyss/rag-corp-sub003/pkg/llm"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
	"github.com/SaintWyss/rag-corp-sub003/pkg/prompts"
)

// RewriterConfig controls the optional query rewriting step
type RewriterConfig struct {
	Enabled bool
	// MinHistory is the minimum number of prior turns before rewriting
	MinHistory int
	// MaxTokens bounds the LLM call
	MaxTokens int
	// MaxRewriteChars rejects runaway rewrites, falling back to the original
	MaxRewriteChars int
	PromptVersion   string
	Language        string
}

// shortQueryRunes triggers rewriting for queries below this length
const shortQueryRunes = 50

// followUpSignals are pronouns and deixis that suggest the query leans on
// earlier turns
var followUpSignals = []string{
	// Spanish
	"eso", "esto", "esa", "ese", "esas", "esos", "aquello", "él", "ella",
	"ellos", "ellas", "ahí", "allí", "también", "y si", "lo mismo",
	// English
	"it", "that", "this", "those", "these", "there", "they", "he", "she",
	"same", "what about", "and if",
}

// Rewriter turns follow-up queries into self-contained search queries
type Rewriter struct {
	llm     llm.Service
	prompts *prompts.Loader
	logger  observability.Logger
	cfg     RewriterConfig
}

// NewRewriter creates a query rewriter
func NewRewriter(llmService llm.Service, loader *prompts.Loader, logger observability.Logger, cfg RewriterConfig) *Rewriter {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.MinHistory <= 0 {
		cfg.MinHistory = 1
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 100
	}
	if cfg.MaxRewriteChars <= 0 {
		cfg.MaxRewriteChars = 300
	}
	return &Rewriter{llm: llmService, prompts: loader, logger: logger, cfg: cfg}
}

// Rewrite returns the query to search with and whether it was rewritten. Any
// failure falls back to the original query: rewriting is an optimization,
// never a gate.
func (r *Rewriter) Rewrite(ctx context.Context, query string, history []string) (string, bool) {
	if !r.cfg.Enabled || !r.shouldRewrite(query, history) {
		return query, false
	}

	prompt, err := r.prompts.Get(r.cfg.PromptVersion, prompts.CapabilityQueryRewrite, r.cfg.Language)
	if err != nil {
		r.logger.Warn("Query rewrite prompt unavailable, using original query", map[string]interface{}{
			"error": err.Error(),
		})
		return query, false
	}
	text, err := prompt.Format(map[string]string{
		"history": strings.Join(history, "\n"),
		"query":   query,
	})
	if err != nil {
		return query, false
	}

	rewritten, err := r.llm.GenerateText(ctx, text, r.cfg.MaxTokens)
	if err != nil {
		r.logger.Warn("Query rewrite failed, using original query", map[string]interface{}{
			"error": err.Error(),
		})
		return query, false
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" || utf8.RuneCountInString(rewritten) > r.cfg.MaxRewriteChars {
		return query, false
	}
	return rewritten, true
}

func (r *Rewriter) shouldRewrite(query string, history []string) bool {
	if len(history) < r.cfg.MinHistory {
		return false
	}
	if utf8.RuneCountInString(query) < shortQueryRunes {
		return true
	}
	return hasFollowUpSignal(query)
}

func hasFollowUpSignal(query string) bool {
	words := strings.Fields(strings.ToLower(query))
	wordSet := make(map[string]struct{}, len(words))
	for _, w := range words {
		wordSet[strings.Trim(w, ".,;:¿?¡!\"'()")] = struct{}{}
	}
	lower := strings.ToLower(query)
	for _, signal := range followUpSignals {
		if strings.Contains(signal, " ") {
			if strings.Contains(lower, signal) {
				return true
			}
			continue
		}
		if _, ok := wordSet[signal]; ok {
			return true
		}
	}
	return false
}
