package rag

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
)

// DefaultMaxContextChars bounds the assembled context when the caller does
// not configure a budget
const DefaultMaxContextChars = 8000

// delimiterPattern matches source delimiters embedded inside chunk content.
// Retrieved text carrying our own markers is the classic injection vector.
var delimiterPattern = regexp.MustCompile(`---\[(?:FIN )?S\d+\]---`)

// TokenCounter measures content against the budget. The default counts
// characters; inject a tokenizer-backed counter to budget in tokens.
type TokenCounter func(text string) int

// ContextBuilder assembles retrieved chunks into the delimited context text
// handed to the LLM
type ContextBuilder struct {
	maxSize int
	count   TokenCounter
}

// NewContextBuilder creates a context builder with a character budget
func NewContextBuilder(maxSize int) *ContextBuilder {
	if maxSize <= 0 {
		maxSize = DefaultMaxContextChars
	}
	return &ContextBuilder{maxSize: maxSize, count: func(text string) int { return len(text) }}
}

// WithTokenCounter swaps the size measure, keeping the same budget value
func (b *ContextBuilder) WithTokenCounter(count TokenCounter) *ContextBuilder {
	return &ContextBuilder{maxSize: b.maxSize, count: count}
}

// Build assembles the context. Chunks keep their input order; duplicates
// (same document and content) are dropped without reordering; assembly stops
// before the first chunk that would push the total past the budget. The
// FUENTES section maps every [S#] used back to its document, 1:1.
func (b *ContextBuilder) Build(chunks []models.RetrievedChunk) (string, []models.RetrievedChunk) {
	if len(chunks) == 0 {
		return "", nil
	}

	var body strings.Builder
	var fuentes strings.Builder
	fuentes.WriteString("FUENTES:\n")
	fuentesLen := b.count("FUENTES:\n")

	seen := make(map[uint64]struct{})
	used := make([]models.RetrievedChunk, 0, len(chunks))
	total := 0

	for _, chunk := range chunks {
		fp := fingerprint(chunk.DocumentID.String(), chunk.Content)
		if _, dup := seen[fp]; dup {
			continue
		}

		index := len(used) + 1
		block := fmt.Sprintf("---[S%d]---\n%s\n---[FIN S%d]---\n\n",
			index, sanitize(chunk.Content), index)
		source := fmt.Sprintf("[S%d] → %s (%s)\n", index, chunk.DocumentTitle, chunk.DocumentID)

		if total+b.count(block)+fuentesLen+b.count(source) > b.maxSize {
			break
		}
		seen[fp] = struct{}{}
		body.WriteString(block)
		fuentes.WriteString(source)
		fuentesLen += b.count(source)
		total += b.count(block)
		used = append(used, chunk)
	}

	if len(used) == 0 {
		return "", nil
	}
	return body.String() + fuentes.String(), used
}

// sanitize defuses delimiters embedded in retrieved content. The rewrite is
// lossy and not reversible.
func sanitize(content string) string {
	return delimiterPattern.ReplaceAllString(content, "[marcador eliminado]")
}

func fingerprint(documentID, content string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(documentID))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return h.Sum64()
}
