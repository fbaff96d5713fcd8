// Package cache provides the embedding cache port, its Redis and in-process
// backends, and a cache-aside decorator around any embedding service.
package cache

import (
	"regexp"
	"strings"

	"github.com/SaintWyss/rag-corp-sub003/pkg/embedding"
)

// NormalizationVersion is part of every cache key. Bump it whenever
// NormalizeText changes, so stale entries are never served.
const NormalizationVersion = "n1"

var whitespacePattern = regexp.MustCompile(`\s+`)

// NormalizeText strips leading/trailing whitespace and collapses internal
// runs to a single space. Case is preserved: embeddings are case-sensitive.
func NormalizeText(text string) string {
	return whitespacePattern.ReplaceAllString(strings.TrimSpace(text), " ")
}

// BuildKey constructs the cache key for one text. The task type partitions
// the key space so query and document embeddings never collide.
func BuildKey(modelID string, task embedding.TaskType, text string) string {
	return modelID + "|" + string(task) + "|" + NormalizationVersion + "|" + NormalizeText(text)
}
