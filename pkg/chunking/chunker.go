// Package chunking splits extracted document text into fixed-size character
// windows with overlap. Chunking is deterministic: the same text always
// produces the same chunks in the same order.
package chunking

import "strings"

const (
	// DefaultChunkSize is the target window size in characters
	DefaultChunkSize = 900
	// DefaultChunkOverlap is the number of characters shared between
	// consecutive windows
	DefaultChunkOverlap = 120
)

// FixedSizeChunker implements fixed-size chunking with overlap
type FixedSizeChunker struct {
	ChunkSize int
	Overlap   int
}

// NewFixedSizeChunker creates a chunker, falling back to defaults for
// non-positive or inconsistent parameters
func NewFixedSizeChunker(chunkSize, overlap int) *FixedSizeChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultChunkOverlap
		if overlap >= chunkSize {
			overlap = chunkSize / 4
		}
	}
	return &FixedSizeChunker{ChunkSize: chunkSize, Overlap: overlap}
}

// Chunk splits text into windows of at most ChunkSize runes. The last chunk
// is kept even if short. Whitespace-only input yields no chunks.
func (c *FixedSizeChunker) Chunk(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	step := c.ChunkSize - c.Overlap

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
