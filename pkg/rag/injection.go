package rag

import (
	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
)

// FilterMode selects how flagged chunks are handled
type FilterMode string

const (
	FilterOff      FilterMode = "off"
	FilterExclude  FilterMode = "exclude"
	FilterDownrank FilterMode = "downrank"
)

// InjectionFilter acts on the injection risk scores computed at ingestion.
// It never inspects chunk text at query time; the signal is precomputed.
type InjectionFilter struct {
	mode      FilterMode
	threshold float64
	logger    observability.Logger
}

// NewInjectionFilter creates an injection filter
func NewInjectionFilter(mode FilterMode, threshold float64, logger observability.Logger) *InjectionFilter {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if mode == "" {
		mode = FilterOff
	}
	return &InjectionFilter{mode: mode, threshold: threshold, logger: logger}
}

// Apply filters or reorders the chunks according to the mode. Downrank is a
// stable partition: safe chunks keep their relative order, flagged chunks
// move to the tail keeping theirs.
func (f *InjectionFilter) Apply(chunks []models.RetrievedChunk) []models.RetrievedChunk {
	if f.mode == FilterOff || len(chunks) == 0 {
		return chunks
	}

	safe := make([]models.RetrievedChunk, 0, len(chunks))
	flagged := make([]models.RetrievedChunk, 0)
	for _, chunk := range chunks {
		if chunk.InjectionRisk() >= f.threshold {
			flagged = append(flagged, chunk)
			continue
		}
		safe = append(safe, chunk)
	}
	if len(flagged) > 0 {
		f.logger.Info("Injection filter flagged chunks", map[string]interface{}{
			"mode":    string(f.mode),
			"flagged": len(flagged),
			"total":   len(chunks),
		})
	}

	switch f.mode {
	case FilterExclude:
		return safe
	case FilterDownrank:
		return append(safe, flagged...)
	}
	return chunks
}
