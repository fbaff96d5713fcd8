// Package ingestion implements the document ingestion pipeline: upload,
// asynchronous processing with the PENDING/PROCESSING/READY/FAILED state
// machine, reprocessing, cancellation and direct text ingest.
package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
)

// TextExtractor turns raw file bytes into plain text according to the
// declared MIME type
type TextExtractor interface {
	// Extract returns the text content of data
	Extract(mimeType string, data []byte) (string, error)
	// Supports reports whether the MIME type has an extractor
	Supports(mimeType string) bool
}

type extractFunc func(data []byte) (string, error)

// DefaultExtractor is the built-in extractor registry
type DefaultExtractor struct {
	byType map[string]extractFunc
}

// NewExtractor creates the extractor with all built-in formats registered
func NewExtractor() *DefaultExtractor {
	e := &DefaultExtractor{byType: make(map[string]extractFunc)}
	for _, plain := range []string{"text/plain", "text/markdown", "text/csv"} {
		e.byType[plain] = extractPlain
	}
	e.byType["text/html"] = extractHTML
	e.byType["application/json"] = extractJSON
	e.byType["application/pdf"] = extractPDF
	return e
}

// Supports reports whether the MIME type has an extractor
func (e *DefaultExtractor) Supports(mimeType string) bool {
	_, ok := e.byType[normalizeMimeType(mimeType)]
	return ok
}

// Extract dispatches on the MIME type. Unknown types are validation errors
// so uploads can be rejected before any blob is stored.
func (e *DefaultExtractor) Extract(mimeType string, data []byte) (string, error) {
	extract, ok := e.byType[normalizeMimeType(mimeType)]
	if !ok {
		return "", apperrors.Newf(apperrors.CodeValidation, "unsupported mime type %q", mimeType)
	}
	text, err := extract(data)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s content: %w", mimeType, err)
	}
	return text, nil
}

// normalizeMimeType drops parameters like charset
func normalizeMimeType(mimeType string) string {
	parsed, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return parsed
}

func extractPlain(data []byte) (string, error) {
	return string(data), nil
}

// extractHTML walks the parse tree collecting text nodes, skipping script
// and style subtrees
func extractHTML(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				b.WriteString(text)
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String(), nil
}

// extractJSON flattens every string value in the document
func extractJSON(data []byte) (string, error) {
	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", err
	}
	var b strings.Builder
	flattenJSON(parsed, &b)
	return b.String(), nil
}

func flattenJSON(value interface{}, b *strings.Builder) {
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			b.WriteString(v)
			b.WriteByte('\n')
		}
	case []interface{}:
		for _, item := range v {
			flattenJSON(item, b)
		}
	case map[string]interface{}:
		for _, key := range sortedKeys(v) {
			flattenJSON(v[key], b)
		}
	}
}

// sortedKeys keeps extraction deterministic regardless of map iteration order
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	content, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var b bytes.Buffer
	if _, err := b.ReadFrom(content); err != nil {
		return "", err
	}
	return b.String(), nil
}
