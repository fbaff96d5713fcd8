package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
)

// OpenAIProvider implements Service against an OpenAI-compatible embeddings
// endpoint
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	modelID    string
	dimension  int
	httpClient *http.Client
}

// OpenAIOption customizes the provider
type OpenAIOption func(*OpenAIProvider)

// WithBaseURL points the provider at a compatible endpoint (proxies, local
// inference servers)
func WithBaseURL(url string) OpenAIOption {
	return func(p *OpenAIProvider) { p.baseURL = url }
}

// WithHTTPClient injects a custom HTTP client
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) { p.httpClient = client }
}

// NewOpenAIProvider creates a provider for the given model and dimension
func NewOpenAIProvider(apiKey, modelID string, dimension int, opts ...OpenAIOption) *OpenAIProvider {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	p := &OpenAIProvider{
		apiKey:    apiKey,
		baseURL:   "https://api.openai.com/v1",
		modelID:   modelID,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ModelID returns the configured model identifier
func (p *OpenAIProvider) ModelID() string { return p.modelID }

// Dimension returns the configured vector dimension
func (p *OpenAIProvider) Dimension() int { return p.dimension }

type openAIRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions *int     `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// EmbedQuery embeds a single query text
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds a batch of texts, preserving order
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateInputs(texts); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbedding, "invalid embedding input")
	}

	dims := p.dimension
	reqBody := openAIRequest{Input: texts, Model: p.modelID, Dimensions: &dims}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbedding, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbedding, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbedding, "embedding request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.Wrap(
			apperrors.NewStatusError(resp.StatusCode, string(snippet)),
			apperrors.CodeEmbedding, "embedding provider error")
	}

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbedding, "failed to decode response")
	}

	vecs := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(vecs) {
			return nil, apperrors.Newf(apperrors.CodeEmbedding, "response index %d out of range", item.Index)
		}
		vecs[item.Index] = item.Embedding
	}
	if err := ValidateBatch(texts, vecs, p.dimension); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbedding, fmt.Sprintf("provider %s returned invalid batch", p.modelID))
	}
	return vecs, nil
}
