package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/SaintWyss/rag-corp-sub003/pkg/errors"
)

// OpenAIProvider implements Service against an OpenAI-compatible chat
// completions endpoint
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	modelID    string
	httpClient *http.Client
}

// OpenAIOption customizes the provider
type OpenAIOption func(*OpenAIProvider)

// WithBaseURL points the provider at a compatible endpoint
func WithBaseURL(url string) OpenAIOption {
	return func(p *OpenAIProvider) { p.baseURL = url }
}

// WithHTTPClient injects a custom HTTP client
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) { p.httpClient = client }
}

// NewOpenAIProvider creates a chat completion provider
func NewOpenAIProvider(apiKey, modelID string, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1",
		modelID: modelID,
		// Streams run long; rely on context deadlines rather than a
		// client-level timeout
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Stream    bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// GenerateAnswer produces a grounded answer for query from contextText
func (p *OpenAIProvider) GenerateAnswer(ctx context.Context, query, contextText string) (string, error) {
	return p.GenerateText(ctx, answerPrompt(query, contextText), DefaultMaxTokens)
}

// GenerateText completes an arbitrary prompt within a token budget
func (p *OpenAIProvider) GenerateText(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	resp, err := p.do(ctx, chatRequest{
		Model:     p.modelID,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeLLM, "failed to decode response")
	}
	if len(parsed.Choices) == 0 {
		return "", apperrors.New(apperrors.CodeLLM, "provider returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// GenerateStream starts streaming a completion of prompt. The returned
// stream ends with io.EOF; closing it aborts the request.
func (p *OpenAIProvider) GenerateStream(ctx context.Context, prompt string) (Stream, error) {
	resp, err := p.do(ctx, chatRequest{
		Model:    p.modelID,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}
	return &sseStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

func (p *OpenAIProvider) do(ctx context.Context, reqBody chatRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLLM, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLLM, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if reqBody.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	resp, err := p.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, apperrors.Wrap(err, apperrors.CodeLLM, "completion request failed")
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		cancel()
		return nil, apperrors.Wrap(
			apperrors.NewStatusError(resp.StatusCode, string(snippet)),
			apperrors.CodeLLM, "llm provider error")
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	c.cancel()
	return c.ReadCloser.Close()
}

// sseStream parses text/event-stream chunks from the completions endpoint
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *sseStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			s.done = true
			return "", io.EOF
		}
		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return "", apperrors.Wrap(err, apperrors.CodeLLM, "malformed stream chunk")
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if chunk.Choices[0].FinishReason != nil {
			s.done = true
			return "", io.EOF
		}
		if chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return chunk.Choices[0].Delta.Content, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeLLM, "stream read failed")
	}
	s.done = true
	return "", io.EOF
}

func (s *sseStream) Close() error { return s.body.Close() }
