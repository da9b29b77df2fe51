package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "gemma3:1b"
)

// OllamaSummarizer summarizes via a local Ollama server's generate API.
type OllamaSummarizer struct {
	baseURL    string
	modelName  string
	httpClient *http.Client
}

// NewOllamaSummarizer builds a client for the given server URL and model.
func NewOllamaSummarizer(baseURL, modelName string) *OllamaSummarizer {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultOllamaURL
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = defaultOllamaModel
	}
	return &OllamaSummarizer{
		baseURL:   strings.TrimRight(baseURL, "/"),
		modelName: modelName,
		// Per-call deadlines come from ctx; this is a hard safety net.
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// ModelName reports the configured Ollama model.
func (o *OllamaSummarizer) ModelName() string { return o.modelName }

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Summarize runs one non-streaming generate call and normalizes the output.
func (o *OllamaSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(ollamaRequest{
		Model:  o.modelName,
		Prompt: buildPrompt(text),
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", &ProviderError{Provider: "ollama", Class: "unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &ProviderError{Provider: "ollama", Class: "provider_error", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{
			Provider: "ollama",
			Class:    classifyOllamaStatus(resp.StatusCode),
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var out ollamaResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &ProviderError{Provider: "ollama", Class: "provider_error", Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Error != "" {
		return "", &ProviderError{Provider: "ollama", Class: "provider_error", Err: errors.New(out.Error)}
	}

	summary := Normalize(out.Response)
	if summary == "" {
		return "", ErrEmptyResult
	}
	return summary, nil
}

func classifyOllamaStatus(status int) string {
	switch {
	case status == http.StatusNotFound:
		return "model_not_found"
	case status == http.StatusTooManyRequests:
		return "quota_exceeded"
	case status >= 500:
		return "server_error"
	default:
		return "provider_error"
	}
}
