package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiSummarizer summarizes via the Google Generative AI SDK.
type GeminiSummarizer struct {
	model     *genai.GenerativeModel
	modelName string
}

// NewGeminiSummarizer builds a client for the given API key and model name.
func NewGeminiSummarizer(ctx context.Context, apiKey, modelName string) (*GeminiSummarizer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "text/plain"
	return &GeminiSummarizer{model: model, modelName: modelName}, nil
}

// ModelName reports the configured Gemini model.
func (g *GeminiSummarizer) ModelName() string { return g.modelName }

// Summarize runs one generation call and normalizes the first text part.
func (g *GeminiSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(buildPrompt(text)))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", &ProviderError{Provider: "gemini", Class: classifyGeminiError(err), Err: err}
	}
	summary := Normalize(firstTextPart(resp))
	if summary == "" {
		return "", ErrEmptyResult
	}
	return summary, nil
}

func firstTextPart(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok && strings.TrimSpace(string(txt)) != "" {
				return string(txt)
			}
		}
	}
	return ""
}

func classifyGeminiError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota") || strings.Contains(msg, "429"):
		return "quota_exceeded"
	case strings.Contains(msg, "api key") || strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return "auth_failed"
	default:
		return "provider_error"
	}
}
