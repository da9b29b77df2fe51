// Package summarize provides pluggable single-text summarization backed by
// external model providers. Calls are per item; batching and concurrency are
// the caller's concern.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Summarizer produces a short natural-language summary for one text.
// Implementations must honor ctx cancellation and deadlines.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
	// ModelName reports the resolved provider model, for display metadata.
	ModelName() string
}

// Sentinel failures callers can test with errors.Is.
var (
	// ErrEmptyResult marks a provider response with no usable summary text.
	ErrEmptyResult = errors.New("summarizer returned empty result")
	// ErrTimeout marks a call that exceeded its per-item deadline.
	ErrTimeout = errors.New("summarizer timed out")
)

// ProviderError wraps a provider-side failure (HTTP error, API error,
// quota). Failures of the same Class are treated as one systemic fault.
type ProviderError struct {
	Provider string
	Class    string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Class, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Model tags accepted at analysis creation.
const (
	ModelGemini = "gemini"
	ModelOllama = "ollama"
)

// KnownModel reports whether tag is a recognized summary model tag. A known
// tag may still have no configured client at runtime.
func KnownModel(tag string) bool {
	return tag == ModelGemini || tag == ModelOllama
}

// ErrorClass buckets a summarization failure for systemic-fault detection:
// every error maps to a stable class string so a batch of identical
// failures can be collapsed into one job-level message.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrEmptyResult):
		return "empty_result"
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return "provider_error"
}

// maxSummaryWords caps normalized summaries, mirroring the prompt contract.
const maxSummaryWords = 20

// Normalize trims provider output down to one short sentence: surrounding
// quotes dropped, truncated at the first sentence boundary, capped at
// maxSummaryWords words, terminated with a period.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'`)
	for _, sep := range []string{". ", "! ", "? "} {
		if idx := strings.Index(s, sep); idx != -1 {
			s = s[:idx+1]
			break
		}
	}
	words := strings.Fields(s)
	if len(words) > maxSummaryWords {
		words = words[:maxSummaryWords]
		s = strings.Join(words, " ")
	} else {
		s = strings.Join(words, " ")
	}
	if s != "" && !strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "!") && !strings.HasSuffix(s, "?") {
		s += "."
	}
	return s
}

// prompt is shared by all providers.
func buildPrompt(text string) string {
	return "Summarize the following user feedback into one plain sentence. " +
		"Keep it shorter than the original, paraphrase instead of quoting, " +
		"and do not add prefixes like 'User' or 'The comment'.\n\n" + text
}
