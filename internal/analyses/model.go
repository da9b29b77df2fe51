package analyses

import "time"

// Analysis statuses. "error" is terminal and only reachable from
// "processing" (a fatal sentiment-stage failure); "done" is re-enterable
// into "summarizing" solely through RetryFailedSummaries.
const (
	StatusProcessing  = "processing"
	StatusSummarizing = "summarizing"
	StatusDone        = "done"
	StatusError       = "error"
)

// Per-comment summary statuses. "ok" is terminal; "error" may be reset to
// "pending" by a retry pass.
const (
	SummaryPending = "pending"
	SummaryOK      = "ok"
	SummaryError   = "error"
)

// Meta carries job-level progress and advisory error state.
type Meta struct {
	// SummarizationProgress is round(100 * nonPending/total); monotone
	// non-decreasing within a single summarizing pass.
	SummarizationProgress int `json:"summarization_progress"`
	// SummarizerError is the last systemic summarizer fault, cleared after
	// a pass that completes with zero item errors.
	SummarizerError string `json:"summarizer_error,omitempty"`
	// SummaryModelName is the resolved provider model, for display.
	SummaryModelName string `json:"summary_model_name,omitempty"`
	// Error holds the fatal message when the analysis status is "error".
	Error string `json:"error,omitempty"`
}

// Analysis is one batch-processing job and its aggregate results.
type Analysis struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Status          string         `json:"status"`
	SentimentModel  string         `json:"sentiment_model"`
	SummaryModel    string         `json:"summary_model"`
	TotalComments   int            `json:"total_comments"`
	SentimentCounts map[string]int `json:"sentiment_counts,omitempty"`
	Meta            Meta           `json:"meta"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Comment is one input text item and its derived sentiment/summary state.
// Index is its stable position in the submitted batch.
type Comment struct {
	ID             string    `json:"id"`
	AnalysisID     string    `json:"analysis_id"`
	Index          int       `json:"index"`
	OriginalText   string    `json:"original_text"`
	SentimentLabel string    `json:"sentiment_label"`
	SentimentScore float64   `json:"sentiment_score"`
	Summary        string    `json:"summary,omitempty"`
	SummaryStatus  string    `json:"summary_status"`
	CreatedAt      time.Time `json:"created_at"`
}

// SummaryUpdate is one settled summarization outcome to be committed.
type SummaryUpdate struct {
	CommentID string
	Status    string // SummaryOK or SummaryError
	Summary   string // set only when Status == SummaryOK
}

// Progress computes the job progress percentage per the core invariant:
// the rounded fraction of comments no longer pending.
func Progress(nonPending, total int) int {
	if total <= 0 {
		return 100
	}
	return int(float64(nonPending)/float64(total)*100 + 0.5)
}
