package analyses

import "context"

// Repo defines persistence for analyses and their comments. Every method
// that touches more than one record is atomic: readers polling through
// GetSnapshot never observe counts, statuses, and progress that disagree.
type Repo interface {
	// CreateWithComments persists a new analysis together with all of its
	// comments and the initial sentiment counts in one atomic write.
	CreateWithComments(ctx context.Context, analysis Analysis, comments []Comment) error

	// CreateFailed persists an analysis that died in the sentiment stage:
	// status "error", a descriptive meta message, and no comments.
	CreateFailed(ctx context.Context, analysis Analysis) error

	// GetByID returns the analysis record alone.
	GetByID(ctx context.Context, analysisID string) (Analysis, error)

	// GetSnapshot returns the analysis and all comments ordered by index,
	// read consistently.
	GetSnapshot(ctx context.Context, analysisID string) (Analysis, []Comment, error)

	// List returns analyses newest-first with limit/offset.
	List(ctx context.Context, limit, offset int) ([]Analysis, error)

	// ListPending returns the pending comments of one analysis in
	// ascending index order.
	ListPending(ctx context.Context, analysisID string) ([]Comment, error)

	// SetStatus transitions the analysis status.
	SetStatus(ctx context.Context, analysisID, status string) error

	// ApplyBatch commits one settled scheduler batch atomically: per-comment
	// summary results, the recomputed progress, and (when non-nil) a
	// job-level summarizer error message.
	ApplyBatch(ctx context.Context, analysisID string, updates []SummaryUpdate, progress int, summarizerError *string) error

	// Finalize marks the analysis done with progress 100. When clearError
	// is true the advisory summarizer error is removed. Any comments still
	// pending are marked failed so "done" never coexists with "pending".
	Finalize(ctx context.Context, analysisID string, clearError bool) error

	// ResetFailed flips every error comment back to pending, recomputes
	// progress, clears the summarizer error, and sets status summarizing —
	// all in one atomic write. It returns the number of comments reset;
	// zero means nothing was mutated.
	ResetFailed(ctx context.Context, analysisID string) (int, error)

	// SetSummaryModelName records the resolved provider model in meta.
	SetSummaryModelName(ctx context.Context, analysisID, modelName string) error

	// Delete removes the analysis and all of its comments.
	Delete(ctx context.Context, analysisID string) error
}
