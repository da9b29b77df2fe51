package analyses

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores analyses and comments in memory and is safe for
// concurrent use. It backs tests and DATABASE_URL-less dev runs; its mutex
// gives the same single-writer atomicity the Postgres repo gets from
// transactions.
type MemoryRepo struct {
	mu       sync.RWMutex
	analyses map[string]Analysis
	comments map[string][]Comment // keyed by analysis ID, held in index order
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		analyses: make(map[string]Analysis),
		comments: make(map[string][]Comment),
	}
}

// CreateWithComments stores the analysis and its comments atomically.
func (r *MemoryRepo) CreateWithComments(ctx context.Context, analysis Analysis, comments []Comment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := make([]Comment, len(comments))
	copy(stored, comments)
	sort.Slice(stored, func(i, j int) bool { return stored[i].Index < stored[j].Index })
	analysis.UpdatedAt = time.Now().UTC()
	r.analyses[analysis.ID] = cloneAnalysis(analysis)
	r.comments[analysis.ID] = stored
	return nil
}

// CreateFailed stores an analysis that failed the sentiment stage.
func (r *MemoryRepo) CreateFailed(ctx context.Context, analysis Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	analysis.Status = StatusError
	analysis.UpdatedAt = time.Now().UTC()
	r.analyses[analysis.ID] = cloneAnalysis(analysis)
	return nil
}

// GetByID returns the analysis record.
func (r *MemoryRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	analysis, ok := r.analyses[analysisID]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return cloneAnalysis(analysis), nil
}

// GetSnapshot returns the analysis and its comments in index order.
func (r *MemoryRepo) GetSnapshot(ctx context.Context, analysisID string) (Analysis, []Comment, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	analysis, ok := r.analyses[analysisID]
	if !ok {
		return Analysis{}, nil, ErrNotFound
	}
	comments := make([]Comment, len(r.comments[analysisID]))
	copy(comments, r.comments[analysisID])
	return cloneAnalysis(analysis), comments, nil
}

// List returns analyses newest-first.
func (r *MemoryRepo) List(ctx context.Context, limit, offset int) ([]Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	r.mu.RLock()
	all := make([]Analysis, 0, len(r.analyses))
	for _, a := range r.analyses {
		all = append(all, cloneAnalysis(a))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return []Analysis{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

// ListPending returns pending comments in ascending index order.
func (r *MemoryRepo) ListPending(ctx context.Context, analysisID string) ([]Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.analyses[analysisID]; !ok {
		return nil, ErrNotFound
	}
	var pending []Comment
	for _, c := range r.comments[analysisID] {
		if c.SummaryStatus == SummaryPending {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

// SetStatus transitions the analysis status.
func (r *MemoryRepo) SetStatus(ctx context.Context, analysisID, status string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	analysis, ok := r.analyses[analysisID]
	if !ok {
		return ErrNotFound
	}
	analysis.Status = status
	analysis.UpdatedAt = time.Now().UTC()
	r.analyses[analysisID] = analysis
	return nil
}

// ApplyBatch commits one settled batch atomically.
func (r *MemoryRepo) ApplyBatch(ctx context.Context, analysisID string, updates []SummaryUpdate, progress int, summarizerError *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	analysis, ok := r.analyses[analysisID]
	if !ok {
		return ErrNotFound
	}

	byID := make(map[string]SummaryUpdate, len(updates))
	for _, u := range updates {
		byID[u.CommentID] = u
	}
	comments := r.comments[analysisID]
	for i := range comments {
		u, ok := byID[comments[i].ID]
		if !ok {
			continue
		}
		// A summary that already settled as ok is never overwritten.
		if comments[i].SummaryStatus == SummaryOK {
			continue
		}
		comments[i].SummaryStatus = u.Status
		if u.Status == SummaryOK {
			comments[i].Summary = u.Summary
		}
	}
	r.comments[analysisID] = comments

	analysis.Meta.SummarizationProgress = progress
	if summarizerError != nil {
		analysis.Meta.SummarizerError = *summarizerError
	}
	analysis.UpdatedAt = time.Now().UTC()
	r.analyses[analysisID] = analysis
	return nil
}

// Finalize marks the analysis done; stray pending comments become errors.
func (r *MemoryRepo) Finalize(ctx context.Context, analysisID string, clearError bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	analysis, ok := r.analyses[analysisID]
	if !ok {
		return ErrNotFound
	}
	comments := r.comments[analysisID]
	for i := range comments {
		if comments[i].SummaryStatus == SummaryPending {
			comments[i].SummaryStatus = SummaryError
		}
	}
	r.comments[analysisID] = comments

	analysis.Status = StatusDone
	analysis.Meta.SummarizationProgress = 100
	if clearError {
		analysis.Meta.SummarizerError = ""
	}
	analysis.UpdatedAt = time.Now().UTC()
	r.analyses[analysisID] = analysis
	return nil
}

// ResetFailed flips error comments to pending and re-enters summarizing.
func (r *MemoryRepo) ResetFailed(ctx context.Context, analysisID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	analysis, ok := r.analyses[analysisID]
	if !ok {
		return 0, ErrNotFound
	}

	comments := r.comments[analysisID]
	reset := 0
	for i := range comments {
		if comments[i].SummaryStatus == SummaryError {
			comments[i].SummaryStatus = SummaryPending
			reset++
		}
	}
	if reset == 0 {
		return 0, nil
	}
	r.comments[analysisID] = comments

	nonPending := 0
	for _, c := range comments {
		if c.SummaryStatus != SummaryPending {
			nonPending++
		}
	}
	analysis.Status = StatusSummarizing
	analysis.Meta.SummarizationProgress = Progress(nonPending, len(comments))
	analysis.Meta.SummarizerError = ""
	analysis.UpdatedAt = time.Now().UTC()
	r.analyses[analysisID] = analysis
	return reset, nil
}

// SetSummaryModelName records the resolved provider model.
func (r *MemoryRepo) SetSummaryModelName(ctx context.Context, analysisID, modelName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	analysis, ok := r.analyses[analysisID]
	if !ok {
		return ErrNotFound
	}
	analysis.Meta.SummaryModelName = modelName
	analysis.UpdatedAt = time.Now().UTC()
	r.analyses[analysisID] = analysis
	return nil
}

// Delete removes the analysis and its comments.
func (r *MemoryRepo) Delete(ctx context.Context, analysisID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.analyses[analysisID]; !ok {
		return ErrNotFound
	}
	delete(r.analyses, analysisID)
	delete(r.comments, analysisID)
	return nil
}

func cloneAnalysis(a Analysis) Analysis {
	if a.SentimentCounts != nil {
		counts := make(map[string]int, len(a.SentimentCounts))
		for k, v := range a.SentimentCounts {
			counts[k] = v
		}
		a.SentimentCounts = counts
	}
	return a
}
