package analyses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"feedback-backend/internal/sentiment"
	"feedback-backend/internal/summarize"
)

// stubSummarizer lets tests script per-item outcomes and observe call
// ordering and concurrency.
type stubSummarizer struct {
	mu       sync.Mutex
	calls    []string
	fn       func(text string) (string, error)
	inFlight int32
	peak     int32
	delay    time.Duration
}

func (s *stubSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	cur := atomic.AddInt32(&s.inFlight, 1)
	for {
		peak := atomic.LoadInt32(&s.peak)
		if cur <= peak || atomic.CompareAndSwapInt32(&s.peak, peak, cur) {
			break
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			atomic.AddInt32(&s.inFlight, -1)
			return "", ctx.Err()
		}
	}
	atomic.AddInt32(&s.inFlight, -1)

	s.mu.Lock()
	s.calls = append(s.calls, text)
	s.mu.Unlock()

	if s.fn != nil {
		return s.fn(text)
	}
	return "summary of " + text, nil
}

func (s *stubSummarizer) ModelName() string { return "stub-model" }

func (s *stubSummarizer) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

type failingClassifier struct{}

func (failingClassifier) Classify(ctx context.Context, texts []string) ([]sentiment.Prediction, error) {
	return nil, errors.New("model unavailable")
}

func (failingClassifier) Labels() []string { return nil }

func setupService(t *testing.T, sum summarize.Summarizer) (*Service, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	svc := NewService(repo)
	svc.Classifiers = sentiment.NewRegistry()
	if sum != nil {
		svc.Summarizers = map[string]summarize.Summarizer{summarize.ModelGemini: sum}
	}
	return svc, repo
}

func waitForStatus(t *testing.T, repo Repo, analysisID, status string) Analysis {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		analysis, err := repo.GetByID(context.Background(), analysisID)
		if err != nil {
			t.Fatalf("get analysis: %v", err)
		}
		if analysis.Status == status {
			return analysis
		}
		time.Sleep(5 * time.Millisecond)
	}
	analysis, _ := repo.GetByID(context.Background(), analysisID)
	t.Fatalf("analysis never reached status %s, stuck at %s", status, analysis.Status)
	return Analysis{}
}

func TestCreateMixedBatch(t *testing.T) {
	sum := &stubSummarizer{}
	svc, repo := setupService(t, sum)

	items := []string{"great product", "", "terrible, broke immediately"}
	analysis, err := svc.Create(context.Background(), CreateInput{
		Name:         "mixed",
		Items:        items,
		SummaryModel: summarize.ModelGemini,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if analysis.Status != StatusSummarizing {
		t.Fatalf("expected status summarizing after create, got %s", analysis.Status)
	}
	if analysis.TotalComments != 3 {
		t.Fatalf("expected 3 comments, got %d", analysis.TotalComments)
	}
	if analysis.SentimentCounts[sentiment.LabelPositive] != 1 ||
		analysis.SentimentCounts[sentiment.LabelNeutral] != 1 ||
		analysis.SentimentCounts[sentiment.LabelNegative] != 1 {
		t.Fatalf("unexpected sentiment counts: %v", analysis.SentimentCounts)
	}

	done := waitForStatus(t, repo, analysis.ID, StatusDone)
	if done.Meta.SummarizationProgress != 100 {
		t.Fatalf("expected progress 100, got %d", done.Meta.SummarizationProgress)
	}
	if done.Meta.SummarizerError != "" {
		t.Fatalf("expected no summarizer error, got %q", done.Meta.SummarizerError)
	}
	if done.Meta.SummaryModelName != "stub-model" {
		t.Fatalf("expected model name recorded, got %q", done.Meta.SummaryModelName)
	}

	_, comments, err := repo.GetSnapshot(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(comments) != 3 {
		t.Fatalf("expected 3 comments, got %d", len(comments))
	}
	for i, c := range comments {
		if c.Index != i {
			t.Fatalf("comment %d has index %d", i, c.Index)
		}
		if c.OriginalText != items[i] {
			t.Fatalf("comment %d text mutated: %q", i, c.OriginalText)
		}
		if c.SummaryStatus != SummaryOK {
			t.Fatalf("comment %d status %s, want ok", i, c.SummaryStatus)
		}
		if c.Summary == "" {
			t.Fatalf("comment %d has empty summary", i)
		}
	}
}

func TestCreateEmptyItemsValidationError(t *testing.T) {
	svc, repo := setupService(t, &stubSummarizer{})

	_, err := svc.Create(context.Background(), CreateInput{Items: nil})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	analyses, err := repo.List(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(analyses) != 0 {
		t.Fatalf("expected nothing persisted, got %d analyses", len(analyses))
	}
}

func TestCreateUnknownModelTags(t *testing.T) {
	svc, _ := setupService(t, &stubSummarizer{})

	_, err := svc.Create(context.Background(), CreateInput{
		Items:          []string{"x"},
		SentimentModel: "bogus",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for sentiment model, got %v", err)
	}

	_, err = svc.Create(context.Background(), CreateInput{
		Items:        []string{"x"},
		SummaryModel: "bogus",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for summary model, got %v", err)
	}
}

func TestCreateClassifierFailurePersistsErrorAnalysis(t *testing.T) {
	svc, repo := setupService(t, &stubSummarizer{})
	svc.Classifiers.Register("broken", failingClassifier{})

	analysis, err := svc.Create(context.Background(), CreateInput{
		Items:          []string{"a", "b"},
		SentimentModel: "broken",
		SummaryModel:   summarize.ModelGemini,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if analysis.Status != StatusError {
		t.Fatalf("expected status error, got %s", analysis.Status)
	}
	if analysis.Meta.Error == "" {
		t.Fatal("expected fatal error message in meta")
	}

	got, err := repo.GetByID(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusError {
		t.Fatalf("persisted status %s, want error", got.Status)
	}
	_, comments, err := repo.GetSnapshot(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(comments) != 0 {
		t.Fatalf("expected no comments, got %d", len(comments))
	}
}

func TestSummarizationProcessesBatchesInIndexOrder(t *testing.T) {
	sum := &stubSummarizer{}
	svc, repo := setupService(t, sum)
	svc.Workers = 1 // serialize so recorded order is the dispatch order
	svc.BatchSize = 4

	items := make([]string, 10)
	for i := range items {
		items[i] = fmt.Sprintf("item-%02d", i)
	}
	analysis, err := svc.Create(context.Background(), CreateInput{
		Items:        items,
		SummaryModel: summarize.ModelGemini,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForStatus(t, repo, analysis.ID, StatusDone)

	calls := sum.recorded()
	if len(calls) != 10 {
		t.Fatalf("expected 10 calls, got %d", len(calls))
	}
	for i, text := range calls {
		if text != items[i] {
			t.Fatalf("call %d was %q, want %q", i, text, items[i])
		}
	}
}

func TestSummarizationBoundsConcurrency(t *testing.T) {
	sum := &stubSummarizer{delay: 10 * time.Millisecond}
	svc, repo := setupService(t, sum)
	svc.Workers = 3
	svc.BatchSize = 12

	items := make([]string, 12)
	for i := range items {
		items[i] = fmt.Sprintf("item-%d", i)
	}
	analysis, err := svc.Create(context.Background(), CreateInput{
		Items:        items,
		SummaryModel: summarize.ModelGemini,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForStatus(t, repo, analysis.ID, StatusDone)

	if peak := atomic.LoadInt32(&sum.peak); peak > 3 {
		t.Fatalf("concurrency exceeded worker bound: peak %d", peak)
	}
}

func TestItemFailureDoesNotAbortBatch(t *testing.T) {
	sum := &stubSummarizer{fn: func(text string) (string, error) {
		if strings.Contains(text, "bad") {
			return "", &summarize.ProviderError{Provider: "stub", Class: "server_error", Err: errors.New("boom")}
		}
		return "ok summary", nil
	}}
	svc, repo := setupService(t, sum)

	analysis, err := svc.Create(context.Background(), CreateInput{
		Items:        []string{"good one", "bad one", "another good"},
		SummaryModel: summarize.ModelGemini,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	done := waitForStatus(t, repo, analysis.ID, StatusDone)
	if done.Meta.SummarizationProgress != 100 {
		t.Fatalf("expected progress 100, got %d", done.Meta.SummarizationProgress)
	}
	// Not every item failed, so the fault is not systemic.
	if done.Meta.SummarizerError != "" {
		t.Fatalf("unexpected summarizer error: %q", done.Meta.SummarizerError)
	}

	_, comments, _ := repo.GetSnapshot(context.Background(), analysis.ID)
	wantStatuses := []string{SummaryOK, SummaryError, SummaryOK}
	for i, c := range comments {
		if c.SummaryStatus != wantStatuses[i] {
			t.Fatalf("comment %d status %s, want %s", i, c.SummaryStatus, wantStatuses[i])
		}
	}
}

func TestSystemicFailureSetsSummarizerError(t *testing.T) {
	sum := &stubSummarizer{fn: func(string) (string, error) {
		return "", &summarize.ProviderError{Provider: "stub", Class: "quota_exceeded", Err: errors.New("quota")}
	}}
	svc, repo := setupService(t, sum)

	analysis, err := svc.Create(context.Background(), CreateInput{
		Items:        []string{"a", "b", "c"},
		SummaryModel: summarize.ModelGemini,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	done := waitForStatus(t, repo, analysis.ID, StatusDone)
	if !strings.Contains(done.Meta.SummarizerError, "quota_exceeded") {
		t.Fatalf("expected systemic quota error, got %q", done.Meta.SummarizerError)
	}
	if done.Meta.SummarizationProgress != 100 {
		t.Fatalf("systemic fault must not halt the job, progress %d", done.Meta.SummarizationProgress)
	}
}

func TestMissingSummarizerFailsAllPending(t *testing.T) {
	svc, repo := setupService(t, nil) // no summarizers configured

	analysis, err := svc.Create(context.Background(), CreateInput{
		Items:        []string{"a", "b"},
		SummaryModel: summarize.ModelGemini,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	done := waitForStatus(t, repo, analysis.ID, StatusDone)
	if done.Meta.SummarizerError == "" {
		t.Fatal("expected summarizer error for missing provider")
	}
	_, comments, _ := repo.GetSnapshot(context.Background(), analysis.ID)
	for i, c := range comments {
		if c.SummaryStatus != SummaryError {
			t.Fatalf("comment %d status %s, want error", i, c.SummaryStatus)
		}
	}
}

func TestRetryFailedSummariesResetsOnlyErrors(t *testing.T) {
	failFirst := true
	sum := &stubSummarizer{fn: func(text string) (string, error) {
		if failFirst && strings.Contains(text, "flaky") {
			return "", summarize.ErrTimeout
		}
		return "summary: " + text, nil
	}}
	svc, repo := setupService(t, sum)

	analysis, err := svc.Create(context.Background(), CreateInput{
		Items:        []string{"stable one", "flaky one", "flaky two"},
		SummaryModel: summarize.ModelGemini,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForStatus(t, repo, analysis.ID, StatusDone)

	_, before, _ := repo.GetSnapshot(context.Background(), analysis.ID)
	okSummary := before[0].Summary
	if before[0].SummaryStatus != SummaryOK || before[1].SummaryStatus != SummaryError {
		t.Fatalf("unexpected statuses before retry: %s %s", before[0].SummaryStatus, before[1].SummaryStatus)
	}

	failFirst = false
	reset, err := svc.RetryFailedSummaries(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("RetryFailedSummaries: %v", err)
	}
	if reset != 2 {
		t.Fatalf("expected 2 reset, got %d", reset)
	}

	done := waitForStatus(t, repo, analysis.ID, StatusDone)
	if done.Meta.SummarizerError != "" {
		t.Fatalf("expected summarizer error cleared, got %q", done.Meta.SummarizerError)
	}
	_, after, _ := repo.GetSnapshot(context.Background(), analysis.ID)
	if after[0].Summary != okSummary {
		t.Fatalf("ok summary regressed: %q -> %q", okSummary, after[0].Summary)
	}
	for i, c := range after {
		if c.SummaryStatus != SummaryOK {
			t.Fatalf("comment %d status %s after retry", i, c.SummaryStatus)
		}
	}
}

func TestRetryNothingToRetry(t *testing.T) {
	sum := &stubSummarizer{}
	svc, repo := setupService(t, sum)

	analysis, err := svc.Create(context.Background(), CreateInput{
		Items:        []string{"fine"},
		SummaryModel: summarize.ModelGemini,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForStatus(t, repo, analysis.ID, StatusDone)

	_, err = svc.RetryFailedSummaries(context.Background(), analysis.ID)
	if !errors.Is(err, ErrNothingToRetry) {
		t.Fatalf("expected ErrNothingToRetry, got %v", err)
	}
	if svc.leases.Held(analysis.ID) {
		t.Fatal("lease leaked after nothing-to-retry")
	}
}

func TestRetryWhilePassRunningConflicts(t *testing.T) {
	svc, repo := setupService(t, &stubSummarizer{})

	analysis := Analysis{ID: "a1", Status: StatusSummarizing, TotalComments: 1, CreatedAt: time.Now().UTC()}
	comment := Comment{ID: "c1", AnalysisID: "a1", Index: 0, OriginalText: "x", SummaryStatus: SummaryError}
	if err := repo.CreateWithComments(context.Background(), analysis, []Comment{comment}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if !svc.leases.Acquire("a1") {
		t.Fatal("could not acquire lease for setup")
	}
	defer svc.leases.Release("a1")

	_, err := svc.RetryFailedSummaries(context.Background(), "a1")
	if !errors.Is(err, ErrRetryInProgress) {
		t.Fatalf("expected ErrRetryInProgress, got %v", err)
	}
}

func TestProgressMonotonicWithinPass(t *testing.T) {
	repo := NewMemoryRepo()
	tracking := &progressTrackingRepo{Repo: repo}
	svc := NewService(tracking)
	svc.Classifiers = sentiment.NewRegistry()
	svc.Summarizers = map[string]summarize.Summarizer{summarize.ModelGemini: &stubSummarizer{}}
	svc.BatchSize = 2

	items := make([]string, 7)
	for i := range items {
		items[i] = fmt.Sprintf("item-%d", i)
	}
	analysis, err := svc.Create(context.Background(), CreateInput{
		Items:        items,
		SummaryModel: summarize.ModelGemini,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForStatus(t, repo, analysis.ID, StatusDone)

	values := tracking.progressValues()
	if len(values) == 0 {
		t.Fatal("no progress values recorded")
	}
	prev := -1
	for i, v := range values {
		if v < prev {
			t.Fatalf("progress regressed at commit %d: %v", i, values)
		}
		prev = v
	}
	if values[len(values)-1] != 100 {
		t.Fatalf("final progress %d, want 100", values[len(values)-1])
	}
}

type progressTrackingRepo struct {
	Repo
	mu     sync.Mutex
	values []int
}

func (r *progressTrackingRepo) ApplyBatch(ctx context.Context, analysisID string, updates []SummaryUpdate, progress int, summarizerError *string) error {
	r.mu.Lock()
	r.values = append(r.values, progress)
	r.mu.Unlock()
	return r.Repo.ApplyBatch(ctx, analysisID, updates, progress, summarizerError)
}

func (r *progressTrackingRepo) Finalize(ctx context.Context, analysisID string, clearError bool) error {
	r.mu.Lock()
	r.values = append(r.values, 100)
	r.mu.Unlock()
	return r.Repo.Finalize(ctx, analysisID, clearError)
}

func (r *progressTrackingRepo) progressValues() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.values))
	copy(out, r.values)
	return out
}

func TestGetSnapshotServedThroughCacheAndInvalidated(t *testing.T) {
	sum := &stubSummarizer{}
	svc, repo := setupService(t, sum)

	analysis, err := svc.Create(context.Background(), CreateInput{
		Items:        []string{"one", "two"},
		SummaryModel: summarize.ModelGemini,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForStatus(t, repo, analysis.ID, StatusDone)

	snap, err := svc.Get(context.Background(), analysis.ID, 0, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Total != 2 || len(snap.Comments) != 2 {
		t.Fatalf("unexpected snapshot shape: total=%d len=%d", snap.Total, len(snap.Comments))
	}
	if snap.Analysis.Status != StatusDone {
		t.Fatalf("snapshot status %s, want done", snap.Analysis.Status)
	}

	if err := svc.Delete(context.Background(), analysis.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), analysis.ID, 0, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestGetWindowOffsetsShareOneRead(t *testing.T) {
	sum := &stubSummarizer{}
	svc, repo := setupService(t, sum)

	items := []string{"a", "b", "c", "d", "e"}
	analysis, err := svc.Create(context.Background(), CreateInput{
		Items:        items,
		SummaryModel: summarize.ModelGemini,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForStatus(t, repo, analysis.ID, StatusDone)

	snap, err := svc.Get(context.Background(), analysis.ID, 2, 2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Total != 5 {
		t.Fatalf("windowed total %d, want 5", snap.Total)
	}
	if len(snap.Comments) != 2 || snap.Comments[0].Index != 2 || snap.Comments[1].Index != 3 {
		t.Fatalf("unexpected window: %+v", snap.Comments)
	}

	// Past-the-end offset yields an empty page, not an error.
	snap, err = svc.Get(context.Background(), analysis.ID, 10, 2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(snap.Comments) != 0 {
		t.Fatalf("expected empty page, got %d", len(snap.Comments))
	}
}

func TestStoreFailureAbortsPassAtLastCommit(t *testing.T) {
	repo := NewMemoryRepo()
	failing := &failAfterNBatchesRepo{Repo: repo, failAfter: 1}
	svc := NewService(failing)
	svc.Classifiers = sentiment.NewRegistry()
	svc.Summarizers = map[string]summarize.Summarizer{summarize.ModelGemini: &stubSummarizer{}}
	svc.BatchSize = 2

	analysis, err := svc.Create(context.Background(), CreateInput{
		Items:        []string{"a", "b", "c", "d"},
		SummaryModel: summarize.ModelGemini,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The pass commits batch one, then aborts on batch two's store failure.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && svc.leases.Held(analysis.ID) {
		time.Sleep(5 * time.Millisecond)
	}
	if svc.leases.Held(analysis.ID) {
		t.Fatal("lease still held after aborted pass")
	}

	got, err := repo.GetByID(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusSummarizing {
		t.Fatalf("aborted pass must leave status summarizing, got %s", got.Status)
	}
	_, comments, _ := repo.GetSnapshot(context.Background(), analysis.ID)
	settled := 0
	for _, c := range comments {
		if c.SummaryStatus != SummaryPending {
			settled++
		}
	}
	if settled != 2 {
		t.Fatalf("expected exactly the first batch committed, got %d settled", settled)
	}
}

type failAfterNBatchesRepo struct {
	Repo
	mu        sync.Mutex
	applied   int
	failAfter int
}

func (r *failAfterNBatchesRepo) ApplyBatch(ctx context.Context, analysisID string, updates []SummaryUpdate, progress int, summarizerError *string) error {
	r.mu.Lock()
	r.applied++
	n := r.applied
	r.mu.Unlock()
	if n > r.failAfter {
		return errors.New("disk full")
	}
	return r.Repo.ApplyBatch(ctx, analysisID, updates, progress, summarizerError)
}

// holdFirstSnapshotRepo finishes its first GetSnapshot read and then holds
// the result until released, so a test can commit a mutation in between.
type holdFirstSnapshotRepo struct {
	Repo
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (r *holdFirstSnapshotRepo) GetSnapshot(ctx context.Context, analysisID string) (Analysis, []Comment, error) {
	analysis, comments, err := r.Repo.GetSnapshot(ctx, analysisID)
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	r.mu.Unlock()
	if first {
		close(r.entered)
		<-r.release
	}
	return analysis, comments, err
}

func TestReadRacingRetryDoesNotCacheStaleSnapshot(t *testing.T) {
	repo := NewMemoryRepo()
	gate := &holdFirstSnapshotRepo{Repo: repo, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(gate)
	svc.Classifiers = sentiment.NewRegistry()

	passRunning := make(chan struct{})
	svc.Summarizers = map[string]summarize.Summarizer{
		summarize.ModelGemini: &stubSummarizer{fn: func(text string) (string, error) {
			<-passRunning
			return "retried.", nil
		}},
	}

	now := time.Now().UTC()
	analysis := Analysis{
		ID:            "a1",
		Status:        StatusDone,
		SummaryModel:  summarize.ModelGemini,
		TotalComments: 2,
		Meta:          Meta{SummarizationProgress: 100},
		CreatedAt:     now,
	}
	comments := []Comment{
		{ID: "c1", AnalysisID: "a1", Index: 0, OriginalText: "fine", Summary: "fine.", SummaryStatus: SummaryOK, CreatedAt: now},
		{ID: "c2", AnalysisID: "a1", Index: 1, OriginalText: "flaky", SummaryStatus: SummaryError, CreatedAt: now},
	}
	if err := repo.CreateWithComments(context.Background(), analysis, comments); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Reader A fetches the pre-retry snapshot from the store and is held
	// before it can populate the cache.
	type readResult struct {
		snap Snapshot
		err  error
	}
	readDone := make(chan readResult, 1)
	go func() {
		snap, err := svc.Get(context.Background(), "a1", 0, 0)
		readDone <- readResult{snap, err}
	}()
	<-gate.entered

	reset, err := svc.RetryFailedSummaries(context.Background(), "a1")
	if err != nil {
		t.Fatalf("RetryFailedSummaries: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 reset, got %d", reset)
	}

	// Let reader A finish; its snapshot predates the retry and must not
	// land in the cache now that the retry invalidated the analysis.
	close(gate.release)
	first := <-readDone
	if first.err != nil {
		t.Fatalf("first read: %v", first.err)
	}
	if first.snap.Analysis.Status != StatusDone {
		t.Fatalf("first reader should have seen the pre-retry state, got %s", first.snap.Analysis.Status)
	}

	// A poll arriving while the pass is still running must reflect the
	// reset, never the finished snapshot reader A fetched.
	snap, err := svc.Get(context.Background(), "a1", 0, 0)
	if err != nil {
		t.Fatalf("Get during pass: %v", err)
	}
	if snap.Analysis.Status != StatusSummarizing {
		t.Fatalf("poller regressed to pre-retry snapshot: status=%s", snap.Analysis.Status)
	}
	if snap.Comments[1].SummaryStatus != SummaryPending {
		t.Fatalf("expected reset comment pending, got %s", snap.Comments[1].SummaryStatus)
	}

	close(passRunning)
	waitForStatus(t, repo, "a1", StatusDone)
}
