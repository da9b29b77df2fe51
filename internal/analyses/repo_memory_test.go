package analyses

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedMemoryRepo(t *testing.T) *MemoryRepo {
	t.Helper()
	repo := NewMemoryRepo()
	now := time.Now().UTC()
	analysis := Analysis{ID: "a1", Name: "seed", Status: StatusSummarizing, TotalComments: 3, CreatedAt: now}
	comments := []Comment{
		{ID: "c1", AnalysisID: "a1", Index: 0, OriginalText: "one", SummaryStatus: SummaryOK, Summary: "settled."},
		{ID: "c2", AnalysisID: "a1", Index: 1, OriginalText: "two", SummaryStatus: SummaryError},
		{ID: "c3", AnalysisID: "a1", Index: 2, OriginalText: "three", SummaryStatus: SummaryPending},
	}
	if err := repo.CreateWithComments(context.Background(), analysis, comments); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return repo
}

func TestMemoryRepoApplyBatchNeverOverwritesOK(t *testing.T) {
	repo := seedMemoryRepo(t)

	updates := []SummaryUpdate{
		{CommentID: "c1", Status: SummaryError},
		{CommentID: "c3", Status: SummaryOK, Summary: "fresh."},
	}
	if err := repo.ApplyBatch(context.Background(), "a1", updates, 67, nil); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}

	_, comments, err := repo.GetSnapshot(context.Background(), "a1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if comments[0].SummaryStatus != SummaryOK || comments[0].Summary != "settled." {
		t.Fatalf("settled summary was overwritten: %+v", comments[0])
	}
	if comments[2].SummaryStatus != SummaryOK || comments[2].Summary != "fresh." {
		t.Fatalf("pending comment not updated: %+v", comments[2])
	}

	analysis, _ := repo.GetByID(context.Background(), "a1")
	if analysis.Meta.SummarizationProgress != 67 {
		t.Fatalf("progress %d, want 67", analysis.Meta.SummarizationProgress)
	}
}

func TestMemoryRepoFinalizeSweepsStragglers(t *testing.T) {
	repo := seedMemoryRepo(t)

	if err := repo.Finalize(context.Background(), "a1", false); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	analysis, comments, err := repo.GetSnapshot(context.Background(), "a1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if analysis.Status != StatusDone || analysis.Meta.SummarizationProgress != 100 {
		t.Fatalf("unexpected finalized analysis: %+v", analysis)
	}
	// The still-pending c3 becomes error; nothing stays pending past done.
	if comments[2].SummaryStatus != SummaryError {
		t.Fatalf("straggler not swept: %+v", comments[2])
	}
	if comments[0].SummaryStatus != SummaryOK {
		t.Fatalf("ok comment disturbed: %+v", comments[0])
	}
}

func TestMemoryRepoResetFailedScopesToErrors(t *testing.T) {
	repo := seedMemoryRepo(t)

	reset, err := repo.ResetFailed(context.Background(), "a1")
	if err != nil {
		t.Fatalf("ResetFailed: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 reset, got %d", reset)
	}

	analysis, comments, _ := repo.GetSnapshot(context.Background(), "a1")
	if analysis.Status != StatusSummarizing {
		t.Fatalf("expected summarizing, got %s", analysis.Status)
	}
	// One of three is settled ok, so progress recomputes to 33.
	if analysis.Meta.SummarizationProgress != 33 {
		t.Fatalf("progress %d, want 33", analysis.Meta.SummarizationProgress)
	}
	if comments[1].SummaryStatus != SummaryPending {
		t.Fatalf("error comment not reset: %+v", comments[1])
	}
	if comments[0].SummaryStatus != SummaryOK {
		t.Fatalf("ok comment disturbed: %+v", comments[0])
	}
}

func TestMemoryRepoNotFound(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByID: expected ErrNotFound, got %v", err)
	}
	if _, _, err := repo.GetSnapshot(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSnapshot: expected ErrNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete: expected ErrNotFound, got %v", err)
	}
	if err := repo.SetStatus(ctx, "missing", StatusDone); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetStatus: expected ErrNotFound, got %v", err)
	}
	if _, err := repo.ResetFailed(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ResetFailed: expected ErrNotFound, got %v", err)
	}
}
