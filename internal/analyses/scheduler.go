package analyses

import (
	"context"
	"fmt"
	"sync"
	"time"

	"feedback-backend/internal/shared/metrics"
	"feedback-backend/internal/shared/telemetry"
	"feedback-backend/internal/summarize"
)

const (
	defaultBatchSize   = 10
	defaultWorkers     = 4
	defaultItemTimeout = 30 * time.Second
)

// batchResult is one settled batch plus what the scheduler needs to decide
// on systemic faults.
type batchResult struct {
	updates    []SummaryUpdate
	errorCount int
	// errorClass is the shared failure class when every item in the batch
	// failed the same way, "" otherwise.
	errorClass string
}

// runSummarization drives one summarization pass for an analysis. The caller
// must hold the lease; it is released here when the pass ends.
func (s *Service) runSummarization(ctx context.Context, analysisID string) {
	defer s.leases.Release(analysisID)
	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("summarization.panic", map[string]any{
				"job_id":      jobIDFromContext(ctx),
				"analysis_id": analysisID,
				"panic":       fmt.Sprint(r),
			})
		}
	}()

	startedAt := time.Now().UTC()
	metrics.IncSummarizationStarted()

	pending, err := s.Repo.ListPending(ctx, analysisID)
	if err != nil {
		s.abortPass(ctx, analysisID, fmt.Errorf("list pending: %w", err))
		return
	}
	analysis, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		s.abortPass(ctx, analysisID, fmt.Errorf("analysis lookup: %w", err))
		return
	}
	total := analysis.TotalComments

	summarizer := s.summarizerFor(analysis.SummaryModel)
	if summarizer == nil {
		// No provider configured: every pending item fails, the job still
		// terminates.
		updates := make([]SummaryUpdate, 0, len(pending))
		for _, c := range pending {
			updates = append(updates, SummaryUpdate{CommentID: c.ID, Status: SummaryError})
		}
		msg := "no summarizer configured"
		if err := s.Repo.ApplyBatch(ctx, analysisID, updates, 100, &msg); err != nil {
			s.abortPass(ctx, analysisID, fmt.Errorf("apply batch: %w", err))
			return
		}
		s.cache.Invalidate(analysisID)
		s.finishPass(ctx, analysisID, false, len(pending), startedAt)
		return
	}

	if err := s.Repo.SetSummaryModelName(ctx, analysisID, summarizer.ModelName()); err != nil {
		s.abortPass(ctx, analysisID, fmt.Errorf("set model name: %w", err))
		return
	}

	nonPending := total - len(pending)
	passErrors := 0

	for start := 0; start < len(pending); start += s.batchSize() {
		end := start + s.batchSize()
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		result := s.summarizeBatch(ctx, summarizer, batch)
		passErrors += result.errorCount
		nonPending += len(batch)

		var summarizerError *string
		if result.errorClass != "" {
			msg := "summarizer failure: " + result.errorClass
			summarizerError = &msg
		}
		if err := s.Repo.ApplyBatch(ctx, analysisID, result.updates, Progress(nonPending, total), summarizerError); err != nil {
			// Leave the job at its last committed batch; a retry pass can
			// resume from there.
			s.abortPass(ctx, analysisID, fmt.Errorf("apply batch: %w", err))
			return
		}
		s.cache.Invalidate(analysisID)
	}

	s.finishPass(ctx, analysisID, passErrors == 0, passErrors, startedAt)
}

// summarizeBatch settles one batch with bounded concurrency and a per-item
// timeout. Results keep the batch's input order.
func (s *Service) summarizeBatch(ctx context.Context, summarizer summarize.Summarizer, batch []Comment) batchResult {
	type itemResult struct {
		update SummaryUpdate
		class  string
	}
	results := make([]itemResult, len(batch))

	sem := make(chan struct{}, s.workers())
	var wg sync.WaitGroup
	for i, c := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, c Comment) {
			defer wg.Done()
			defer func() { <-sem }()

			itemCtx, cancel := context.WithTimeout(ctx, s.itemTimeout())
			defer cancel()

			summary, err := summarizer.Summarize(itemCtx, c.OriginalText)
			if err != nil {
				results[i] = itemResult{
					update: SummaryUpdate{CommentID: c.ID, Status: SummaryError},
					class:  summarize.ErrorClass(err),
				}
				return
			}
			results[i] = itemResult{
				update: SummaryUpdate{CommentID: c.ID, Status: SummaryOK, Summary: summarize.Normalize(summary)},
			}
		}(i, c)
	}
	wg.Wait()

	out := batchResult{updates: make([]SummaryUpdate, 0, len(batch))}
	sharedClass := ""
	uniform := true
	for _, r := range results {
		out.updates = append(out.updates, r.update)
		if r.update.Status == SummaryOK {
			metrics.IncSummaryOK()
			continue
		}
		metrics.IncSummaryError()
		out.errorCount++
		if out.errorCount == 1 {
			sharedClass = r.class
		} else if r.class != sharedClass {
			uniform = false
		}
	}
	// Systemic only when the entire batch failed with one class.
	if len(batch) > 0 && out.errorCount == len(batch) && uniform && sharedClass != "" {
		out.errorClass = sharedClass
	}
	return out
}

func (s *Service) finishPass(ctx context.Context, analysisID string, clean bool, errorCount int, startedAt time.Time) {
	if err := s.Repo.Finalize(ctx, analysisID, clean); err != nil {
		s.abortPass(ctx, analysisID, fmt.Errorf("finalize: %w", err))
		return
	}
	s.cache.Invalidate(analysisID)
	completedAt := time.Now().UTC()
	metrics.IncSummarizationCompleted()
	metrics.ObserveSummarizationDurationMs(float64(completedAt.Sub(startedAt).Microseconds()) / 1000.0)
	telemetry.Info("summarization.status", map[string]any{
		"job_id":            jobIDFromContext(ctx),
		"analysis_id":       analysisID,
		"status":            StatusDone,
		"status_transition": "summarizing->done",
		"error_count":       errorCount,
		"duration_ms":       completedAt.Sub(startedAt).Milliseconds(),
	})
}

func (s *Service) abortPass(ctx context.Context, analysisID string, err error) {
	metrics.IncSummarizationAborted()
	telemetry.Error("summarization.aborted", map[string]any{
		"job_id":      jobIDFromContext(ctx),
		"analysis_id": analysisID,
		"error_code":  ErrorCodeStorage,
		"error":       err.Error(),
	})
}

func (s *Service) batchSize() int {
	if s.BatchSize > 0 {
		return s.BatchSize
	}
	return defaultBatchSize
}

func (s *Service) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return defaultWorkers
}

func (s *Service) itemTimeout() time.Duration {
	if s.ItemTimeout > 0 {
		return s.ItemTimeout
	}
	return defaultItemTimeout
}
