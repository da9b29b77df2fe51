package analyses

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"feedback-backend/internal/sentiment"
	"feedback-backend/internal/shared/metrics"
	"feedback-backend/internal/shared/storage/object"
	"feedback-backend/internal/shared/telemetry"
	"feedback-backend/internal/summarize"
	"feedback-backend/internal/wordcloud"
)

const maxItemsPerAnalysis = 5000

// Service contains business logic for analyses: the synchronous sentiment
// stage, the asynchronous summarization passes, and the read path.
type Service struct {
	Repo        Repo
	Classifiers *sentiment.Registry
	// Summarizers maps a summary model tag to a configured provider client.
	// A known tag with no client is a runtime condition, not a validation
	// error: the job completes with every summary failed.
	Summarizers map[string]summarize.Summarizer
	WordCloud   wordcloud.Renderer
	Assets      object.ObjectStore

	BatchSize   int
	Workers     int
	ItemTimeout time.Duration

	leases *leaseTable
	cache  *snapshotCache
}

// NewService wires a Service with its lease table and read cache.
func NewService(repo Repo) *Service {
	return &Service{
		Repo:   repo,
		leases: newLeaseTable(),
		cache:  newSnapshotCache(snapshotTTL, nil),
	}
}

// CreateInput is one create_analysis request after ingest.
type CreateInput struct {
	Name           string
	Items          []string
	SentimentModel string
	SummaryModel   string
}

// Snapshot is a consistent read of an analysis: the job record plus a window
// of its comments. Total is the full comment count regardless of the window.
type Snapshot struct {
	Analysis Analysis  `json:"analysis"`
	Comments []Comment `json:"comments"`
	Total    int       `json:"total"`
}

// Create runs the sentiment stage synchronously, persists the analysis, and
// schedules the summarization pass. A classifier failure persists the
// analysis as status error with no comments; the caller still gets the
// record back.
func (s *Service) Create(ctx context.Context, in CreateInput) (Analysis, error) {
	if len(in.Items) == 0 {
		return Analysis{}, fmt.Errorf("%w: empty item list", ErrValidation)
	}
	if len(in.Items) > maxItemsPerAnalysis {
		return Analysis{}, fmt.Errorf("%w: too many items (max %d)", ErrValidation, maxItemsPerAnalysis)
	}

	sentimentModel := in.SentimentModel
	if sentimentModel == "" {
		sentimentModel = sentiment.DefaultModel
	}
	classifier, err := s.Classifiers.Get(sentimentModel)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: unknown sentiment model %q", ErrValidation, sentimentModel)
	}

	summaryModel := in.SummaryModel
	if summaryModel == "" {
		summaryModel = summarize.ModelGemini
	}
	if !summarize.KnownModel(summaryModel) {
		return Analysis{}, fmt.Errorf("%w: unknown summary model %q", ErrValidation, summaryModel)
	}

	now := time.Now().UTC()
	analysis := Analysis{
		ID:             uuid.NewString(),
		Name:           normalizeName(in.Name, now),
		Status:         StatusProcessing,
		SentimentModel: sentimentModel,
		SummaryModel:   summaryModel,
		TotalComments:  len(in.Items),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	predictions, err := classifier.Classify(ctx, in.Items)
	if err != nil {
		// The sentiment stage is all-or-nothing: the analysis is persisted
		// as a terminal error with no comments.
		analysis.Status = StatusError
		analysis.Meta.Error = sanitizeError(fmt.Errorf("sentiment classification failed: %w", err))
		if storeErr := s.Repo.CreateFailed(ctx, analysis); storeErr != nil {
			return Analysis{}, storeErr
		}
		metrics.IncAnalysisFailed()
		telemetry.Error("analysis.status", map[string]any{
			"job_id":      jobIDFromContext(ctx),
			"analysis_id": analysis.ID,
			"status":      StatusError,
			"error_code":  ErrorCodeClassifierFailure,
			"error":       analysis.Meta.Error,
		})
		return analysis, nil
	}

	comments := make([]Comment, len(in.Items))
	counts := make(map[string]int, 3)
	for i, text := range in.Items {
		counts[predictions[i].Label]++
		comments[i] = Comment{
			ID:             uuid.NewString(),
			AnalysisID:     analysis.ID,
			Index:          i,
			OriginalText:   text,
			SentimentLabel: predictions[i].Label,
			SentimentScore: predictions[i].Score,
			SummaryStatus:  SummaryPending,
			CreatedAt:      now,
		}
	}
	analysis.SentimentCounts = counts

	if err := s.Repo.CreateWithComments(ctx, analysis, comments); err != nil {
		return Analysis{}, err
	}
	metrics.IncAnalysisStarted()

	if err := s.Repo.SetStatus(ctx, analysis.ID, StatusSummarizing); err != nil {
		return Analysis{}, err
	}
	analysis.Status = StatusSummarizing
	telemetry.Info("analysis.status", map[string]any{
		"job_id":            jobIDFromContext(ctx),
		"analysis_id":       analysis.ID,
		"status":            StatusSummarizing,
		"status_transition": "processing->summarizing",
		"total_comments":    analysis.TotalComments,
	})

	if s.leases.Acquire(analysis.ID) {
		go s.runSummarization(detachedWithJobID(ctx), analysis.ID)
	}
	return analysis, nil
}

// Get returns a consistent snapshot with a comment window. The full comment
// set is cached; the window is cut afterwards so every offset shares one
// consistent read.
func (s *Service) Get(ctx context.Context, analysisID string, offset, limit int) (Snapshot, error) {
	if analysisID == "" {
		return Snapshot{}, fmt.Errorf("%w: analysisID is required", ErrValidation)
	}
	analysis, comments, ok := s.cache.Get(analysisID)
	if !ok {
		// The epoch is taken before the store read: if a mutation
		// invalidates this ID while the read is in flight, Put drops the
		// now-stale snapshot instead of serving it for the TTL.
		epoch := s.cache.Epoch(analysisID)
		var err error
		analysis, comments, err = s.Repo.GetSnapshot(ctx, analysisID)
		if err != nil {
			return Snapshot{}, err
		}
		s.cache.Put(analysisID, epoch, analysis, comments)
	}
	return Snapshot{
		Analysis: analysis,
		Comments: window(comments, offset, limit),
		Total:    len(comments),
	}, nil
}

// List returns analyses newest-first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Analysis, error) {
	return s.Repo.List(ctx, limit, offset)
}

// RetryFailedSummaries resets failed summaries to pending and starts a new
// pass. It returns the number of comments reset. Comments that summarized
// ok are never touched.
func (s *Service) RetryFailedSummaries(ctx context.Context, analysisID string) (int, error) {
	if analysisID == "" {
		return 0, fmt.Errorf("%w: analysisID is required", ErrValidation)
	}
	if _, err := s.Repo.GetByID(ctx, analysisID); err != nil {
		return 0, err
	}

	// Lease first: the reset must never race a pass that is still writing.
	if !s.leases.Acquire(analysisID) {
		return 0, ErrRetryInProgress
	}

	reset, err := s.Repo.ResetFailed(ctx, analysisID)
	if err != nil {
		s.leases.Release(analysisID)
		return 0, err
	}
	if reset == 0 {
		s.leases.Release(analysisID)
		return 0, ErrNothingToRetry
	}
	s.cache.Invalidate(analysisID)
	metrics.IncRetryStarted()
	telemetry.Info("analysis.retry", map[string]any{
		"job_id":      jobIDFromContext(ctx),
		"analysis_id": analysisID,
		"reset_count": reset,
	})

	go s.runSummarization(detachedWithJobID(ctx), analysisID)
	return reset, nil
}

// Delete removes the analysis and its comments. A pass still running for it
// aborts on its next commit.
func (s *Service) Delete(ctx context.Context, analysisID string) error {
	if analysisID == "" {
		return fmt.Errorf("%w: analysisID is required", ErrValidation)
	}
	if err := s.Repo.Delete(ctx, analysisID); err != nil {
		return err
	}
	s.cache.Invalidate(analysisID)
	return nil
}

// RenderWordCloud builds a word cloud from the original texts and the ok
// summaries, stores the asset when an object store is configured, and
// returns the image bytes with their content type.
func (s *Service) RenderWordCloud(ctx context.Context, analysisID string) ([]byte, string, error) {
	if s.WordCloud == nil {
		return nil, "", fmt.Errorf("word cloud renderer not configured")
	}
	snap, err := s.Get(ctx, analysisID, 0, 0)
	if err != nil {
		return nil, "", err
	}
	texts := make([]string, 0, len(snap.Comments)*2)
	for _, c := range snap.Comments {
		if strings.TrimSpace(c.OriginalText) != "" {
			texts = append(texts, c.OriginalText)
		}
		if c.SummaryStatus == SummaryOK && c.Summary != "" {
			texts = append(texts, c.Summary)
		}
	}
	img, err := s.WordCloud.Render(ctx, texts)
	if err != nil {
		return nil, "", err
	}
	if s.Assets != nil {
		key := "wordclouds/" + analysisID + ".svg"
		if err := s.Assets.Put(ctx, key, img, s.WordCloud.ContentType()); err != nil {
			telemetry.Error("wordcloud.store_failed", map[string]any{
				"analysis_id": analysisID,
				"error":       err.Error(),
			})
		}
	}
	return img, s.WordCloud.ContentType(), nil
}

func (s *Service) summarizerFor(model string) summarize.Summarizer {
	if s.Summarizers == nil {
		return nil
	}
	return s.Summarizers[model]
}

func normalizeName(name string, now time.Time) string {
	name = strings.TrimSpace(name)
	if name != "" {
		return name
	}
	return "Analysis " + now.Format("2006-01-02 15:04")
}

func window(comments []Comment, offset, limit int) []Comment {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(comments) {
		return []Comment{}
	}
	end := len(comments)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return comments[offset:end]
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
