package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PGRepo implements Repo using Postgres. Multi-record operations run in a
// transaction so pollers reading through GetSnapshot see each batch land as
// a unit.
type PGRepo struct {
	DB *sql.DB
}

const analysisColumns = `
id, name, status, sentiment_model, summary_model, total_comments,
sentiment_counts, meta, created_at, updated_at`

// CreateWithComments inserts the analysis and all of its comments in one
// transaction.
func (r *PGRepo) CreateWithComments(ctx context.Context, analysis Analysis, comments []Comment) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertAnalysis(ctx, tx, analysis); err != nil {
		return err
	}

	const query = `
INSERT INTO comments (id, analysis_id, idx, original_text, sentiment_label, sentiment_score, summary, summary_status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, c := range comments {
		if _, err := tx.ExecContext(ctx, query,
			c.ID,
			c.AnalysisID,
			c.Index,
			c.OriginalText,
			c.SentimentLabel,
			c.SentimentScore,
			nullString(c.Summary),
			c.SummaryStatus,
			c.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CreateFailed inserts an analysis that died before any comments existed.
func (r *PGRepo) CreateFailed(ctx context.Context, analysis Analysis) error {
	analysis.Status = StatusError
	return insertAnalysis(ctx, r.DB, analysis)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAnalysis(ctx context.Context, db execer, analysis Analysis) error {
	const query = `
INSERT INTO analyses (id, name, status, sentiment_model, summary_model, total_comments, sentiment_counts, meta, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	counts, err := marshalJSONB(analysis.SentimentCounts)
	if err != nil {
		return err
	}
	meta, err := marshalJSONB(analysis.Meta)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, query,
		analysis.ID,
		analysis.Name,
		analysis.Status,
		analysis.SentimentModel,
		analysis.SummaryModel,
		analysis.TotalComments,
		counts,
		meta,
		analysis.CreatedAt,
		analysis.UpdatedAt,
	)
	return err
}

// GetByID returns the analysis record alone.
func (r *PGRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	const query = `
SELECT ` + analysisColumns + `
FROM analyses
WHERE id = $1
LIMIT 1`
	return scanAnalysis(r.DB.QueryRowContext(ctx, query, analysisID))
}

// GetSnapshot reads the analysis and its comments inside one transaction so
// the two result sets agree.
func (r *PGRepo) GetSnapshot(ctx context.Context, analysisID string) (Analysis, []Comment, error) {
	tx, err := r.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return Analysis{}, nil, err
	}
	defer tx.Rollback()

	const analysisQuery = `
SELECT ` + analysisColumns + `
FROM analyses
WHERE id = $1
LIMIT 1`
	analysis, err := scanAnalysis(tx.QueryRowContext(ctx, analysisQuery, analysisID))
	if err != nil {
		return Analysis{}, nil, err
	}

	const commentsQuery = `
SELECT id, analysis_id, idx, original_text, sentiment_label, sentiment_score, summary, summary_status, created_at
FROM comments
WHERE analysis_id = $1
ORDER BY idx ASC`
	rows, err := tx.QueryContext(ctx, commentsQuery, analysisID)
	if err != nil {
		return Analysis{}, nil, err
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return Analysis{}, nil, err
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return Analysis{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return Analysis{}, nil, err
	}
	return analysis, comments, nil
}

// List returns analyses newest-first.
func (r *PGRepo) List(ctx context.Context, limit, offset int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT ` + analysisColumns + `
FROM analyses
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`
	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	analyses := []Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

// ListPending returns pending comments in ascending index order.
func (r *PGRepo) ListPending(ctx context.Context, analysisID string) ([]Comment, error) {
	const query = `
SELECT id, analysis_id, idx, original_text, sentiment_label, sentiment_score, summary, summary_status, created_at
FROM comments
WHERE analysis_id = $1 AND summary_status = $2
ORDER BY idx ASC`
	rows, err := r.DB.QueryContext(ctx, query, analysisID, SummaryPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// SetStatus transitions the analysis status.
func (r *PGRepo) SetStatus(ctx context.Context, analysisID, status string) error {
	const query = `UPDATE analyses SET status = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, analysisID, status)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ApplyBatch commits one settled batch in a transaction.
func (r *PGRepo) ApplyBatch(ctx context.Context, analysisID string, updates []SummaryUpdate, progress int, summarizerError *string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const updateQuery = `
UPDATE comments
SET summary = $2, summary_status = $3
WHERE id = $1 AND summary_status <> $4`
	for _, u := range updates {
		var summary any
		if u.Status == SummaryOK {
			summary = u.Summary
		}
		if _, err := tx.ExecContext(ctx, updateQuery, u.CommentID, summary, u.Status, SummaryOK); err != nil {
			return err
		}
	}

	if summarizerError != nil {
		const metaQuery = `
UPDATE analyses
SET meta = jsonb_set(jsonb_set(meta, '{summarization_progress}', to_jsonb($2::int)), '{summarizer_error}', to_jsonb($3::text)),
    updated_at = NOW()
WHERE id = $1`
		res, err := tx.ExecContext(ctx, metaQuery, analysisID, progress, *summarizerError)
		if err != nil {
			return err
		}
		if err := requireRow(res); err != nil {
			return err
		}
	} else {
		const metaQuery = `
UPDATE analyses
SET meta = jsonb_set(meta, '{summarization_progress}', to_jsonb($2::int)),
    updated_at = NOW()
WHERE id = $1`
		res, err := tx.ExecContext(ctx, metaQuery, analysisID, progress)
		if err != nil {
			return err
		}
		if err := requireRow(res); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Finalize marks the analysis done; stray pending comments become errors.
func (r *PGRepo) Finalize(ctx context.Context, analysisID string, clearError bool) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const sweepQuery = `
UPDATE comments SET summary_status = $2 WHERE analysis_id = $1 AND summary_status = $3`
	if _, err := tx.ExecContext(ctx, sweepQuery, analysisID, SummaryError, SummaryPending); err != nil {
		return err
	}

	metaExpr := `jsonb_set(meta, '{summarization_progress}', to_jsonb(100))`
	if clearError {
		metaExpr += ` - 'summarizer_error'`
	}
	query := `
UPDATE analyses
SET status = $2, meta = ` + metaExpr + `, updated_at = NOW()
WHERE id = $1`
	res, err := tx.ExecContext(ctx, query, analysisID, StatusDone)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// ResetFailed flips error comments back to pending and re-enters
// summarizing, all in one transaction. Returns the number of comments reset.
func (r *PGRepo) ResetFailed(ctx context.Context, analysisID string) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var total int
	const totalQuery = `SELECT total_comments FROM analyses WHERE id = $1 FOR UPDATE`
	if err := tx.QueryRowContext(ctx, totalQuery, analysisID).Scan(&total); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}

	const resetQuery = `
UPDATE comments SET summary_status = $2 WHERE analysis_id = $1 AND summary_status = $3`
	res, err := tx.ExecContext(ctx, resetQuery, analysisID, SummaryPending, SummaryError)
	if err != nil {
		return 0, err
	}
	reset, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if reset == 0 {
		return 0, tx.Rollback()
	}

	var nonPending int
	const countQuery = `
SELECT COUNT(*) FROM comments WHERE analysis_id = $1 AND summary_status <> $2`
	if err := tx.QueryRowContext(ctx, countQuery, analysisID, SummaryPending).Scan(&nonPending); err != nil {
		return 0, err
	}

	const statusQuery = `
UPDATE analyses
SET status = $2,
    meta = jsonb_set(meta, '{summarization_progress}', to_jsonb($3::int)) - 'summarizer_error',
    updated_at = NOW()
WHERE id = $1`
	if _, err := tx.ExecContext(ctx, statusQuery, analysisID, StatusSummarizing, Progress(nonPending, total)); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(reset), nil
}

// SetSummaryModelName records the resolved provider model in meta.
func (r *PGRepo) SetSummaryModelName(ctx context.Context, analysisID, modelName string) error {
	const query = `
UPDATE analyses
SET meta = jsonb_set(meta, '{summary_model_name}', to_jsonb($2::text)), updated_at = NOW()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, analysisID, modelName)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes the analysis; comments go with it via ON DELETE CASCADE.
func (r *PGRepo) Delete(ctx context.Context, analysisID string) error {
	const query = `DELETE FROM analyses WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, analysisID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var a Analysis
	var counts sql.NullString
	var meta sql.NullString
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Status,
		&a.SentimentModel,
		&a.SummaryModel,
		&a.TotalComments,
		&counts,
		&meta,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Analysis{}, ErrNotFound
		}
		return Analysis{}, err
	}
	if counts.Valid && counts.String != "" {
		if err := json.Unmarshal([]byte(counts.String), &a.SentimentCounts); err != nil {
			return Analysis{}, fmt.Errorf("decode sentiment_counts for analysis %s: %w", a.ID, err)
		}
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &a.Meta); err != nil {
			return Analysis{}, fmt.Errorf("decode meta for analysis %s: %w", a.ID, err)
		}
	}
	return a, nil
}

func scanComment(row rowScanner) (Comment, error) {
	var c Comment
	var summary sql.NullString
	err := row.Scan(
		&c.ID,
		&c.AnalysisID,
		&c.Index,
		&c.OriginalText,
		&c.SentimentLabel,
		&c.SentimentScore,
		&summary,
		&c.SummaryStatus,
		&c.CreatedAt,
	)
	if err != nil {
		return Comment{}, err
	}
	if summary.Valid {
		c.Summary = summary.String
	}
	return c, nil
}

func marshalJSONB(v any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
