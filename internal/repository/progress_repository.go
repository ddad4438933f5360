package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/modulearn/modulearn-api/internal/models"
)

// ProgressRepository manages per-section reading state.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs a ProgressRepository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Upsert inserts or refreshes the (user, module, section) progress row.
// Time spent accumulates; completed never flips back to false so a re-read
// cannot undo completion.
func (r *ProgressRepository) Upsert(ctx context.Context, progress *models.UserProgress) error {
	if progress.ID == "" {
		progress.ID = uuid.NewString()
	}
	progress.LastAccessed = time.Now().UTC()
	const query = `INSERT INTO user_progress (id, user_id, module_id, section_id, time_spent_seconds, completed, last_accessed, bookmark)
VALUES (:id, :user_id, :module_id, :section_id, :time_spent_seconds, :completed, :last_accessed, :bookmark)
ON CONFLICT (user_id, section_id) DO UPDATE SET
	time_spent_seconds = user_progress.time_spent_seconds + EXCLUDED.time_spent_seconds,
	completed = user_progress.completed OR EXCLUDED.completed,
	last_accessed = EXCLUDED.last_accessed,
	bookmark = EXCLUDED.bookmark`
	if _, err := r.db.NamedExecContext(ctx, query, progress); err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

// ListByModule returns all of a user's section progress in one module.
func (r *ProgressRepository) ListByModule(ctx context.Context, userID, moduleID string) ([]models.UserProgress, error) {
	const query = `SELECT id, user_id, module_id, section_id, time_spent_seconds, completed, last_accessed, bookmark
FROM user_progress WHERE user_id = $1 AND module_id = $2`
	var rows []models.UserProgress
	if err := r.db.SelectContext(ctx, &rows, query, userID, moduleID); err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	return rows, nil
}

// Summary aggregates one user's progress across a module.
func (r *ProgressRepository) Summary(ctx context.Context, userID, moduleID string) (*models.ModuleProgressSummary, error) {
	const query = `SELECT
	$2::text AS module_id,
	$1::text AS user_id,
	(SELECT COUNT(*) FROM module_sections WHERE module_id = $2) AS sections_total,
	COUNT(*) FILTER (WHERE p.completed) AS sections_completed,
	COALESCE(SUM(p.time_spent_seconds), 0) AS time_spent_seconds
FROM user_progress p WHERE p.user_id = $1 AND p.module_id = $2`
	var summary models.ModuleProgressSummary
	if err := r.db.GetContext(ctx, &summary, query, userID, moduleID); err != nil {
		return nil, fmt.Errorf("progress summary: %w", err)
	}
	if summary.SectionsTotal > 0 {
		summary.PercentComplete = float64(summary.SectionsCompleted) / float64(summary.SectionsTotal) * 100
	}
	return &summary, nil
}

// CountActiveLearners counts distinct org users with activity since cutoff.
func (r *ProgressRepository) CountActiveLearners(ctx context.Context, orgID string, since time.Time) (int, error) {
	const query = `SELECT COUNT(DISTINCT p.user_id) FROM user_progress p
JOIN users u ON u.id = p.user_id
WHERE u.org_id = $1 AND p.last_accessed >= $2`
	var total int
	if err := r.db.GetContext(ctx, &total, query, orgID, since); err != nil {
		return 0, fmt.Errorf("count active learners: %w", err)
	}
	return total, nil
}

// OrgTotals sums completed sections and time spent across an organization.
func (r *ProgressRepository) OrgTotals(ctx context.Context, orgID string) (completedSections, timeSpentSeconds int, err error) {
	const query = `SELECT
	COUNT(*) FILTER (WHERE p.completed) AS sections_completed,
	COALESCE(SUM(p.time_spent_seconds), 0) AS time_spent_seconds
FROM user_progress p
JOIN users u ON u.id = p.user_id
WHERE u.org_id = $1`
	row := struct {
		SectionsCompleted int `db:"sections_completed"`
		TimeSpentSeconds  int `db:"time_spent_seconds"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, orgID); err != nil {
		return 0, 0, fmt.Errorf("org progress totals: %w", err)
	}
	return row.SectionsCompleted, row.TimeSpentSeconds, nil
}
