package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/modulearn/modulearn-api/internal/models"
)

// StatsRepository persists daily aggregate rows.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository constructs a StatsRepository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Upsert writes the stats row for a day, replacing any earlier rollup of the
// same date.
func (r *StatsRepository) Upsert(ctx context.Context, stats *models.DailyStats) error {
	if stats.ID == "" {
		stats.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if stats.CreatedAt.IsZero() {
		stats.CreatedAt = now
	}
	stats.UpdatedAt = now
	const query = `INSERT INTO daily_stats (id, stat_date, modules_created, modules_completed, modules_failed, active_learners, sections_completed, time_spent_seconds, assignments_created, created_at, updated_at)
VALUES (:id, :stat_date, :modules_created, :modules_completed, :modules_failed, :active_learners, :sections_completed, :time_spent_seconds, :assignments_created, :created_at, :updated_at)
ON CONFLICT (stat_date) DO UPDATE SET
	modules_created = EXCLUDED.modules_created,
	modules_completed = EXCLUDED.modules_completed,
	modules_failed = EXCLUDED.modules_failed,
	active_learners = EXCLUDED.active_learners,
	sections_completed = EXCLUDED.sections_completed,
	time_spent_seconds = EXCLUDED.time_spent_seconds,
	assignments_created = EXCLUDED.assignments_created,
	updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, stats); err != nil {
		return fmt.Errorf("upsert daily stats: %w", err)
	}
	return nil
}

// ListRange returns stats rows between from and to inclusive, oldest first.
func (r *StatsRepository) ListRange(ctx context.Context, from, to time.Time) ([]models.DailyStats, error) {
	const query = `SELECT id, stat_date, modules_created, modules_completed, modules_failed, active_learners, sections_completed, time_spent_seconds, assignments_created, created_at, updated_at
FROM daily_stats WHERE stat_date >= $1 AND stat_date <= $2 ORDER BY stat_date ASC`
	var rows []models.DailyStats
	if err := r.db.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("list daily stats: %w", err)
	}
	return rows, nil
}

// CollectDay recomputes the aggregate counters for one calendar day straight
// from the source tables.
func (r *StatsRepository) CollectDay(ctx context.Context, day time.Time) (*models.DailyStats, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	const query = `SELECT
	(SELECT COUNT(*) FROM learning_modules WHERE created_at >= $1 AND created_at < $2) AS modules_created,
	(SELECT COUNT(*) FROM learning_modules WHERE status = 'COMPLETED' AND finished_at >= $1 AND finished_at < $2) AS modules_completed,
	(SELECT COUNT(*) FROM learning_modules WHERE status = 'FAILED' AND finished_at >= $1 AND finished_at < $2) AS modules_failed,
	(SELECT COUNT(DISTINCT user_id) FROM user_progress WHERE last_accessed >= $1 AND last_accessed < $2) AS active_learners,
	(SELECT COUNT(*) FROM user_progress WHERE completed AND last_accessed >= $1 AND last_accessed < $2) AS sections_completed,
	(SELECT COALESCE(SUM(time_spent_seconds), 0) FROM user_progress WHERE last_accessed >= $1 AND last_accessed < $2) AS time_spent_seconds,
	(SELECT COUNT(*) FROM module_assignments WHERE created_at >= $1 AND created_at < $2) AS assignments_created`

	var stats models.DailyStats
	if err := r.db.GetContext(ctx, &stats, query, dayStart, dayEnd); err != nil {
		return nil, fmt.Errorf("collect daily stats: %w", err)
	}
	stats.StatDate = dayStart
	return &stats, nil
}
