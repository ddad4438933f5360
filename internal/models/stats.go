package models

import "time"

// DailyStats is one row per calendar day aggregating platform and learning
// metrics. Upserted for the current day by the rollup job; immutable once the
// day has passed.
type DailyStats struct {
	ID                 string    `db:"id" json:"id"`
	StatDate           time.Time `db:"stat_date" json:"stat_date"`
	ModulesCreated     int       `db:"modules_created" json:"modules_created"`
	ModulesCompleted   int       `db:"modules_completed" json:"modules_completed"`
	ModulesFailed      int       `db:"modules_failed" json:"modules_failed"`
	ActiveLearners     int       `db:"active_learners" json:"active_learners"`
	SectionsCompleted  int       `db:"sections_completed" json:"sections_completed"`
	TimeSpentSeconds   int       `db:"time_spent_seconds" json:"time_spent_seconds"`
	AssignmentsCreated int       `db:"assignments_created" json:"assignments_created"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// OrgDashboard aggregates the admin dashboard payload.
type OrgDashboard struct {
	ModulesByStatus  map[ModuleStatus]int `json:"modules_by_status"`
	TotalMembers     int                  `json:"total_members"`
	ActiveLearners7d int                  `json:"active_learners_7d"`
	CompletionRate   float64              `json:"completion_rate"`
	TimeSpentSeconds int                  `json:"time_spent_seconds"`
	OverdueCount     int                  `json:"overdue_count"`
	RecentModules    []LearningModule     `json:"recent_modules"`
	GeneratedAt      time.Time            `json:"generated_at"`
}

// SystemMetrics is the lightweight snapshot exposed on the admin analytics
// endpoint, assembled from the Prometheus counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	JobsProcessed            uint64    `json:"jobs_processed"`
	JobsFailed               uint64    `json:"jobs_failed"`
	AverageJobDurationMs     float64   `json:"average_job_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
