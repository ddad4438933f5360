package models

import "time"

// UserProgress records per (user, module, section) reading state. Rows are
// upserted continuously while a learner reads and are never deleted.
type UserProgress struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	ModuleID         string    `db:"module_id" json:"module_id"`
	SectionID        string    `db:"section_id" json:"section_id"`
	TimeSpentSeconds int       `db:"time_spent_seconds" json:"time_spent_seconds"`
	Completed        bool      `db:"completed" json:"completed"`
	LastAccessed     time.Time `db:"last_accessed" json:"last_accessed"`
	// Bookmark is an opaque client-side position (serialized scroll offset).
	Bookmark string `db:"bookmark" json:"bookmark"`
}

// ModuleProgressSummary aggregates a user's progress across one module.
type ModuleProgressSummary struct {
	ModuleID          string  `db:"module_id" json:"module_id"`
	UserID            string  `db:"user_id" json:"user_id"`
	SectionsTotal     int     `db:"sections_total" json:"sections_total"`
	SectionsCompleted int     `db:"sections_completed" json:"sections_completed"`
	TimeSpentSeconds  int     `db:"time_spent_seconds" json:"time_spent_seconds"`
	PercentComplete   float64 `json:"percent_complete"`
}
