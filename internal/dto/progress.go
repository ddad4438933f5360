package dto

// UpdateProgressRequest upserts reading state for one section.
type UpdateProgressRequest struct {
	TimeSpentSeconds int    `json:"time_spent_seconds" binding:"min=0"`
	Completed        bool   `json:"completed"`
	Bookmark         string `json:"bookmark" binding:"max=1024"`
}
