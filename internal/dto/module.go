package dto

import "time"

// UpdateModuleRequest mutates module display fields.
type UpdateModuleRequest struct {
	Title       *string `json:"title,omitempty" binding:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty" binding:"omitempty,max=2000"`
}

// UpdateSectionRequest mutates one section's editable fields.
type UpdateSectionRequest struct {
	Title            *string `json:"title,omitempty" binding:"omitempty,min=1,max=200"`
	Content          *string `json:"content,omitempty"`
	EstimatedMinutes *int    `json:"estimated_minutes,omitempty" binding:"omitempty,min=1"`
}

// ReorderSectionsRequest supplies the complete new ordering: section IDs in
// their target order. Partial lists are rejected.
type ReorderSectionsRequest struct {
	SectionIDs []string `json:"section_ids" binding:"required,min=1"`
}

// AssignRequest creates assignments for one module.
type AssignRequest struct {
	UserIDs []string   `json:"user_ids" binding:"required,min=1"`
	DueDate *time.Time `json:"due_date,omitempty"`
}
