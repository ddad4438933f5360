package models

import "time"

// ModuleAssignment obligates a user to complete a module, optionally by a
// due date. Unique per (user, module); an incomplete assignment blocks
// deletion of its module.
type ModuleAssignment struct {
	ID          string     `db:"id" json:"id"`
	ModuleID    string     `db:"module_id" json:"module_id"`
	UserID      string     `db:"user_id" json:"user_id"`
	AssignedBy  string     `db:"assigned_by" json:"assigned_by"`
	DueDate     *time.Time `db:"due_date" json:"due_date,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// AssignmentDetail joins assignment rows with module and user display data.
type AssignmentDetail struct {
	ModuleAssignment
	ModuleTitle  string       `db:"module_title" json:"module_title"`
	ModuleStatus ModuleStatus `db:"module_status" json:"module_status"`
	UserName     string       `db:"user_name" json:"user_name"`
	UserEmail    string       `db:"user_email" json:"user_email"`
}
