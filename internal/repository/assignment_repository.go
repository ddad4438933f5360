package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/modulearn/modulearn-api/internal/models"
)

// AssignmentRepository manages module-to-learner assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs an AssignmentRepository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create inserts an assignment. The (user_id, module_id) unique constraint
// rejects duplicates; callers map that to a conflict error.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.ModuleAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO module_assignments (id, module_id, user_id, assigned_by, due_date, completed_at, created_at)
VALUES (:id, :module_id, :user_id, :assigned_by, :due_date, :completed_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// GetByID fetches an assignment row.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*models.ModuleAssignment, error) {
	const query = `SELECT id, module_id, user_id, assigned_by, due_date, completed_at, created_at
FROM module_assignments WHERE id = $1`
	var assignment models.ModuleAssignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// Exists reports whether the user already has this module assigned.
func (r *AssignmentRepository) Exists(ctx context.Context, moduleID, userID string) (bool, error) {
	const query = `SELECT 1 FROM module_assignments WHERE module_id = $1 AND user_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, moduleID, userID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return true, nil
}

// ListByModule returns assignment details for one module.
func (r *AssignmentRepository) ListByModule(ctx context.Context, moduleID string) ([]models.AssignmentDetail, error) {
	const query = `SELECT a.id, a.module_id, a.user_id, a.assigned_by, a.due_date, a.completed_at, a.created_at,
m.title AS module_title, m.status AS module_status, u.full_name AS user_name, u.email AS user_email
FROM module_assignments a
JOIN learning_modules m ON m.id = a.module_id
JOIN users u ON u.id = a.user_id
WHERE a.module_id = $1 ORDER BY a.created_at DESC`
	var details []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &details, query, moduleID); err != nil {
		return nil, fmt.Errorf("list module assignments: %w", err)
	}
	return details, nil
}

// ListByUser returns a learner's assignments, most recent first.
func (r *AssignmentRepository) ListByUser(ctx context.Context, userID string) ([]models.AssignmentDetail, error) {
	const query = `SELECT a.id, a.module_id, a.user_id, a.assigned_by, a.due_date, a.completed_at, a.created_at,
m.title AS module_title, m.status AS module_status, u.full_name AS user_name, u.email AS user_email
FROM module_assignments a
JOIN learning_modules m ON m.id = a.module_id
JOIN users u ON u.id = a.user_id
WHERE a.user_id = $1 ORDER BY a.created_at DESC`
	var details []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &details, query, userID); err != nil {
		return nil, fmt.Errorf("list user assignments: %w", err)
	}
	return details, nil
}

// MarkCompleted stamps completion when every section is done. Idempotent:
// already-completed rows are left untouched.
func (r *AssignmentRepository) MarkCompleted(ctx context.Context, moduleID, userID string) error {
	const query = `UPDATE module_assignments SET completed_at = $1
WHERE module_id = $2 AND user_id = $3 AND completed_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), moduleID, userID); err != nil {
		return fmt.Errorf("complete assignment: %w", err)
	}
	return nil
}

// CountIncomplete returns the number of open assignments blocking module
// deletion.
func (r *AssignmentRepository) CountIncomplete(ctx context.Context, moduleID string) (int, error) {
	const query = `SELECT COUNT(*) FROM module_assignments WHERE module_id = $1 AND completed_at IS NULL`
	var total int
	if err := r.db.GetContext(ctx, &total, query, moduleID); err != nil {
		return 0, fmt.Errorf("count incomplete assignments: %w", err)
	}
	return total, nil
}

// CountOverdue counts org assignments past their due date and not completed.
func (r *AssignmentRepository) CountOverdue(ctx context.Context, orgID string) (int, error) {
	const query = `SELECT COUNT(*) FROM module_assignments a
JOIN learning_modules m ON m.id = a.module_id
WHERE m.org_id = $1 AND a.completed_at IS NULL AND a.due_date IS NOT NULL AND a.due_date < $2`
	var total int
	if err := r.db.GetContext(ctx, &total, query, orgID, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("count overdue assignments: %w", err)
	}
	return total, nil
}

// Delete removes an assignment row.
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM module_assignments WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
