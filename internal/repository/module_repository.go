package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/modulearn/modulearn-api/internal/models"
)

const moduleColumns = `id, org_id, created_by, title, description, file_key, file_name, status, processed, attempt_count, error_message, started_at, finished_at, created_at, updated_at`

// ModuleRepository manages persistence for learning modules.
type ModuleRepository struct {
	db *sqlx.DB
}

// NewModuleRepository constructs a ModuleRepository.
func NewModuleRepository(db *sqlx.DB) *ModuleRepository {
	return &ModuleRepository{db: db}
}

// Create inserts a new module row with generated defaults.
func (r *ModuleRepository) Create(ctx context.Context, module *models.LearningModule) error {
	if module.ID == "" {
		module.ID = uuid.NewString()
	}
	if module.Status == "" {
		module.Status = models.ModulePending
	}
	now := time.Now().UTC()
	if module.CreatedAt.IsZero() {
		module.CreatedAt = now
	}
	module.UpdatedAt = now
	const query = `INSERT INTO learning_modules (id, org_id, created_by, title, description, file_key, file_name, status, processed, attempt_count, error_message, started_at, finished_at, created_at, updated_at)
VALUES (:id, :org_id, :created_by, :title, :description, :file_key, :file_name, :status, :processed, :attempt_count, :error_message, :started_at, :finished_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, module); err != nil {
		return fmt.Errorf("create module: %w", err)
	}
	return nil
}

// GetByID fetches a module scoped to an organization.
func (r *ModuleRepository) GetByID(ctx context.Context, orgID, id string) (*models.LearningModule, error) {
	query := fmt.Sprintf("SELECT %s FROM learning_modules WHERE id = $1 AND org_id = $2", moduleColumns)
	var module models.LearningModule
	if err := r.db.GetContext(ctx, &module, query, id, orgID); err != nil {
		return nil, err
	}
	return &module, nil
}

// GetAnyByID fetches a module without tenant scoping. Reserved for the
// processing worker, which runs outside a request context.
func (r *ModuleRepository) GetAnyByID(ctx context.Context, id string) (*models.LearningModule, error) {
	query := fmt.Sprintf("SELECT %s FROM learning_modules WHERE id = $1", moduleColumns)
	var module models.LearningModule
	if err := r.db.GetContext(ctx, &module, query, id); err != nil {
		return nil, err
	}
	return &module, nil
}

// ResetInterrupted moves modules stranded in PROCESSING back to PENDING.
// Called once at startup before recovery re-enqueues pending work.
func (r *ModuleRepository) ResetInterrupted(ctx context.Context) (int, error) {
	const query = `UPDATE learning_modules SET status = $1, updated_at = $2 WHERE status = $3`
	res, err := r.db.ExecContext(ctx, query, models.ModulePending, time.Now().UTC(), models.ModuleProcessing)
	if err != nil {
		return 0, fmt.Errorf("reset interrupted modules: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset interrupted modules: %w", err)
	}
	return int(rows), nil
}

// List returns modules matching the filter plus the unpaged total.
func (r *ModuleRepository) List(ctx context.Context, filter models.ModuleFilter) ([]models.LearningModule, int, error) {
	conditions := []string{"org_id = $1"}
	args := []interface{}{filter.OrgID}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(description) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM learning_modules WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		moduleColumns, where, size, offset)

	var modules []models.LearningModule
	if err := r.db.SelectContext(ctx, &modules, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list modules: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM learning_modules WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count modules: %w", err)
	}
	return modules, total, nil
}

// UpdateModuleParams defines the admin-editable fields.
type UpdateModuleParams struct {
	Title       *string
	Description *string
}

// Update persists metadata changes for a module.
func (r *ModuleRepository) Update(ctx context.Context, orgID, id string, params UpdateModuleParams) error {
	set := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)
	argPos := 1

	if params.Title != nil {
		set = append(set, fmt.Sprintf("title = $%d", argPos))
		args = append(args, *params.Title)
		argPos++
	}
	if params.Description != nil {
		set = append(set, fmt.Sprintf("description = $%d", argPos))
		args = append(args, *params.Description)
		argPos++
	}
	if len(set) == 0 {
		return nil
	}
	set = append(set, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, time.Now().UTC())
	argPos++

	query := fmt.Sprintf("UPDATE learning_modules SET %s WHERE id = $%d AND org_id = $%d", strings.Join(set, ", "), argPos, argPos+1)
	args = append(args, id, orgID)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update module: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TransitionStatus moves a module to next only if its current status is one of
// the allowed values, making concurrent workers race-safe. Returns
// sql.ErrNoRows when the guard did not match.
func (r *ModuleRepository) TransitionStatus(ctx context.Context, id string, next models.ModuleStatus, allowedFrom ...models.ModuleStatus) error {
	if len(allowedFrom) == 0 {
		return fmt.Errorf("transition status: no allowed source states")
	}
	placeholders := make([]string, 0, len(allowedFrom))
	args := []interface{}{next, time.Now().UTC(), id}
	for _, from := range allowedFrom {
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
		args = append(args, from)
	}
	query := fmt.Sprintf("UPDATE learning_modules SET status = $1, updated_at = $2 WHERE id = $3 AND status IN (%s)",
		strings.Join(placeholders, ", "))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition module status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition module status: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkProcessing stamps the start of a conversion attempt and bumps the
// attempt counter. PROCESSING is an allowed source state so the worker can
// re-claim a module after a retryable failure left it in flight.
func (r *ModuleRepository) MarkProcessing(ctx context.Context, id string) error {
	const query = `UPDATE learning_modules
SET status = $1, attempt_count = attempt_count + 1, started_at = $2, error_message = NULL, updated_at = $2
WHERE id = $3 AND status IN ($4, $5, $6)`
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query, models.ModuleProcessing, now, id, models.ModulePending, models.ModuleFailed, models.ModuleProcessing)
	if err != nil {
		return fmt.Errorf("mark module processing: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark module processing: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkCompleted stores the processed content and finishes the lifecycle.
func (r *ModuleRepository) MarkCompleted(ctx context.Context, id string, processed models.ProcessedContent) error {
	const query = `UPDATE learning_modules
SET status = $1, processed = $2, finished_at = $3, error_message = NULL, updated_at = $3
WHERE id = $4 AND status = $5`
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query, models.ModuleCompleted, processed, now, id, models.ModuleProcessing)
	if err != nil {
		return fmt.Errorf("mark module completed: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark module completed: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkFailed records the terminal failure message for a module.
func (r *ModuleRepository) MarkFailed(ctx context.Context, id, message string) error {
	const query = `UPDATE learning_modules
SET status = $1, error_message = $2, finished_at = $3, updated_at = $3
WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, query, models.ModuleFailed, message, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark module failed: %w", err)
	}
	return nil
}

// ListStuck finds modules left in flight, used at startup to recover work that
// was interrupted by a crash or deploy.
func (r *ModuleRepository) ListStuck(ctx context.Context, limit int) ([]models.LearningModule, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM learning_modules WHERE status IN ($1, $2) ORDER BY created_at ASC LIMIT $3", moduleColumns)
	var modules []models.LearningModule
	if err := r.db.SelectContext(ctx, &modules, query, models.ModulePending, models.ModuleProcessing, limit); err != nil {
		return nil, fmt.Errorf("list stuck modules: %w", err)
	}
	return modules, nil
}

// CountByOrg returns the module count used for plan ceiling checks.
func (r *ModuleRepository) CountByOrg(ctx context.Context, orgID string) (int, error) {
	const query = `SELECT COUNT(*) FROM learning_modules WHERE org_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, orgID); err != nil {
		return 0, fmt.Errorf("count org modules: %w", err)
	}
	return total, nil
}

// CountByStatus groups the org's modules by lifecycle state.
func (r *ModuleRepository) CountByStatus(ctx context.Context, orgID string) (map[models.ModuleStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS total FROM learning_modules WHERE org_id = $1 GROUP BY status`
	rows := []struct {
		Status models.ModuleStatus `db:"status"`
		Total  int                 `db:"total"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, orgID); err != nil {
		return nil, fmt.Errorf("count modules by status: %w", err)
	}
	out := make(map[models.ModuleStatus]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

// Delete removes a module row. Sections, assignments and progress cascade via
// foreign keys; the service layer guards against deleting assigned modules.
func (r *ModuleRepository) Delete(ctx context.Context, orgID, id string) error {
	const query = `DELETE FROM learning_modules WHERE id = $1 AND org_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, orgID)
	if err != nil {
		return fmt.Errorf("delete module: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete module: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
