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

// SectionRepository manages persistence for module sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs a SectionRepository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// ListByModule returns a module's sections in display order.
func (r *SectionRepository) ListByModule(ctx context.Context, moduleID string) ([]models.ModuleSection, error) {
	const query = `SELECT id, module_id, title, content, order_index, estimated_minutes, created_at, updated_at
FROM module_sections WHERE module_id = $1 ORDER BY order_index ASC`
	var sections []models.ModuleSection
	if err := r.db.SelectContext(ctx, &sections, query, moduleID); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}

// GetByID fetches a single section.
func (r *SectionRepository) GetByID(ctx context.Context, id string) (*models.ModuleSection, error) {
	const query = `SELECT id, module_id, title, content, order_index, estimated_minutes, created_at, updated_at
FROM module_sections WHERE id = $1`
	var section models.ModuleSection
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// ReplaceAll swaps a module's sections for a fresh set in one transaction.
// Used when processing completes so a retry never leaves a mixed result.
func (r *SectionRepository) ReplaceAll(ctx context.Context, moduleID string, sections []models.ModuleSection) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace sections begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM module_sections WHERE module_id = $1", moduleID); err != nil {
		return fmt.Errorf("replace sections delete: %w", err)
	}

	now := time.Now().UTC()
	const insert = `INSERT INTO module_sections (id, module_id, title, content, order_index, estimated_minutes, created_at, updated_at)
VALUES (:id, :module_id, :title, :content, :order_index, :estimated_minutes, :created_at, :updated_at)`
	for i := range sections {
		s := &sections[i]
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		s.ModuleID = moduleID
		s.OrderIndex = i
		s.CreatedAt = now
		s.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, insert, s); err != nil {
			return fmt.Errorf("replace sections insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace sections commit: %w", err)
	}
	return nil
}

// UpdateSectionParams defines the editable section fields.
type UpdateSectionParams struct {
	Title            *string
	Content          *string
	EstimatedMinutes *int
}

// Update persists content edits for one section.
func (r *SectionRepository) Update(ctx context.Context, id string, params UpdateSectionParams) error {
	set := make([]string, 0, 4)
	args := make([]interface{}, 0, 5)
	argPos := 1

	if params.Title != nil {
		set = append(set, fmt.Sprintf("title = $%d", argPos))
		args = append(args, *params.Title)
		argPos++
	}
	if params.Content != nil {
		set = append(set, fmt.Sprintf("content = $%d", argPos))
		args = append(args, *params.Content)
		argPos++
	}
	if params.EstimatedMinutes != nil {
		set = append(set, fmt.Sprintf("estimated_minutes = $%d", argPos))
		args = append(args, *params.EstimatedMinutes)
		argPos++
	}
	if len(set) == 0 {
		return nil
	}
	set = append(set, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, time.Now().UTC())
	argPos++

	query := fmt.Sprintf("UPDATE module_sections SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Reorder rewrites order indices inside one transaction so readers never see a
// partially reordered module. orderedIDs must be a permutation of the module's
// section IDs; the caller validates that before calling.
func (r *SectionRepository) Reorder(ctx context.Context, moduleID string, orderedIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reorder sections begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	const update = `UPDATE module_sections SET order_index = $1, updated_at = $2 WHERE id = $3 AND module_id = $4`
	for idx, id := range orderedIDs {
		res, err := tx.ExecContext(ctx, update, idx, now, id, moduleID)
		if err != nil {
			return fmt.Errorf("reorder sections: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reorder sections: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("reorder sections: section %s not in module: %w", id, sql.ErrNoRows)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reorder sections commit: %w", err)
	}
	return nil
}

// CountByModule returns the number of sections in a module.
func (r *SectionRepository) CountByModule(ctx context.Context, moduleID string) (int, error) {
	const query = `SELECT COUNT(*) FROM module_sections WHERE module_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, moduleID); err != nil {
		return 0, fmt.Errorf("count sections: %w", err)
	}
	return total, nil
}
