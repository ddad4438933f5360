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

// OrganizationRepository manages tenancy roots.
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository constructs an OrganizationRepository.
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Create inserts a new organization on the FREE plan unless set otherwise.
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	if org.Plan == "" {
		org.Plan = models.PlanFree
	}
	if org.SubscriptionStatus == "" {
		org.SubscriptionStatus = models.SubscriptionActive
	}
	now := time.Now().UTC()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	org.UpdatedAt = now
	const query = `INSERT INTO organizations (id, name, plan, subscription_status, created_at, updated_at)
VALUES (:id, :name, :plan, :subscription_status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, org); err != nil {
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

// GetByID returns an organization by identifier.
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	const query = `SELECT id, name, plan, subscription_status, created_at, updated_at FROM organizations WHERE id = $1 LIMIT 1`
	var org models.Organization
	if err := r.db.GetContext(ctx, &org, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &org, nil
}

// UpdatePlan switches the billing tier and subscription state.
func (r *OrganizationRepository) UpdatePlan(ctx context.Context, id string, plan models.SubscriptionPlan, status models.SubscriptionStatus) error {
	const query = `UPDATE organizations SET plan = $2, subscription_status = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, plan, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update organization plan: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update organization plan: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Rename updates the display name.
func (r *OrganizationRepository) Rename(ctx context.Context, id, name string) error {
	const query = `UPDATE organizations SET name = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, name, time.Now().UTC()); err != nil {
		return fmt.Errorf("rename organization: %w", err)
	}
	return nil
}
