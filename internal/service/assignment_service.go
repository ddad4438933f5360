package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/modulearn/modulearn-api/internal/dto"
	"github.com/modulearn/modulearn-api/internal/models"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
)

type assignmentStore interface {
	Create(ctx context.Context, assignment *models.ModuleAssignment) error
	GetByID(ctx context.Context, id string) (*models.ModuleAssignment, error)
	Exists(ctx context.Context, moduleID, userID string) (bool, error)
	ListByModule(ctx context.Context, moduleID string) ([]models.AssignmentDetail, error)
	ListByUser(ctx context.Context, userID string) ([]models.AssignmentDetail, error)
	Delete(ctx context.Context, id string) error
}

type assignmentUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// AssignmentService links learners to modules.
type AssignmentService struct {
	assignments assignmentStore
	modules     sectionModuleStore
	users       assignmentUserStore
	logger      *zap.Logger
}

// NewAssignmentService constructs the service.
func NewAssignmentService(assignments assignmentStore, modules sectionModuleStore, users assignmentUserStore, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{assignments: assignments, modules: modules, users: users, logger: logger}
}

// Assign creates assignments for each listed user. Only completed modules can
// be assigned; users outside the org and duplicates are skipped with a count
// in the response.
func (s *AssignmentService) Assign(ctx context.Context, orgID, actorID, moduleID string, req dto.AssignRequest) ([]models.ModuleAssignment, int, error) {
	module, err := s.modules.GetByID(ctx, orgID, moduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, appErrors.ErrNotFound
		}
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	if module.Status != models.ModuleCompleted {
		return nil, 0, appErrors.ErrModuleNotReady
	}

	created := make([]models.ModuleAssignment, 0, len(req.UserIDs))
	skipped := 0
	for _, userID := range req.UserIDs {
		user, err := s.users.FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				skipped++
				continue
			}
			return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
		}
		if user.OrgID != orgID || !user.Active {
			skipped++
			continue
		}

		exists, err := s.assignments.Exists(ctx, moduleID, userID)
		if err != nil {
			return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment")
		}
		if exists {
			skipped++
			continue
		}

		assignment := &models.ModuleAssignment{
			ModuleID:   moduleID,
			UserID:     userID,
			AssignedBy: actorID,
			DueDate:    req.DueDate,
		}
		if err := s.assignments.Create(ctx, assignment); err != nil {
			return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
		}
		created = append(created, *assignment)
	}
	return created, skipped, nil
}

// ListByModule returns the assignment roster for a module.
func (s *AssignmentService) ListByModule(ctx context.Context, orgID, moduleID string) ([]models.AssignmentDetail, error) {
	if _, err := s.modules.GetByID(ctx, orgID, moduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	details, err := s.assignments.ListByModule(ctx, moduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return details, nil
}

// ListMine returns the caller's own assignments.
func (s *AssignmentService) ListMine(ctx context.Context, userID string) ([]models.AssignmentDetail, error) {
	details, err := s.assignments.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return details, nil
}

// Unassign removes an assignment after verifying org ownership through the
// module.
func (s *AssignmentService) Unassign(ctx context.Context, orgID, assignmentID string) error {
	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if _, err := s.modules.GetByID(ctx, orgID, assignment.ModuleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	if err := s.assignments.Delete(ctx, assignmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}
	return nil
}
