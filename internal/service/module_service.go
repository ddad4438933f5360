package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/modulearn/modulearn-api/internal/dto"
	"github.com/modulearn/modulearn-api/internal/models"
	"github.com/modulearn/modulearn-api/internal/repository"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
)

type moduleStore interface {
	GetByID(ctx context.Context, orgID, id string) (*models.LearningModule, error)
	List(ctx context.Context, filter models.ModuleFilter) ([]models.LearningModule, int, error)
	Update(ctx context.Context, orgID, id string, params repository.UpdateModuleParams) error
	Delete(ctx context.Context, orgID, id string) error
}

type moduleSectionLister interface {
	ListByModule(ctx context.Context, moduleID string) ([]models.ModuleSection, error)
}

type moduleAssignmentCounter interface {
	CountIncomplete(ctx context.Context, moduleID string) (int, error)
}

type moduleFileRemover interface {
	Delete(key string) error
}

// ModuleDetail couples a module with its ordered sections.
type ModuleDetail struct {
	Module   *models.LearningModule `json:"module"`
	Sections []models.ModuleSection `json:"sections"`
}

// ModuleService implements module CRUD with tenant scoping.
type ModuleService struct {
	modules     moduleStore
	sections    moduleSectionLister
	assignments moduleAssignmentCounter
	files       moduleFileRemover
	cache       *CacheService
	logger      *zap.Logger
}

// NewModuleService constructs the service.
func NewModuleService(modules moduleStore, sections moduleSectionLister, assignments moduleAssignmentCounter, files moduleFileRemover, cache *CacheService, logger *zap.Logger) *ModuleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModuleService{
		modules:     modules,
		sections:    sections,
		assignments: assignments,
		files:       files,
		cache:       cache,
		logger:      logger,
	}
}

// List returns the org's modules with pagination metadata.
func (s *ModuleService) List(ctx context.Context, filter models.ModuleFilter) ([]models.LearningModule, *models.Pagination, error) {
	modules, total, err := s.modules.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list modules")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return modules, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one module with its sections, served from cache when possible.
// Sections are only attached once processing completed.
func (s *ModuleService) Get(ctx context.Context, orgID, id string) (*ModuleDetail, error) {
	key := ModuleKey(orgID, id)
	var cached ModuleDetail
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	module, err := s.modules.GetByID(ctx, orgID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}

	detail := &ModuleDetail{Module: module}
	if module.Status == models.ModuleCompleted {
		sections, err := s.sections.ListByModule(ctx, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sections")
		}
		detail.Sections = sections
	}

	_ = s.cache.Set(ctx, key, detail, 0)
	return detail, nil
}

// Update mutates module display fields.
func (s *ModuleService) Update(ctx context.Context, orgID, id string, req dto.UpdateModuleRequest) (*ModuleDetail, error) {
	err := s.modules.Update(ctx, orgID, id, repository.UpdateModuleParams{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update module")
	}

	s.cache.InvalidateModule(ctx, orgID, id)
	return s.Get(ctx, orgID, id)
}

// Delete removes a module unless learners still have open assignments on it.
// The source file is removed best-effort after the row is gone.
func (s *ModuleService) Delete(ctx context.Context, orgID, id string) error {
	module, err := s.modules.GetByID(ctx, orgID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}

	open, err := s.assignments.CountIncomplete(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count assignments")
	}
	if open > 0 {
		return appErrors.ErrModuleHasLearners
	}

	if err := s.modules.Delete(ctx, orgID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete module")
	}

	if s.files != nil && module.FileKey != "" {
		if err := s.files.Delete(module.FileKey); err != nil {
			s.logger.Sugar().Warnw("failed to remove module file", "module_id", id, "key", module.FileKey, "error", err)
		}
	}

	s.cache.InvalidateModule(ctx, orgID, id)
	return nil
}
