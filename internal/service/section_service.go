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

type sectionStore interface {
	ListByModule(ctx context.Context, moduleID string) ([]models.ModuleSection, error)
	GetByID(ctx context.Context, id string) (*models.ModuleSection, error)
	Update(ctx context.Context, id string, params repository.UpdateSectionParams) error
	Reorder(ctx context.Context, moduleID string, orderedIDs []string) error
}

type sectionModuleStore interface {
	GetByID(ctx context.Context, orgID, id string) (*models.LearningModule, error)
}

// SectionService manages section content and ordering inside a module.
type SectionService struct {
	sections sectionStore
	modules  sectionModuleStore
	cache    *CacheService
	logger   *zap.Logger
}

// NewSectionService constructs the service.
func NewSectionService(sections sectionStore, modules sectionModuleStore, cache *CacheService, logger *zap.Logger) *SectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{sections: sections, modules: modules, cache: cache, logger: logger}
}

// List returns a module's sections in display order. The module must belong
// to the caller's organization and must have finished processing.
func (s *SectionService) List(ctx context.Context, orgID, moduleID string) ([]models.ModuleSection, error) {
	module, err := s.loadModule(ctx, orgID, moduleID)
	if err != nil {
		return nil, err
	}
	if module.Status != models.ModuleCompleted {
		return nil, appErrors.ErrModuleNotReady
	}
	sections, err := s.sections.ListByModule(ctx, moduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	return sections, nil
}

// Update edits one section's content fields.
func (s *SectionService) Update(ctx context.Context, orgID, moduleID, sectionID string, req dto.UpdateSectionRequest) (*models.ModuleSection, error) {
	if _, err := s.loadModule(ctx, orgID, moduleID); err != nil {
		return nil, err
	}
	section, err := s.sections.GetByID(ctx, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if section.ModuleID != moduleID {
		return nil, appErrors.ErrNotFound
	}

	err = s.sections.Update(ctx, sectionID, repository.UpdateSectionParams{
		Title:            req.Title,
		Content:          req.Content,
		EstimatedMinutes: req.EstimatedMinutes,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section")
	}

	s.cache.InvalidateModule(ctx, orgID, moduleID)
	updated, err := s.sections.GetByID(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload section")
	}
	return updated, nil
}

// Reorder applies a complete new ordering. The request must be an exact
// permutation of the module's current section IDs; anything else is rejected
// before touching the database.
func (s *SectionService) Reorder(ctx context.Context, orgID, moduleID string, req dto.ReorderSectionsRequest) ([]models.ModuleSection, error) {
	if _, err := s.loadModule(ctx, orgID, moduleID); err != nil {
		return nil, err
	}

	current, err := s.sections.ListByModule(ctx, moduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	if len(req.SectionIDs) != len(current) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "ordering must include every section exactly once")
	}
	known := make(map[string]bool, len(current))
	for _, section := range current {
		known[section.ID] = true
	}
	seen := make(map[string]bool, len(req.SectionIDs))
	for _, id := range req.SectionIDs {
		if !known[id] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown section id in ordering")
		}
		if seen[id] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate section id in ordering")
		}
		seen[id] = true
	}

	if err := s.sections.Reorder(ctx, moduleID, req.SectionIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reorder sections")
	}

	s.cache.InvalidateModule(ctx, orgID, moduleID)
	reordered, err := s.sections.ListByModule(ctx, moduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload sections")
	}
	return reordered, nil
}

func (s *SectionService) loadModule(ctx context.Context, orgID, moduleID string) (*models.LearningModule, error) {
	module, err := s.modules.GetByID(ctx, orgID, moduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	return module, nil
}
