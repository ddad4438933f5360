package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/modulearn/modulearn-api/internal/dto"
	"github.com/modulearn/modulearn-api/internal/models"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
)

type progressStore interface {
	Upsert(ctx context.Context, progress *models.UserProgress) error
	ListByModule(ctx context.Context, userID, moduleID string) ([]models.UserProgress, error)
	Summary(ctx context.Context, userID, moduleID string) (*models.ModuleProgressSummary, error)
}

type progressSectionStore interface {
	GetByID(ctx context.Context, id string) (*models.ModuleSection, error)
}

type progressAssignmentStore interface {
	Exists(ctx context.Context, moduleID, userID string) (bool, error)
	MarkCompleted(ctx context.Context, moduleID, userID string) error
}

// ProgressService records learner reading state. Progress rows accumulate and
// never regress; finishing the last section closes the learner's assignment.
type ProgressService struct {
	progress    progressStore
	sections    progressSectionStore
	modules     sectionModuleStore
	assignments progressAssignmentStore
	cache       *CacheService
	logger      *zap.Logger
}

// NewProgressService constructs the service.
func NewProgressService(progress progressStore, sections progressSectionStore, modules sectionModuleStore, assignments progressAssignmentStore, cache *CacheService, logger *zap.Logger) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{
		progress:    progress,
		sections:    sections,
		modules:     modules,
		assignments: assignments,
		cache:       cache,
		logger:      logger,
	}
}

// Update upserts reading state for one section and returns the refreshed
// module summary.
func (s *ProgressService) Update(ctx context.Context, claims *models.JWTClaims, moduleID, sectionID string, req dto.UpdateProgressRequest) (*models.ModuleProgressSummary, error) {
	module, err := s.modules.GetByID(ctx, claims.OrgID, moduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	if module.Status != models.ModuleCompleted {
		return nil, appErrors.ErrModuleNotReady
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

	entry := &models.UserProgress{
		UserID:           claims.UserID,
		ModuleID:         moduleID,
		SectionID:        sectionID,
		TimeSpentSeconds: req.TimeSpentSeconds,
		Completed:        req.Completed,
		Bookmark:         req.Bookmark,
		LastAccessed:     time.Now().UTC(),
	}
	if err := s.progress.Upsert(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record progress")
	}

	s.cache.InvalidateProgress(ctx, claims.UserID, moduleID)

	summary, err := s.progress.Summary(ctx, claims.UserID, moduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress summary")
	}

	if summary.SectionsTotal > 0 && summary.SectionsCompleted == summary.SectionsTotal {
		s.closeAssignment(ctx, moduleID, claims.UserID)
	}
	return summary, nil
}

// Summary returns the caller's aggregated progress for one module, served
// from cache when fresh.
func (s *ProgressService) Summary(ctx context.Context, claims *models.JWTClaims, moduleID string) (*models.ModuleProgressSummary, error) {
	key := ProgressKey(claims.UserID, moduleID)
	var cached models.ModuleProgressSummary
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	if _, err := s.modules.GetByID(ctx, claims.OrgID, moduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}

	summary, err := s.progress.Summary(ctx, claims.UserID, moduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress summary")
	}
	_ = s.cache.Set(ctx, key, summary, time.Minute)
	return summary, nil
}

// Detail lists the caller's per-section progress rows for one module.
func (s *ProgressService) Detail(ctx context.Context, claims *models.JWTClaims, moduleID string) ([]models.UserProgress, error) {
	if _, err := s.modules.GetByID(ctx, claims.OrgID, moduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	rows, err := s.progress.ListByModule(ctx, claims.UserID, moduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list progress")
	}
	return rows, nil
}

func (s *ProgressService) closeAssignment(ctx context.Context, moduleID, userID string) {
	assigned, err := s.assignments.Exists(ctx, moduleID, userID)
	if err != nil {
		s.logger.Sugar().Warnw("failed to check assignment on completion", "module_id", moduleID, "user_id", userID, "error", err)
		return
	}
	if !assigned {
		return
	}
	if err := s.assignments.MarkCompleted(ctx, moduleID, userID); err != nil {
		s.logger.Sugar().Warnw("failed to close completed assignment", "module_id", moduleID, "user_id", userID, "error", err)
	}
}
