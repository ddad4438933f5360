package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modulearn/modulearn-api/internal/dto"
	"github.com/modulearn/modulearn-api/internal/models"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
)

type progressStoreStub struct {
	entries map[string]*models.UserProgress
	total   int
}

func newProgressStoreStub(sectionsTotal int) *progressStoreStub {
	return &progressStoreStub{entries: map[string]*models.UserProgress{}, total: sectionsTotal}
}

func (s *progressStoreStub) key(userID, sectionID string) string {
	return userID + "/" + sectionID
}

func (s *progressStoreStub) Upsert(_ context.Context, progress *models.UserProgress) error {
	existing, ok := s.entries[s.key(progress.UserID, progress.SectionID)]
	if !ok {
		clone := *progress
		s.entries[s.key(progress.UserID, progress.SectionID)] = &clone
		return nil
	}
	existing.TimeSpentSeconds += progress.TimeSpentSeconds
	existing.Completed = existing.Completed || progress.Completed
	existing.Bookmark = progress.Bookmark
	existing.LastAccessed = progress.LastAccessed
	return nil
}

func (s *progressStoreStub) ListByModule(_ context.Context, userID, moduleID string) ([]models.UserProgress, error) {
	var out []models.UserProgress
	for _, entry := range s.entries {
		if entry.UserID == userID && entry.ModuleID == moduleID {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (s *progressStoreStub) Summary(_ context.Context, userID, moduleID string) (*models.ModuleProgressSummary, error) {
	summary := &models.ModuleProgressSummary{UserID: userID, ModuleID: moduleID, SectionsTotal: s.total}
	for _, entry := range s.entries {
		if entry.UserID != userID || entry.ModuleID != moduleID {
			continue
		}
		summary.TimeSpentSeconds += entry.TimeSpentSeconds
		if entry.Completed {
			summary.SectionsCompleted++
		}
	}
	if summary.SectionsTotal > 0 {
		summary.PercentComplete = float64(summary.SectionsCompleted) / float64(summary.SectionsTotal) * 100
	}
	return summary, nil
}

type assignmentCloseStub struct {
	assigned  map[string]bool
	completed []string
}

func (s *assignmentCloseStub) Exists(_ context.Context, moduleID, userID string) (bool, error) {
	return s.assigned[moduleID+"/"+userID], nil
}

func (s *assignmentCloseStub) MarkCompleted(_ context.Context, moduleID, userID string) error {
	s.completed = append(s.completed, moduleID+"/"+userID)
	return nil
}

func progressClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "learner-1", OrgID: "org-1", Role: models.RoleLearner}
}

func newProgressServiceForTest(progress *progressStoreStub, sections *sectionCRUDStub, modules *moduleStoreStub, assignments *assignmentCloseStub) *ProgressService {
	return NewProgressService(progress, sections, modules, assignments, nil, zap.NewNop())
}

func TestProgressUpdateAccumulates(t *testing.T) {
	modules := newModuleStoreStub()
	module := seedModule(modules, models.ModuleCompleted)
	sections := newSectionCRUDStub()
	ids := sections.seed(module.ID, 2)
	progress := newProgressStoreStub(2)
	assignments := &assignmentCloseStub{assigned: map[string]bool{}}
	svc := newProgressServiceForTest(progress, sections, modules, assignments)

	first, err := svc.Update(context.Background(), progressClaims(), module.ID, ids[0], dto.UpdateProgressRequest{
		TimeSpentSeconds: 60,
		Bookmark:         "p1",
	})
	require.NoError(t, err)
	assert.Equal(t, 60, first.TimeSpentSeconds)
	assert.Zero(t, first.SectionsCompleted)

	second, err := svc.Update(context.Background(), progressClaims(), module.ID, ids[0], dto.UpdateProgressRequest{
		TimeSpentSeconds: 30,
		Completed:        true,
		Bookmark:         "p4",
	})
	require.NoError(t, err)
	assert.Equal(t, 90, second.TimeSpentSeconds)
	assert.Equal(t, 1, second.SectionsCompleted)
	assert.InDelta(t, 50.0, second.PercentComplete, 0.01)
}

func TestProgressCompletedNeverRegresses(t *testing.T) {
	modules := newModuleStoreStub()
	module := seedModule(modules, models.ModuleCompleted)
	sections := newSectionCRUDStub()
	ids := sections.seed(module.ID, 1)
	progress := newProgressStoreStub(1)
	assignments := &assignmentCloseStub{assigned: map[string]bool{}}
	svc := newProgressServiceForTest(progress, sections, modules, assignments)

	_, err := svc.Update(context.Background(), progressClaims(), module.ID, ids[0], dto.UpdateProgressRequest{Completed: true})
	require.NoError(t, err)

	summary, err := svc.Update(context.Background(), progressClaims(), module.ID, ids[0], dto.UpdateProgressRequest{Completed: false})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SectionsCompleted)
}

func TestProgressFinishingLastSectionClosesAssignment(t *testing.T) {
	modules := newModuleStoreStub()
	module := seedModule(modules, models.ModuleCompleted)
	sections := newSectionCRUDStub()
	ids := sections.seed(module.ID, 2)
	progress := newProgressStoreStub(2)
	assignments := &assignmentCloseStub{assigned: map[string]bool{module.ID + "/learner-1": true}}
	svc := newProgressServiceForTest(progress, sections, modules, assignments)

	_, err := svc.Update(context.Background(), progressClaims(), module.ID, ids[0], dto.UpdateProgressRequest{Completed: true})
	require.NoError(t, err)
	assert.Empty(t, assignments.completed)

	_, err = svc.Update(context.Background(), progressClaims(), module.ID, ids[1], dto.UpdateProgressRequest{Completed: true})
	require.NoError(t, err)
	require.Len(t, assignments.completed, 1)
	assert.Equal(t, module.ID+"/learner-1", assignments.completed[0])
}

func TestProgressUnassignedLearnerSkipsClose(t *testing.T) {
	modules := newModuleStoreStub()
	module := seedModule(modules, models.ModuleCompleted)
	sections := newSectionCRUDStub()
	ids := sections.seed(module.ID, 1)
	progress := newProgressStoreStub(1)
	assignments := &assignmentCloseStub{assigned: map[string]bool{}}
	svc := newProgressServiceForTest(progress, sections, modules, assignments)

	_, err := svc.Update(context.Background(), progressClaims(), module.ID, ids[0], dto.UpdateProgressRequest{Completed: true})
	require.NoError(t, err)
	assert.Empty(t, assignments.completed)
}

func TestProgressUpdateRequiresCompletedModule(t *testing.T) {
	modules := newModuleStoreStub()
	module := seedModule(modules, models.ModulePending)
	sections := newSectionCRUDStub()
	ids := sections.seed(module.ID, 1)
	svc := newProgressServiceForTest(newProgressStoreStub(1), sections, modules, &assignmentCloseStub{assigned: map[string]bool{}})

	_, err := svc.Update(context.Background(), progressClaims(), module.ID, ids[0], dto.UpdateProgressRequest{Completed: true})
	assert.ErrorIs(t, err, appErrors.ErrModuleNotReady)
}

func TestProgressUpdateRejectsForeignSection(t *testing.T) {
	modules := newModuleStoreStub()
	module := seedModule(modules, models.ModuleCompleted)
	other := seedModule(modules, models.ModuleCompleted)
	sections := newSectionCRUDStub()
	foreign := sections.seed(other.ID, 1)
	svc := newProgressServiceForTest(newProgressStoreStub(1), sections, modules, &assignmentCloseStub{assigned: map[string]bool{}})

	_, err := svc.Update(context.Background(), progressClaims(), module.ID, foreign[0], dto.UpdateProgressRequest{Completed: true})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
