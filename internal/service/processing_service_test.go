package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modulearn/modulearn-api/internal/docling"
	"github.com/modulearn/modulearn-api/internal/models"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
	"github.com/modulearn/modulearn-api/pkg/jobs"
)

type moduleStoreStub struct {
	modules    map[string]*models.LearningModule
	failedMsgs map[string]string
	markFailed error
}

func newModuleStoreStub() *moduleStoreStub {
	return &moduleStoreStub{modules: map[string]*models.LearningModule{}, failedMsgs: map[string]string{}}
}

func (s *moduleStoreStub) GetByID(_ context.Context, orgID, id string) (*models.LearningModule, error) {
	module, ok := s.modules[id]
	if !ok || module.OrgID != orgID {
		return nil, sql.ErrNoRows
	}
	return module, nil
}

func (s *moduleStoreStub) GetAnyByID(_ context.Context, id string) (*models.LearningModule, error) {
	module, ok := s.modules[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return module, nil
}

func (s *moduleStoreStub) MarkProcessing(_ context.Context, id string) error {
	module, ok := s.modules[id]
	if !ok {
		return sql.ErrNoRows
	}
	if module.Status == models.ModuleCompleted {
		return sql.ErrNoRows
	}
	module.Status = models.ModuleProcessing
	module.AttemptCount++
	return nil
}

func (s *moduleStoreStub) MarkCompleted(_ context.Context, id string, processed models.ProcessedContent) error {
	module, ok := s.modules[id]
	if !ok || module.Status != models.ModuleProcessing {
		return sql.ErrNoRows
	}
	module.Status = models.ModuleCompleted
	module.Processed = processed
	return nil
}

func (s *moduleStoreStub) MarkFailed(_ context.Context, id, message string) error {
	if s.markFailed != nil {
		return s.markFailed
	}
	module, ok := s.modules[id]
	if !ok {
		return sql.ErrNoRows
	}
	module.Status = models.ModuleFailed
	module.ErrorMessage = &message
	s.failedMsgs[id] = message
	return nil
}

func (s *moduleStoreStub) ResetInterrupted(_ context.Context) (int, error) {
	count := 0
	for _, module := range s.modules {
		if module.Status == models.ModuleProcessing {
			module.Status = models.ModulePending
			count++
		}
	}
	return count, nil
}

func (s *moduleStoreStub) ListStuck(_ context.Context, _ int) ([]models.LearningModule, error) {
	var out []models.LearningModule
	for _, module := range s.modules {
		if module.Status == models.ModulePending {
			out = append(out, *module)
		}
	}
	return out, nil
}

type sectionStoreStub struct {
	stored map[string][]models.ModuleSection
	err    error
}

func (s *sectionStoreStub) ReplaceAll(_ context.Context, moduleID string, sections []models.ModuleSection) error {
	if s.err != nil {
		return s.err
	}
	if s.stored == nil {
		s.stored = map[string][]models.ModuleSection{}
	}
	s.stored[moduleID] = sections
	return nil
}

type processorStub struct {
	result *docling.Result
	err    error
	calls  int
}

func (p *processorStub) Process(context.Context, []byte, string, docling.Options) (*docling.Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

type fileReaderStub struct {
	data map[string][]byte
}

func (f fileReaderStub) Read(key string) ([]byte, error) {
	data, ok := f.data[key]
	if !ok {
		return nil, errors.New("missing file")
	}
	return data, nil
}

type enqueueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *enqueueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type alertStub struct {
	alerts []string
}

func (a *alertStub) Record(level, component, message string) {
	a.alerts = append(a.alerts, level+":"+component)
}

func seedModule(store *moduleStoreStub, status models.ModuleStatus) *models.LearningModule {
	module := &models.LearningModule{
		ID:        uuid.NewString(),
		OrgID:     "org-1",
		CreatedBy: "user-1",
		Title:     "Handbook",
		FileKey:   "org-1/file.pdf",
		FileName:  "handbook.pdf",
		Status:    status,
	}
	store.modules[module.ID] = module
	return module
}

func newProcessingServiceForTest(store *moduleStoreStub, sections *sectionStoreStub, processor *processorStub, queue *enqueueStub, alerts *alertStub) *ProcessingService {
	return NewProcessingService(ProcessingServiceParams{
		Modules:   store,
		Sections:  sections,
		Processor: processor,
		Files:     fileReaderStub{data: map[string][]byte{"org-1/file.pdf": []byte("%PDF")}},
		Queue:     queue,
		Alerts:    alerts,
		Logger:    zap.NewNop(),
		Config:    ProcessingConfig{MaxRetries: 3},
	})
}

func TestProcessingHandleSuccess(t *testing.T) {
	store := newModuleStoreStub()
	module := seedModule(store, models.ModulePending)
	sections := &sectionStoreStub{}
	processor := &processorStub{result: &docling.Result{
		Markdown: "# Handbook",
		Sections: []docling.Section{
			{Title: "Intro", Content: "Hello", OrderIndex: 0, EstimatedMinutes: 2},
			{Title: "Rules", Content: "World", OrderIndex: 1, EstimatedMinutes: 4},
		},
		Metadata: models.DocumentMetadata{PageCount: 10},
	}}
	svc := newProcessingServiceForTest(store, sections, processor, &enqueueStub{}, nil)

	err := svc.Handle(context.Background(), jobs.Job{ID: module.ID})
	require.NoError(t, err)
	assert.Equal(t, models.ModuleCompleted, module.Status)
	assert.Equal(t, "# Handbook", module.Processed.Markdown)
	assert.Len(t, sections.stored[module.ID], 2)
	assert.Equal(t, 1, module.AttemptCount)
}

func TestProcessingHandleCompletedIsNoOp(t *testing.T) {
	store := newModuleStoreStub()
	module := seedModule(store, models.ModuleCompleted)
	processor := &processorStub{}
	svc := newProcessingServiceForTest(store, &sectionStoreStub{}, processor, &enqueueStub{}, nil)

	err := svc.Handle(context.Background(), jobs.Job{ID: module.ID})
	require.NoError(t, err)
	assert.Zero(t, processor.calls)
	assert.Equal(t, models.ModuleCompleted, module.Status)
}

func TestProcessingHandleRetryableFailurePropagates(t *testing.T) {
	store := newModuleStoreStub()
	module := seedModule(store, models.ModulePending)
	processor := &processorStub{err: appErrors.NewProcessingError("converter timed out", true, nil)}
	svc := newProcessingServiceForTest(store, &sectionStoreStub{}, processor, &enqueueStub{}, nil)

	err := svc.Handle(context.Background(), jobs.Job{ID: module.ID, Attempt: 0})
	require.Error(t, err)
	// Still in flight so the queue retry can pick it up again.
	assert.Equal(t, models.ModuleProcessing, module.Status)
}

func TestProcessingHandleRedeliveryAfterRetryableFailure(t *testing.T) {
	store := newModuleStoreStub()
	module := seedModule(store, models.ModulePending)
	processor := &processorStub{err: appErrors.NewProcessingError("converter timed out", true, nil)}
	sections := &sectionStoreStub{}
	svc := newProcessingServiceForTest(store, sections, processor, &enqueueStub{}, nil)

	// First delivery fails retryably and leaves the module in flight.
	err := svc.Handle(context.Background(), jobs.Job{ID: module.ID, Attempt: 0})
	require.Error(t, err)
	assert.Equal(t, models.ModuleProcessing, module.Status)

	// The queue redelivers; the worker must re-claim the in-flight row and
	// finish the conversion, not drop the job.
	processor.err = nil
	processor.result = &docling.Result{
		Markdown: "# Handbook",
		Sections: []docling.Section{{Title: "Intro", Content: "Hello", EstimatedMinutes: 2}},
	}
	err = svc.Handle(context.Background(), jobs.Job{ID: module.ID, Attempt: 1})
	require.NoError(t, err)
	assert.Equal(t, models.ModuleCompleted, module.Status)
	assert.Equal(t, 2, processor.calls)
	assert.Equal(t, 2, module.AttemptCount)
}

func TestProcessingHandleNonRetryableFailsTerminally(t *testing.T) {
	store := newModuleStoreStub()
	module := seedModule(store, models.ModulePending)
	processor := &processorStub{err: appErrors.NewProcessingError("corrupt document", false, nil)}
	svc := newProcessingServiceForTest(store, &sectionStoreStub{}, processor, &enqueueStub{}, nil)

	err := svc.Handle(context.Background(), jobs.Job{ID: module.ID})
	require.NoError(t, err)
	assert.Equal(t, models.ModuleFailed, module.Status)
	require.NotNil(t, module.ErrorMessage)
	assert.Equal(t, "corrupt document", *module.ErrorMessage)
}

func TestProcessingHandleBudgetSpentFailsTerminally(t *testing.T) {
	store := newModuleStoreStub()
	module := seedModule(store, models.ModuleFailed)
	processor := &processorStub{err: appErrors.NewProcessingError("flaky converter", true, nil)}
	svc := newProcessingServiceForTest(store, &sectionStoreStub{}, processor, &enqueueStub{}, nil)

	err := svc.Handle(context.Background(), jobs.Job{ID: module.ID, Attempt: 2})
	require.NoError(t, err)
	assert.Equal(t, models.ModuleFailed, module.Status)
}

func TestProcessingHandleFailedWriteRaisesAlert(t *testing.T) {
	store := newModuleStoreStub()
	module := seedModule(store, models.ModulePending)
	store.markFailed = errors.New("db down")
	processor := &processorStub{err: appErrors.NewProcessingError("corrupt document", false, nil)}
	alerts := &alertStub{}
	svc := newProcessingServiceForTest(store, &sectionStoreStub{}, processor, &enqueueStub{}, alerts)

	err := svc.Handle(context.Background(), jobs.Job{ID: module.ID})
	require.Error(t, err)
	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, "critical:processing", alerts.alerts[0])
}

func TestProcessingRecoverInterrupted(t *testing.T) {
	store := newModuleStoreStub()
	inflight := seedModule(store, models.ModuleProcessing)
	pending := seedModule(store, models.ModulePending)
	queue := &enqueueStub{}
	svc := newProcessingServiceForTest(store, &sectionStoreStub{}, &processorStub{}, queue, nil)

	svc.RecoverInterrupted(context.Background())

	assert.Equal(t, models.ModulePending, inflight.Status)
	ids := map[string]bool{}
	for _, job := range queue.jobs {
		ids[job.ID] = true
	}
	assert.True(t, ids[inflight.ID])
	assert.True(t, ids[pending.ID])
}

func TestProcessingRetryOnlyFailedModules(t *testing.T) {
	store := newModuleStoreStub()
	module := seedModule(store, models.ModuleCompleted)
	queue := &enqueueStub{}
	svc := newProcessingServiceForTest(store, &sectionStoreStub{}, &processorStub{}, queue, nil)

	err := svc.Retry(context.Background(), "org-1", module.ID, "user-1")
	require.Error(t, err)
	assert.Empty(t, queue.jobs)

	module.Status = models.ModuleFailed
	require.NoError(t, svc.Retry(context.Background(), "org-1", module.ID, "user-1"))
	assert.Len(t, queue.jobs, 1)
}

func TestProcessingRetryStopsAtPersistedBudget(t *testing.T) {
	store := newModuleStoreStub()
	module := seedModule(store, models.ModuleFailed)
	module.AttemptCount = 5
	queue := &enqueueStub{}
	svc := newProcessingServiceForTest(store, &sectionStoreStub{}, &processorStub{}, queue, nil)

	err := svc.Retry(context.Background(), "org-1", module.ID, "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Empty(t, queue.jobs)
	assert.Equal(t, 5, module.AttemptCount)
}

func TestProcessingHandleCountsPersistedAttempts(t *testing.T) {
	store := newModuleStoreStub()
	module := seedModule(store, models.ModuleFailed)
	module.AttemptCount = 2
	processor := &processorStub{err: appErrors.NewProcessingError("flaky converter", true, nil)}
	svc := newProcessingServiceForTest(store, &sectionStoreStub{}, processor, &enqueueStub{}, nil)

	// A fresh delivery cannot reopen the budget the row already spent.
	err := svc.Handle(context.Background(), jobs.Job{ID: module.ID, Attempt: 0})
	require.NoError(t, err)
	assert.Equal(t, models.ModuleFailed, module.Status)
}

func TestProcessingGetStatusShape(t *testing.T) {
	store := newModuleStoreStub()
	module := seedModule(store, models.ModuleFailed)
	msg := "corrupt document"
	module.ErrorMessage = &msg
	svc := newProcessingServiceForTest(store, &sectionStoreStub{}, &processorStub{}, &enqueueStub{}, nil)

	resp, err := svc.GetStatus(context.Background(), "org-1", module.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.ModuleFailed), resp.Status)
	assert.Equal(t, 100, resp.Progress)
	assert.Equal(t, "corrupt document", resp.Error)

	_, err = svc.GetStatus(context.Background(), "org-2", module.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
