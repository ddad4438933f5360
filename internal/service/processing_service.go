package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/modulearn/modulearn-api/internal/docling"
	"github.com/modulearn/modulearn-api/internal/dto"
	"github.com/modulearn/modulearn-api/internal/models"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
	"github.com/modulearn/modulearn-api/pkg/jobs"
	"github.com/modulearn/modulearn-api/pkg/ratelimit"
)

const jobTypeModuleProcessing = "module_processing"

type processingModuleStore interface {
	GetByID(ctx context.Context, orgID, id string) (*models.LearningModule, error)
	GetAnyByID(ctx context.Context, id string) (*models.LearningModule, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, processed models.ProcessedContent) error
	MarkFailed(ctx context.Context, id, message string) error
	ResetInterrupted(ctx context.Context) (int, error)
	ListStuck(ctx context.Context, limit int) ([]models.LearningModule, error)
}

type processingSectionStore interface {
	ReplaceAll(ctx context.Context, moduleID string, sections []models.ModuleSection) error
}

type documentProcessor interface {
	Process(ctx context.Context, data []byte, filename string, opts docling.Options) (*docling.Result, error)
}

type fileReader interface {
	Read(key string) ([]byte, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type actionLimiter interface {
	Check(subject string, action ratelimit.Action) error
}

type jobObserver interface {
	ObserveJob(duration time.Duration, failed bool)
}

type alertRecorder interface {
	Record(level, component, message string)
}

type readyNotifier interface {
	SendModuleReady(to, moduleTitle, moduleURL string) error
}

type notifyUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ProcessingConfig tunes the conversion pipeline.
type ProcessingConfig struct {
	MaxRetries int
	Docling    docling.Options
	ModuleURL  string
}

// ProcessingService drives the PDF-to-module conversion lifecycle. The HTTP
// side enqueues and polls; the worker side (Handle) runs conversions and owns
// every status transition past PENDING.
type ProcessingService struct {
	modules   processingModuleStore
	sections  processingSectionStore
	processor documentProcessor
	files     fileReader
	queue     jobDispatcher
	limiter   actionLimiter
	metrics   jobObserver
	alerts    alertRecorder
	notifier  readyNotifier
	users     notifyUserStore
	cache     *CacheService
	logger    *zap.Logger
	cfg       ProcessingConfig
}

// ProcessingServiceParams collects the service dependencies.
type ProcessingServiceParams struct {
	Modules   processingModuleStore
	Sections  processingSectionStore
	Processor documentProcessor
	Files     fileReader
	Queue     jobDispatcher
	Limiter   actionLimiter
	Metrics   jobObserver
	Alerts    alertRecorder
	Notifier  readyNotifier
	Users     notifyUserStore
	Cache     *CacheService
	Logger    *zap.Logger
	Config    ProcessingConfig
}

// NewProcessingService constructs the service.
func NewProcessingService(params ProcessingServiceParams) *ProcessingService {
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Config.MaxRetries <= 0 {
		params.Config.MaxRetries = 3
	}
	return &ProcessingService{
		modules:   params.Modules,
		sections:  params.Sections,
		processor: params.Processor,
		files:     params.Files,
		queue:     params.Queue,
		limiter:   params.Limiter,
		metrics:   params.Metrics,
		alerts:    params.Alerts,
		notifier:  params.Notifier,
		users:     params.Users,
		cache:     params.Cache,
		logger:    params.Logger,
		cfg:       params.Config,
	}
}

// Enqueue schedules a module for conversion.
func (s *ProcessingService) Enqueue(moduleID string) error {
	if err := s.queue.Enqueue(jobs.Job{ID: moduleID, Type: jobTypeModuleProcessing}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue processing job")
	}
	return nil
}

// GetStatus returns the polling payload for a module's conversion.
func (s *ProcessingService) GetStatus(ctx context.Context, orgID, moduleID string) (*dto.ProcessingStatusResponse, error) {
	module, err := s.modules.GetByID(ctx, orgID, moduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}

	resp := &dto.ProcessingStatusResponse{
		ModuleID: module.ID,
		Status:   string(module.Status),
	}
	switch module.Status {
	case models.ModulePending:
		resp.Progress = 0
		resp.Message = "queued for processing"
	case models.ModuleProcessing:
		resp.Progress = 50
		resp.Message = "converting document"
	case models.ModuleCompleted:
		resp.Progress = 100
		resp.Message = "ready"
	case models.ModuleFailed:
		resp.Progress = 100
		resp.Message = "processing failed"
		if module.ErrorMessage != nil {
			resp.Error = *module.ErrorMessage
		}
	}
	return resp, nil
}

// Retry re-queues a failed module. Rate limited per actor so a stuck document
// cannot be hammered through the pipeline.
func (s *ProcessingService) Retry(ctx context.Context, orgID, moduleID, actorID string) error {
	if s.limiter != nil {
		if err := s.limiter.Check(actorID, ratelimit.ActionPDFProcessing); err != nil {
			return err
		}
	}

	module, err := s.modules.GetByID(ctx, orgID, moduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	if module.Status != models.ModuleFailed {
		return appErrors.Clone(appErrors.ErrConflict, "only failed modules can be retried")
	}
	if module.AttemptCount >= s.cfg.MaxRetries {
		return appErrors.Clone(appErrors.ErrConflict, "processing attempts exhausted for this module")
	}
	return s.Enqueue(module.ID)
}

// RecoverInterrupted replays work stranded by a crash or deploy: modules stuck
// in PROCESSING fall back to PENDING and everything pending is re-enqueued.
func (s *ProcessingService) RecoverInterrupted(ctx context.Context) {
	reset, err := s.modules.ResetInterrupted(ctx)
	if err != nil {
		s.logger.Sugar().Warnw("failed to reset interrupted modules", "error", err)
	} else if reset > 0 {
		s.logger.Sugar().Infow("reset interrupted modules", "count", reset)
	}

	stuck, err := s.modules.ListStuck(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to list pending modules", "error", err)
		return
	}
	for _, module := range stuck {
		if err := s.Enqueue(module.ID); err != nil {
			s.logger.Sugar().Warnw("failed to requeue module", "module_id", module.ID, "error", err)
		}
	}
}

// Handle processes one queue job. Returning an error makes the queue retry
// with backoff; terminal failures are persisted here and return nil so the
// queue drops the job.
func (s *ProcessingService) Handle(ctx context.Context, job jobs.Job) error {
	module, err := s.modules.GetAnyByID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Sugar().Warnw("processing job for missing module", "module_id", job.ID)
			return nil
		}
		return err
	}

	// Duplicate deliveries are no-ops.
	if module.Status == models.ModuleCompleted {
		return nil
	}

	// Attempts already burned before this delivery, read before
	// MarkProcessing bumps the counter.
	priorAttempts := module.AttemptCount

	if err := s.modules.MarkProcessing(ctx, module.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Sugar().Infow("module not eligible for processing", "module_id", module.ID, "status", module.Status)
			return nil
		}
		return err
	}

	start := time.Now()
	result, procErr := s.convert(ctx, module)
	elapsed := time.Since(start)

	if procErr != nil {
		return s.handleFailure(ctx, module, job, priorAttempts, procErr, elapsed)
	}

	processed := models.ProcessedContent{
		Markdown: result.Markdown,
		Metadata: result.Metadata,
	}
	sections := make([]models.ModuleSection, 0, len(result.Sections))
	for _, section := range result.Sections {
		sections = append(sections, models.ModuleSection{
			Title:            section.Title,
			Content:          section.Content,
			EstimatedMinutes: section.EstimatedMinutes,
		})
	}

	if err := s.sections.ReplaceAll(ctx, module.ID, sections); err != nil {
		return s.handleFailure(ctx, module, job, priorAttempts, fmt.Errorf("store sections: %w", err), elapsed)
	}
	if err := s.modules.MarkCompleted(ctx, module.ID, processed); err != nil {
		return s.handleFailure(ctx, module, job, priorAttempts, fmt.Errorf("mark completed: %w", err), elapsed)
	}

	if s.metrics != nil {
		s.metrics.ObserveJob(elapsed, false)
	}
	s.invalidateCaches(ctx, module)
	s.notifyReady(ctx, module)

	s.logger.Sugar().Infow("module processed",
		"module_id", module.ID,
		"sections", len(sections),
		"attempt", job.Attempt+1,
		"duration", elapsed)
	return nil
}

func (s *ProcessingService) convert(ctx context.Context, module *models.LearningModule) (*docling.Result, error) {
	data, err := s.files.Read(module.FileKey)
	if err != nil {
		return nil, appErrors.NewProcessingError("source file unavailable", false, err)
	}
	return s.processor.Process(ctx, data, module.FileName, s.cfg.Docling)
}

func (s *ProcessingService) handleFailure(ctx context.Context, module *models.LearningModule, job jobs.Job, priorAttempts int, cause error, elapsed time.Duration) error {
	if s.metrics != nil {
		s.metrics.ObserveJob(elapsed, true)
	}

	var procErr *appErrors.ProcessingError
	retryable := true
	if errors.As(cause, &procErr) {
		retryable = procErr.Retryable
	}
	// The budget covers the module, not the delivery: a job enqueued fresh
	// by Retry still counts the attempts persisted on the row.
	attempt := job.Attempt + 1
	if priorAttempts+1 > attempt {
		attempt = priorAttempts + 1
	}
	budgetSpent := attempt >= s.cfg.MaxRetries

	if retryable && !budgetSpent {
		s.logger.Sugar().Warnw("module processing failed, will retry",
			"module_id", module.ID, "attempt", attempt, "error", cause)
		return cause
	}

	message := cause.Error()
	if procErr != nil {
		message = procErr.Message
	}
	if err := s.modules.MarkFailed(ctx, module.ID, message); err != nil {
		// Losing the FAILED write leaves the module lying about its state,
		// which operators must know about immediately.
		s.logger.Sugar().Errorw("CRITICAL: failed to persist module failure",
			"module_id", module.ID, "cause", message, "error", err)
		if s.alerts != nil {
			s.alerts.Record("critical", "processing",
				fmt.Sprintf("module %s failed and the failure could not be persisted: %v", module.ID, err))
		}
		return err
	}

	s.invalidateCaches(ctx, module)
	s.logger.Sugar().Errorw("module processing failed terminally",
		"module_id", module.ID, "attempts", attempt, "error", cause)
	return nil
}

func (s *ProcessingService) invalidateCaches(ctx context.Context, module *models.LearningModule) {
	if s.cache == nil {
		return
	}
	s.cache.InvalidateModule(ctx, module.OrgID, module.ID)
}

func (s *ProcessingService) notifyReady(ctx context.Context, module *models.LearningModule) {
	if s.notifier == nil || s.users == nil {
		return
	}
	creator, err := s.users.FindByID(ctx, module.CreatedBy)
	if err != nil {
		s.logger.Sugar().Warnw("failed to load module creator for notification", "module_id", module.ID, "error", err)
		return
	}
	moduleURL := fmt.Sprintf("%s/%s", s.cfg.ModuleURL, module.ID)
	if err := s.notifier.SendModuleReady(creator.Email, module.Title, moduleURL); err != nil {
		s.logger.Sugar().Warnw("failed to send module ready mail", "module_id", module.ID, "error", err)
	}
}
