package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/modulearn/modulearn-api/internal/models"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
)

type analyticsModuleStore interface {
	CountByStatus(ctx context.Context, orgID string) (map[models.ModuleStatus]int, error)
	List(ctx context.Context, filter models.ModuleFilter) ([]models.LearningModule, int, error)
}

type analyticsUserStore interface {
	CountByOrg(ctx context.Context, orgID string) (int, error)
}

type analyticsProgressStore interface {
	CountActiveLearners(ctx context.Context, orgID string, since time.Time) (int, error)
	OrgTotals(ctx context.Context, orgID string) (completedSections, timeSpentSeconds int, err error)
}

type analyticsAssignmentStore interface {
	CountOverdue(ctx context.Context, orgID string) (int, error)
}

type dailyStatsStore interface {
	Upsert(ctx context.Context, stats *models.DailyStats) error
	ListRange(ctx context.Context, from, to time.Time) ([]models.DailyStats, error)
	CollectDay(ctx context.Context, day time.Time) (*models.DailyStats, error)
}

// AnalyticsConfig tunes caching and the rollup cadence.
type AnalyticsConfig struct {
	CacheTTL      time.Duration
	StatsInterval time.Duration
}

// AnalyticsService assembles dashboard aggregates and owns the daily stats
// rollup.
type AnalyticsService struct {
	modules     analyticsModuleStore
	users       analyticsUserStore
	progress    analyticsProgressStore
	assignments analyticsAssignmentStore
	stats       dailyStatsStore
	metrics     *MetricsService
	cache       *CacheService
	logger      *zap.Logger
	cfg         AnalyticsConfig
}

// NewAnalyticsService constructs the service.
func NewAnalyticsService(modules analyticsModuleStore, users analyticsUserStore, progress analyticsProgressStore, assignments analyticsAssignmentStore, stats dailyStatsStore, metrics *MetricsService, cache *CacheService, logger *zap.Logger, cfg AnalyticsConfig) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = time.Hour
	}
	return &AnalyticsService{
		modules:     modules,
		users:       users,
		progress:    progress,
		assignments: assignments,
		stats:       stats,
		metrics:     metrics,
		cache:       cache,
		logger:      logger,
		cfg:         cfg,
	}
}

// Dashboard assembles the admin dashboard payload, cached per organization.
func (s *AnalyticsService) Dashboard(ctx context.Context, orgID string) (*models.OrgDashboard, error) {
	key := DashboardKey(orgID)
	var cached models.OrgDashboard
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	byStatus, err := s.modules.CountByStatus(ctx, orgID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count modules")
	}
	members, err := s.users.CountByOrg(ctx, orgID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count members")
	}
	activeLearners, err := s.progress.CountActiveLearners(ctx, orgID, time.Now().UTC().AddDate(0, 0, -7))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count active learners")
	}
	_, timeSpent, err := s.progress.OrgTotals(ctx, orgID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate progress")
	}
	overdue, err := s.assignments.CountOverdue(ctx, orgID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count overdue assignments")
	}
	recent, _, err := s.modules.List(ctx, models.ModuleFilter{OrgID: orgID, Page: 1, PageSize: 5})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list recent modules")
	}

	total := 0
	for _, count := range byStatus {
		total += count
	}
	var completionRate float64
	if total > 0 {
		completionRate = float64(byStatus[models.ModuleCompleted]) / float64(total)
	}

	dashboard := &models.OrgDashboard{
		ModulesByStatus:  byStatus,
		TotalMembers:     members,
		ActiveLearners7d: activeLearners,
		CompletionRate:   completionRate,
		TimeSpentSeconds: timeSpent,
		OverdueCount:     overdue,
		RecentModules:    recent,
		GeneratedAt:      time.Now().UTC(),
	}
	_ = s.cache.Set(ctx, key, dashboard, s.cfg.CacheTTL)
	return dashboard, nil
}

// SystemMetrics exposes the runtime counters snapshot.
func (s *AnalyticsService) SystemMetrics() models.SystemMetrics {
	return s.metrics.Snapshot()
}

// StatsRange returns rollup rows for the inclusive date range.
func (s *AnalyticsService) StatsRange(ctx context.Context, from, to time.Time) ([]models.DailyStats, error) {
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date range")
	}
	rows, err := s.stats.ListRange(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stats")
	}
	return rows, nil
}

// StartRollup boots a goroutine that refreshes the current day's stats row on
// an interval. It runs one rollup immediately so dashboards are not empty
// after a restart.
func (s *AnalyticsService) StartRollup(ctx context.Context) {
	go func() {
		s.rollup(ctx)
		ticker := time.NewTicker(s.cfg.StatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.rollup(ctx)
			}
		}
	}()
}

func (s *AnalyticsService) rollup(ctx context.Context) {
	stats, err := s.stats.CollectDay(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Sugar().Warnw("daily stats collection failed", "error", err)
		return
	}
	if err := s.stats.Upsert(ctx, stats); err != nil {
		s.logger.Sugar().Warnw("daily stats upsert failed", "error", err)
		return
	}
	s.logger.Sugar().Debugw("daily stats rolled up", "date", stats.StatDate.Format("2006-01-02"))
}
