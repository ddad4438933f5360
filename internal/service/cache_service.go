package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/modulearn/modulearn-api/pkg/cache"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService layers a process-local TTL cache in front of Redis. Lookups
// try memory first; writes and invalidations touch both tiers.
type CacheService struct {
	repo       CacheRepository
	local      *cache.Memory
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, local *cache.Memory, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	return &CacheService{repo: repo, local: local, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && (s.repo != nil || s.local != nil)
}

// Get attempts to retrieve a cached entry. It returns true when the cache was
// hit in either tier.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()

	if s.local != nil {
		if raw, ok := s.local.Get(ctx, key); ok {
			if err := json.Unmarshal(raw, dest); err == nil {
				if s.metrics != nil {
					s.metrics.RecordCacheOperation(true, time.Since(start))
				}
				return true, nil
			}
			s.local.Delete(ctx, key)
		}
	}

	if s.repo == nil {
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(false, time.Since(start))
		}
		return false, nil
	}

	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(false, duration)
		}
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		if s.logger != nil {
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false, err
	}
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(true, duration)
	}
	return true, nil
}

// Set stores the value in both tiers.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	if s.local != nil {
		if raw, err := json.Marshal(value); err == nil {
			s.local.Set(ctx, key, raw, ttl)
		}
	}

	if s.repo == nil {
		return nil
	}
	if err := s.repo.Set(ctx, key, value, ttl); err != nil {
		if s.logger != nil {
			s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
		return err
	}
	return nil
}

// Invalidate removes cached values for the provided key prefix.
func (s *CacheService) Invalidate(ctx context.Context, prefix string) error {
	if !s.Enabled() {
		return nil
	}
	if s.local != nil {
		s.local.DeletePrefix(ctx, prefix)
	}
	if s.repo == nil {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, prefix+"*"); err != nil {
		if s.logger != nil {
			s.logger.Warn("cache invalidate failed", zap.String("prefix", prefix), zap.Error(err))
		}
		return err
	}
	return nil
}

// Cache key builders. Keys nest org → module so invalidation can target a
// single module or a whole tenant with one prefix.

// ModuleKey caches a module detail payload.
func ModuleKey(orgID, moduleID string) string {
	return fmt.Sprintf("org:%s:module:%s", orgID, moduleID)
}

// DashboardKey caches the admin dashboard payload.
func DashboardKey(orgID string) string {
	return fmt.Sprintf("org:%s:dashboard", orgID)
}

// ProgressKey caches a learner's module progress summary.
func ProgressKey(userID, moduleID string) string {
	return fmt.Sprintf("progress:%s:%s", userID, moduleID)
}

// InvalidateModule drops module detail and org dashboard entries after any
// module mutation.
func (s *CacheService) InvalidateModule(ctx context.Context, orgID, moduleID string) {
	if !s.Enabled() {
		return
	}
	_ = s.Invalidate(ctx, ModuleKey(orgID, moduleID))
	_ = s.Invalidate(ctx, DashboardKey(orgID))
}

// InvalidateProgress drops a learner's cached summary for one module.
func (s *CacheService) InvalidateProgress(ctx context.Context, userID, moduleID string) {
	if !s.Enabled() {
		return
	}
	_ = s.Invalidate(ctx, ProgressKey(userID, moduleID))
}
