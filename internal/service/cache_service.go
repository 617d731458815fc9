package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/edu-enrollment-api/pkg/errors"
)

const (
	rankingCohortPrefix     = "ranking:cohort:"
	rankingGenerationPrefix = "ranking:gen:"
)

// RankingCacheKey returns the cache key holding the ranked cohort of a course.
func RankingCacheKey(courseID string) string {
	return rankingCohortPrefix + courseID
}

// RankingGenerationKey returns the key of the counter bumped on every change to a cohort.
func RankingGenerationKey(courseID string) string {
	return rankingGenerationPrefix + courseID
}

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// CacheService fronts the ranking cache and reports lookups to metrics.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.repo.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Generation returns the current change counter of a cohort. A course never changed reads as zero.
func (s *CacheService) Generation(ctx context.Context, courseID string) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	var generation int64
	if err := s.repo.Get(ctx, RankingGenerationKey(courseID), &generation); err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return 0, nil
		}
		return 0, err
	}
	return generation, nil
}

// InvalidateCourse bumps the cohort generation and drops the cached ranking of a course.
// Entries written under an older generation are never served again.
func (s *CacheService) InvalidateCourse(ctx context.Context, courseID string) error {
	if !s.Enabled() {
		return nil
	}
	var firstErr error
	if _, err := s.repo.Incr(ctx, RankingGenerationKey(courseID)); err != nil {
		s.logger.Warn("cache generation bump failed", zap.String("course_id", courseID), zap.Error(err))
		firstErr = err
	}
	key := RankingCacheKey(courseID)
	if err := s.repo.Delete(ctx, key); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("key", key), zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Flush removes every cached ranking. Generation counters are kept so they only grow.
func (s *CacheService) Flush(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPrefix(ctx, rankingCohortPrefix); err != nil {
		s.logger.Warn("cache flush failed", zap.Error(err))
		return err
	}
	return nil
}
