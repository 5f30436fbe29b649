package repositories

import (
	"context"
	"fmt"
	"time"

	"noodlebadge/internal/cache"
	"noodlebadge/internal/models"

	"go.uber.org/zap"
)

// cachedProgressRepository is a write-through read cache in front of another
// ProgressRepository. Absent records are never cached.
type cachedProgressRepository struct {
	inner  ProgressRepository
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedProgressRepository wraps inner with a cache
func NewCachedProgressRepository(inner ProgressRepository, c cache.Cache, ttl time.Duration, logger *zap.Logger) ProgressRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cachedProgressRepository{
		inner:  inner,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

func progressCacheKey(userID, badgeID string) string {
	return fmt.Sprintf("progress:%s:%s", userID, badgeID)
}

func (r *cachedProgressRepository) Get(ctx context.Context, userID, badgeID string) (*models.UserBadgeProgress, error) {
	key := progressCacheKey(userID, badgeID)

	var cached models.UserBadgeProgress
	if cache.GetJSON(ctx, r.cache, key, &cached) {
		return &cached, nil
	}

	progress, err := r.inner.Get(ctx, userID, badgeID)
	if err != nil || progress == nil {
		return progress, err
	}

	r.store(ctx, key, progress)
	return progress, nil
}

func (r *cachedProgressRepository) Put(ctx context.Context, userID string, progress *models.UserBadgeProgress) error {
	key := progressCacheKey(userID, progress.BadgeID)

	if err := r.inner.Put(ctx, userID, progress); err != nil {
		// the store may or may not have applied the write
		if delErr := r.cache.Delete(ctx, key); delErr != nil {
			r.logger.Warn("Failed to invalidate progress cache", zap.String("key", key), zap.Error(delErr))
		}
		return err
	}

	r.store(ctx, key, progress)
	return nil
}

func (r *cachedProgressRepository) ListByUser(ctx context.Context, userID string) ([]*models.UserBadgeProgress, error) {
	return r.inner.ListByUser(ctx, userID)
}

func (r *cachedProgressRepository) store(ctx context.Context, key string, progress *models.UserBadgeProgress) {
	if err := cache.SetJSON(ctx, r.cache, key, progress, r.ttl); err != nil {
		r.logger.Warn("Failed to cache progress", zap.String("key", key), zap.Error(err))
	}
}
