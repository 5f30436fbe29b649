package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"noodlebadge/internal/cache"
	"noodlebadge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func level(l models.BadgeLevel) *models.BadgeLevel { return &l }

func TestMemoryProgressRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProgressRepository()

	got, err := repo.Get(ctx, "u1", "explorer")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.Put(ctx, "u1", &models.UserBadgeProgress{
		BadgeID: "reviewer", CurrentCount: 6, AchievedLevel: level(models.LevelBronze),
	}))
	require.NoError(t, repo.Put(ctx, "u1", &models.UserBadgeProgress{BadgeID: "explorer", CurrentCount: 3}))
	require.NoError(t, repo.Put(ctx, "u2", &models.UserBadgeProgress{BadgeID: "explorer", CurrentCount: 30}))

	got, err = repo.Get(ctx, "u1", "reviewer")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 6, got.CurrentCount)
	assert.Equal(t, models.LevelBronze, *got.AchievedLevel)
	assert.False(t, got.UpdatedAt.IsZero())

	// returned records are copies
	*got.AchievedLevel = models.LevelGold
	again, _ := repo.Get(ctx, "u1", "reviewer")
	assert.Equal(t, models.LevelBronze, *again.AchievedLevel)

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "explorer", list[0].BadgeID)
	assert.Equal(t, "reviewer", list[1].BadgeID)
}

func TestMemoryProgressRepositoryFailWith(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProgressRepository()
	boom := errors.New("connection refused")

	repo.FailWith(boom)
	assert.ErrorIs(t, repo.Put(ctx, "u1", &models.UserBadgeProgress{BadgeID: "explorer"}), boom)
	_, err := repo.Get(ctx, "u1", "explorer")
	assert.ErrorIs(t, err, boom)

	repo.FailWith(nil)
	assert.NoError(t, repo.Put(ctx, "u1", &models.UserBadgeProgress{BadgeID: "explorer"}))
}

func TestMemoryProgressRepositoryFailWritesWith(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProgressRepository()
	require.NoError(t, repo.Put(ctx, "u1", &models.UserBadgeProgress{BadgeID: "explorer", CurrentCount: 3}))

	boom := errors.New("read-only replica")
	repo.FailWritesWith(boom)
	assert.ErrorIs(t, repo.Put(ctx, "u1", &models.UserBadgeProgress{BadgeID: "explorer", CurrentCount: 4}), boom)

	p, err := repo.Get(ctx, "u1", "explorer")
	require.NoError(t, err)
	assert.Equal(t, 3, p.CurrentCount)
}

func TestCachedProgressRepository(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryProgressRepository()
	c := cache.NewMemoryCache(&cache.Config{TTL: time.Minute, MaxKeys: 100}, nil)
	defer c.Close()

	repo := NewCachedProgressRepository(inner, c, time.Minute, nil)

	require.NoError(t, repo.Put(ctx, "u1", &models.UserBadgeProgress{
		BadgeID: "explorer", CurrentCount: 12, AchievedLevel: level(models.LevelBronze),
	}))

	// served from cache even when the store is down
	inner.FailWith(errors.New("down"))
	got, err := repo.Get(ctx, "u1", "explorer")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 12, got.CurrentCount)
	assert.Equal(t, models.LevelBronze, *got.AchievedLevel)

	// failed writes invalidate the cached entry
	assert.Error(t, repo.Put(ctx, "u1", &models.UserBadgeProgress{BadgeID: "explorer", CurrentCount: 13}))
	_, err = repo.Get(ctx, "u1", "explorer")
	assert.Error(t, err)

	inner.FailWith(nil)
	got, err = repo.Get(ctx, "u1", "explorer")
	require.NoError(t, err)
	assert.Equal(t, 12, got.CurrentCount)
}

func TestMemorySettingsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryNotificationSettingsRepository()

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.Upsert(ctx, &models.NotificationSettings{UserID: "u1", FCMToken: "tok", BadgeAchievements: true}))
	got, err = repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok", got.FCMToken)
	assert.True(t, got.BadgeAchievements)
}

func TestMemorySettingsRepositoryMerge(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryNotificationSettingsRepository()

	merged, err := repo.Merge(ctx, "u1", func(s *models.NotificationSettings) { s.FCMToken = "tok" })
	require.NoError(t, err)
	assert.Equal(t, "u1", merged.UserID)
	assert.Equal(t, "tok", merged.FCMToken)
	assert.True(t, merged.BadgeAchievements, "unset fields start from the defaults")

	merged, err = repo.Merge(ctx, "u1", func(s *models.NotificationSettings) { s.BadgeAchievements = false })
	require.NoError(t, err)
	assert.Equal(t, "tok", merged.FCMToken)
	assert.False(t, merged.BadgeAchievements)

	stored, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, *merged, *stored)
}

func TestMemoryCollectionWithCache(t *testing.T) {
	c := cache.NewMemoryCache(nil, nil)
	defer c.Close()

	col := NewMemoryCollection(nil, &RepositoryConfig{Cache: c, CacheTTL: time.Minute})
	_, wrapped := col.Progress.(*cachedProgressRepository)
	assert.True(t, wrapped)

	health := col.HealthCheck(context.Background())
	assert.Contains(t, health, "database")
	assert.NoError(t, col.Close())
}
