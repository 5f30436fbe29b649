// file: internal/repositories/interfaces.go
package repositories

import (
	"context"

	"noodlebadge/internal/models"
)

// ===============================
// CORE REPOSITORY INTERFACES
// ===============================

// ProgressRepository persists per-user badge progress. Get returns (nil, nil)
// when the user has no record for the badge.
type ProgressRepository interface {
	Get(ctx context.Context, userID, badgeID string) (*models.UserBadgeProgress, error)
	Put(ctx context.Context, userID string, progress *models.UserBadgeProgress) error
	ListByUser(ctx context.Context, userID string) ([]*models.UserBadgeProgress, error)
}

// NotificationSettingsRepository persists push settings. Get returns
// (nil, nil) when the user never saved settings.
type NotificationSettingsRepository interface {
	Get(ctx context.Context, userID string) (*models.NotificationSettings, error)
	Upsert(ctx context.Context, settings *models.NotificationSettings) error
	// Merge loads the stored settings, or the defaults, applies fn and
	// saves the result as one atomic read-modify-write.
	Merge(ctx context.Context, userID string, fn func(*models.NotificationSettings)) (*models.NotificationSettings, error)
}
