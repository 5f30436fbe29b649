// file: internal/services/interfaces.go
package services

import (
	"context"

	"noodlebadge/internal/catalog"
	"noodlebadge/internal/models"
)

// ===============================
// EXTERNAL COLLABORATORS
// ===============================

// CounterFeed delivers a user's counter updates. The returned channel is
// closed when ctx is cancelled or the feed shuts down. Delivery is
// at-least-once and FIFO per badge. The engine settles every update it
// receives; feeds with acknowledgements ack on settle, not on send.
type CounterFeed interface {
	Subscribe(ctx context.Context, userID string) (<-chan models.CounterUpdate, error)
}

// AchievementSink receives newly achieved levels. Emit must not block for long;
// it runs while the user's updates are serialized.
type AchievementSink interface {
	Emit(ctx context.Context, achievement models.Achievement) error
}

// AchievementSinkFunc adapts a function to AchievementSink
type AchievementSinkFunc func(ctx context.Context, achievement models.Achievement) error

// Emit implements AchievementSink
func (f AchievementSinkFunc) Emit(ctx context.Context, achievement models.Achievement) error {
	return f(ctx, achievement)
}

// ===============================
// CORE SERVICE INTERFACES
// ===============================

// BadgeProgressService tracks badge progress and detects tier crossings
type BadgeProgressService interface {
	Catalog() *catalog.Catalog

	// ApplyCountUpdate records newCount for the badge and reports the
	// achievement it unlocked, if any.
	ApplyCountUpdate(ctx context.Context, userID, badgeID string, newCount int) (*models.UserBadgeProgress, *models.Achievement, error)

	// Subscribe attaches to the user's counter feed until the subscription is cancelled
	Subscribe(ctx context.Context, userID string) (*Subscription, error)

	// Progress returns one view per catalog badge, in catalog order
	Progress(ctx context.Context, userID string) ([]models.BadgeProgressView, error)
	BadgeProgress(ctx context.Context, userID, badgeID string) (*models.BadgeProgressView, error)

	// FlushPending retries buffered writes for one user
	FlushPending(ctx context.Context, userID string) error
	FlushAll(ctx context.Context) error
	PendingCount(userID string) int
}

// NotificationSettingsService manages per-user push settings
type NotificationSettingsService interface {
	Get(ctx context.Context, userID string) (*models.NotificationSettings, error)
	Update(ctx context.Context, req *UpdateNotificationSettingsRequest) (*models.NotificationSettings, error)
}

// UpdateNotificationSettingsRequest is the body of a settings update.
// Nil fields keep their stored value.
type UpdateNotificationSettingsRequest struct {
	UserID            string  `json:"-" validate:"required"`
	FCMToken          *string `json:"fcm_token" validate:"omitempty,max=4096"`
	BadgeAchievements *bool   `json:"badge_achievements"`
}
