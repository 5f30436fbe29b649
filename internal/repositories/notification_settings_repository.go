package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"noodlebadge/internal/database"
	"noodlebadge/internal/models"

	"go.uber.org/zap"
)

type notificationSettingsRepository struct {
	*BaseRepository
}

// NewNotificationSettingsRepository creates a Postgres-backed settings repository
func NewNotificationSettingsRepository(db *database.Manager, logger *zap.Logger) NotificationSettingsRepository {
	return &notificationSettingsRepository{
		BaseRepository: NewBaseRepository(db, logger),
	}
}

func (r *notificationSettingsRepository) Get(ctx context.Context, userID string) (*models.NotificationSettings, error) {
	query := `
		SELECT user_id, fcm_token, badge_achievements, updated_at
		FROM user_notification_settings
		WHERE user_id = $1`

	var s models.NotificationSettings
	err := r.QueryRowContext(ctx, query, userID).Scan(
		&s.UserID, &s.FCMToken, &s.BadgeAchievements, &s.UpdatedAt,
	)
	if err != nil {
		if r.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification settings: %w", err)
	}

	return &s, nil
}

func (r *notificationSettingsRepository) Upsert(ctx context.Context, s *models.NotificationSettings) error {
	s.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO user_notification_settings (
			user_id, fcm_token, badge_achievements, updated_at
		) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			fcm_token = EXCLUDED.fcm_token,
			badge_achievements = EXCLUDED.badge_achievements,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.ExecContext(ctx, query, s.UserID, s.FCMToken, s.BadgeAchievements, s.UpdatedAt); err != nil {
		r.GetLogger().Error("Failed to save notification settings",
			zap.Error(err),
			zap.String("user_id", s.UserID),
		)
		return fmt.Errorf("failed to save notification settings: %w", err)
	}

	return nil
}

func (r *notificationSettingsRepository) Merge(ctx context.Context, userID string, fn func(*models.NotificationSettings)) (*models.NotificationSettings, error) {
	var merged models.NotificationSettings

	err := r.WithTransaction(ctx, func(tx *sql.Tx) error {
		defaults := models.DefaultNotificationSettings(userID)

		// seed the row so FOR UPDATE has something to lock on first write
		seed := `
			INSERT INTO user_notification_settings (
				user_id, fcm_token, badge_achievements, updated_at
			) VALUES ($1, $2, $3, NOW())
			ON CONFLICT (user_id) DO NOTHING`
		if _, err := tx.ExecContext(ctx, seed, userID, defaults.FCMToken, defaults.BadgeAchievements); err != nil {
			return fmt.Errorf("failed to seed notification settings: %w", err)
		}

		lock := `
			SELECT user_id, fcm_token, badge_achievements, updated_at
			FROM user_notification_settings
			WHERE user_id = $1
			FOR UPDATE`
		if err := tx.QueryRowContext(ctx, lock, userID).Scan(
			&merged.UserID, &merged.FCMToken, &merged.BadgeAchievements, &merged.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to lock notification settings: %w", err)
		}

		fn(&merged)
		merged.UserID = userID
		merged.UpdatedAt = time.Now().UTC()

		update := `
			UPDATE user_notification_settings
			SET fcm_token = $2, badge_achievements = $3, updated_at = $4
			WHERE user_id = $1`
		if _, err := tx.ExecContext(ctx, update, userID, merged.FCMToken, merged.BadgeAchievements, merged.UpdatedAt); err != nil {
			return fmt.Errorf("failed to save notification settings: %w", err)
		}
		return nil
	})
	if err != nil {
		r.GetLogger().Error("Failed to merge notification settings",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		return nil, err
	}

	return &merged, nil
}
