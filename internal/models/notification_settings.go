package models

import "time"

// NotificationSettings holds a user's push delivery settings
type NotificationSettings struct {
	UserID            string    `json:"user_id" db:"user_id"`
	FCMToken          string    `json:"fcm_token,omitempty" db:"fcm_token" validate:"omitempty,max=4096"`
	BadgeAchievements bool      `json:"badge_achievements" db:"badge_achievements"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultNotificationSettings returns default notification settings
func DefaultNotificationSettings(userID string) *NotificationSettings {
	return &NotificationSettings{
		UserID:            userID,
		BadgeAchievements: true,
	}
}
