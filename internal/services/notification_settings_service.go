package services

import (
	"context"

	"noodlebadge/internal/models"
	"noodlebadge/internal/repositories"
	"noodlebadge/internal/validation"

	"go.uber.org/zap"
)

type notificationSettingsService struct {
	repo   repositories.NotificationSettingsRepository
	logger *zap.Logger
}

// NewNotificationSettingsService creates the settings service
func NewNotificationSettingsService(repo repositories.NotificationSettingsRepository, logger *zap.Logger) NotificationSettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &notificationSettingsService{repo: repo, logger: logger}
}

// Get returns the stored settings, or the defaults when none were saved
func (s *notificationSettingsService) Get(ctx context.Context, userID string) (*models.NotificationSettings, error) {
	if userID == "" {
		return nil, NewValidationError("user id is required", nil)
	}

	settings, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, &ServiceError{
			Type:       ErrTypeInternal,
			Message:    "failed to load notification settings",
			StatusCode: 500,
			Cause:      err,
		}
	}
	if settings == nil {
		return models.DefaultNotificationSettings(userID), nil
	}
	return settings, nil
}

// Update merges the request into the stored settings
func (s *notificationSettingsService) Update(ctx context.Context, req *UpdateNotificationSettingsRequest) (*models.NotificationSettings, error) {
	if err := validation.ValidateStruct(req); err != nil {
		return nil, NewValidationError(err.Error(), err)
	}

	settings, err := s.repo.Merge(ctx, req.UserID, func(settings *models.NotificationSettings) {
		if req.FCMToken != nil {
			settings.FCMToken = *req.FCMToken
		}
		if req.BadgeAchievements != nil {
			settings.BadgeAchievements = *req.BadgeAchievements
		}
	})
	if err != nil {
		return nil, &ServiceError{
			Type:       ErrTypeInternal,
			Message:    "failed to save notification settings",
			StatusCode: 500,
			Cause:      err,
		}
	}

	s.logger.Info("Notification settings updated",
		zap.String("user_id", settings.UserID),
		zap.Bool("badge_achievements", settings.BadgeAchievements),
		zap.Bool("has_token", settings.FCMToken != ""),
	)

	return settings, nil
}
