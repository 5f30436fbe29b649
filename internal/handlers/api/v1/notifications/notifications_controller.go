// file: internal/handlers/api/v1/notifications/notifications_controller.go
package notifications

import (
	"encoding/json"
	"net/http"

	"noodlebadge/internal/response"
	"noodlebadge/internal/services"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NotificationController manages a user's push settings
type NotificationController struct {
	settings        services.NotificationSettingsService
	logger          *zap.Logger
	responseBuilder *response.Builder
}

// NewNotificationController creates a new notification controller
func NewNotificationController(settings services.NotificationSettingsService, logger *zap.Logger, responseBuilder *response.Builder) *NotificationController {
	if logger == nil {
		logger = zap.NewNop()
	}
	if responseBuilder == nil {
		responseBuilder = response.NewBuilder(nil, logger)
	}
	return &NotificationController{
		settings:        settings,
		logger:          logger,
		responseBuilder: responseBuilder,
	}
}

// GetSettings handles GET /api/v1/users/{userID}/notifications
func (c *NotificationController) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := c.settings.Get(r.Context(), mux.Vars(r)["userID"])
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	c.responseBuilder.WriteSuccess(w, r, settings)
}

// UpdateSettings handles PUT /api/v1/users/{userID}/notifications
func (c *NotificationController) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req services.UpdateNotificationSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.responseBuilder.WriteError(w, r, services.NewValidationError("invalid request body", err))
		return
	}
	req.UserID = mux.Vars(r)["userID"]

	settings, err := c.settings.Update(r.Context(), &req)
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	c.responseBuilder.WriteSuccess(w, r, settings)
}
