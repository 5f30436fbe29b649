// file: internal/handlers/api/v1/badges/badges_controller.go
package badges

import (
	"encoding/json"
	"net/http"

	"noodlebadge/internal/models"
	"noodlebadge/internal/response"
	"noodlebadge/internal/services"
	"noodlebadge/internal/validation"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// BadgeController serves the badge catalog and per-user progress
type BadgeController struct {
	engine          services.BadgeProgressService
	logger          *zap.Logger
	responseBuilder *response.Builder
}

// NewBadgeController creates a new badge controller
func NewBadgeController(engine services.BadgeProgressService, logger *zap.Logger, responseBuilder *response.Builder) *BadgeController {
	if logger == nil {
		logger = zap.NewNop()
	}
	if responseBuilder == nil {
		responseBuilder = response.NewBuilder(nil, logger)
	}
	return &BadgeController{
		engine:          engine,
		logger:          logger,
		responseBuilder: responseBuilder,
	}
}

// UpdateCountRequest is the body of a direct counter write
type UpdateCountRequest struct {
	Count *int `json:"count" validate:"required,min=0,max=2147483647"`
}

// UpdateCountResponse reports the stored record and any level it unlocked
type UpdateCountResponse struct {
	Progress    *models.UserBadgeProgress `json:"progress"`
	View        *models.BadgeProgressView `json:"view,omitempty"`
	Achievement *models.Achievement       `json:"achievement,omitempty"`
}

// ListBadges handles GET /api/v1/badges
func (c *BadgeController) ListBadges(w http.ResponseWriter, r *http.Request) {
	c.responseBuilder.WriteSuccess(w, r, c.engine.Catalog().List())
}

// GetUserProgress handles GET /api/v1/users/{userID}/badges
func (c *BadgeController) GetUserProgress(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	views, err := c.engine.Progress(r.Context(), userID)
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}

	c.responseBuilder.WriteSuccess(w, r, views)
}

// GetBadgeProgress handles GET /api/v1/users/{userID}/badges/{badgeID}
func (c *BadgeController) GetBadgeProgress(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	view, err := c.engine.BadgeProgress(r.Context(), vars["userID"], vars["badgeID"])
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}

	c.responseBuilder.WriteSuccess(w, r, view)
}

// UpdateCount handles PUT /api/v1/users/{userID}/badges/{badgeID}.
// A buffered write answers 202; a failed delivery still answers 200.
func (c *BadgeController) UpdateCount(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, badgeID := vars["userID"], vars["badgeID"]

	var req UpdateCountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.responseBuilder.WriteError(w, r, services.NewValidationError("invalid request body", err))
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		c.responseBuilder.WriteError(w, r, services.NewValidationError(err.Error(), err))
		return
	}

	record, achievement, err := c.engine.ApplyCountUpdate(r.Context(), userID, badgeID, *req.Count)
	if record == nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}

	resp := &UpdateCountResponse{
		Progress:    record,
		Achievement: achievement,
	}
	if def, ok := c.engine.Catalog().Get(badgeID); ok {
		view := services.BuildProgressView(def, record)
		resp.View = &view
	}

	switch {
	case err == nil:
		c.responseBuilder.WriteSuccess(w, r, resp)
	case services.IsStoreUnavailable(err):
		c.responseBuilder.WriteAccepted(w, r, resp, err)
	default:
		c.responseBuilder.WriteWithWarning(w, r, resp, err, http.StatusOK)
	}
}
