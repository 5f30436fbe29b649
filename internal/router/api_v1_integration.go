package router

import (
	"net/http"

	"noodlebadge/internal/handlers/api/v1/badges"
	"noodlebadge/internal/handlers/api/v1/notifications"

	"github.com/gorilla/mux"
)

// AddAPIv1Routes mounts the versioned JSON API. Catalog reads are public;
// every /users/{userID} route requires the caller to be that user.
func AddAPIv1Routes(r *mux.Router, deps *Dependencies) {
	badgeController := badges.NewBadgeController(deps.Engine, deps.Logger, deps.ResponseBuilder)

	api := r.PathPrefix("/api/v1").Subrouter()
	deps.withFallbacks(api)
	api.HandleFunc("/badges", badgeController.ListBadges).Methods(http.MethodGet)

	users := api.PathPrefix("/users/{userID}").Subrouter()
	deps.withFallbacks(users)
	users.Use(deps.AuthMiddleware.Authenticate, deps.AuthMiddleware.RequireSelf("userID"))

	users.HandleFunc("/badges", badgeController.GetUserProgress).Methods(http.MethodGet)
	users.HandleFunc("/badges/{badgeID}", badgeController.GetBadgeProgress).Methods(http.MethodGet)
	users.HandleFunc("/badges/{badgeID}", badgeController.UpdateCount).Methods(http.MethodPut)

	if deps.Settings != nil {
		notificationController := notifications.NewNotificationController(deps.Settings, deps.Logger, deps.ResponseBuilder)
		users.HandleFunc("/notifications", notificationController.GetSettings).Methods(http.MethodGet)
		users.HandleFunc("/notifications", notificationController.UpdateSettings).Methods(http.MethodPut)
	}
}
