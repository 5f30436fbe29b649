package router

import (
	"net/http"

	_ "noodlebadge/docs" // registers the API document with swag

	"noodlebadge/internal/handlers/web"
	"noodlebadge/internal/middleware"
	"noodlebadge/internal/monitoring"
	"noodlebadge/internal/response"
	"noodlebadge/internal/services"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Dependencies are the collaborators the HTTP surface needs
type Dependencies struct {
	Engine          services.BadgeProgressService
	Settings        services.NotificationSettingsService
	Hub             *web.AchievementHub
	Dashboard       *monitoring.Dashboard
	AuthMiddleware  *middleware.AuthMiddleware
	ResponseBuilder *response.Builder
	CORSOrigin      string
	// Swagger mounts the API docs under /swagger/ when set
	Swagger *middleware.SwaggerConfig
	Logger  *zap.Logger

	notFound         http.Handler
	methodNotAllowed http.Handler
}

// SetupRouter configures all HTTP routes and returns the main handler
func SetupRouter(deps *Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	logger := deps.Logger
	if deps.ResponseBuilder == nil {
		deps.ResponseBuilder = response.NewBuilder(nil, logger)
	}

	r := mux.NewRouter()
	r.StrictSlash(true)
	deps.withFallbacks(r)

	r.Use(
		middleware.RequestID(logger),
		middleware.RecoverPanic,
		middleware.EnhancedLogging,
		middleware.SecureHeaders,
		middleware.CORS(deps.CORSOrigin),
	)

	if deps.Dashboard != nil {
		r.HandleFunc("/health", web.HealthHandler(deps.Dashboard)).Methods(http.MethodGet)
	}

	if deps.Swagger != nil {
		r.PathPrefix("/swagger/").Handler(middleware.SwaggerHandler(deps.Swagger)).Methods(http.MethodGet)
	}

	AddAPIv1Routes(r, deps)

	if deps.Hub != nil {
		ws := r.PathPrefix("/ws/users/{userID}").Subrouter()
		deps.withFallbacks(ws)
		ws.Use(deps.AuthMiddleware.Authenticate, deps.AuthMiddleware.RequireSelf("userID"))
		ws.HandleFunc("/achievements", deps.Hub.ServeWS).Methods(http.MethodGet)
	}

	logger.Info("HTTP routes configured", zap.Bool("swagger", deps.Swagger != nil))
	return r
}

// withFallbacks installs the JSON 404 and 405 handlers. gorilla/mux only
// consults the handlers of the router whose routes were tried, so every
// subrouter needs them too.
func (deps *Dependencies) withFallbacks(r *mux.Router) {
	if deps.notFound == nil {
		deps.notFound = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			deps.ResponseBuilder.WriteError(w, req, services.NewNotFoundError("route not found"))
		})
	}
	if deps.methodNotAllowed == nil {
		deps.methodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			deps.ResponseBuilder.WriteJSON(w, req, &response.APIResponse{
				Success: false,
				Error: &response.ErrorDetail{
					Type:    "METHOD_NOT_ALLOWED",
					Message: "Method not allowed",
				},
			}, http.StatusMethodNotAllowed)
		})
	}

	r.NotFoundHandler = deps.notFound
	r.MethodNotAllowedHandler = deps.methodNotAllowed
}
