// File: internal/handlers/web/health_handlers.go
package web

import (
	"encoding/json"
	"net/http"

	"noodlebadge/internal/monitoring"

	"go.uber.org/zap"
)

// HealthHandler reports component health. Degraded services still answer 200.
func HealthHandler(dashboard *monitoring.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := dashboard.GetSystemHealth(r.Context())

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

		switch health.Status {
		case monitoring.StatusHealthy, monitoring.StatusDegraded:
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		if err := json.NewEncoder(w).Encode(health); err != nil {
			dashboard.GetLogger().Error("Failed to encode health response", zap.Error(err))
		}
	}
}
