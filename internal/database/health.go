package database

import (
	"context"
	"time"
)

// Health status values
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus represents the current health of the database
type HealthStatus struct {
	Status          string        `json:"status"`
	Timestamp       time.Time     `json:"timestamp"`
	ResponseTime    time.Duration `json:"response_time"`
	ConnectionCount int           `json:"connection_count"`
	Errors          []string      `json:"errors,omitempty"`
}

// Health pings the database within a short timeout
func (m *Manager) Health(ctx context.Context) *HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	status := &HealthStatus{
		Status:    StatusHealthy,
		Timestamp: start,
	}

	if err := m.DB().PingContext(ctx); err != nil {
		status.Status = StatusUnhealthy
		status.Errors = append(status.Errors, err.Error())
	}

	status.ResponseTime = time.Since(start)
	status.ConnectionCount = m.DB().Stats().OpenConnections

	return status
}
