// File: internal/monitoring/dashboard.go
package monitoring

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Health status values
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc checks one component. Details are reported even when err is set.
type CheckFunc func(ctx context.Context) (map[string]interface{}, error)

type check struct {
	name     string
	critical bool
	fn       CheckFunc
}

// Dashboard aggregates component health for the service
type Dashboard struct {
	logger      *zap.Logger
	startTime   time.Time
	version     string
	environment string
	timeout     time.Duration

	mu     sync.RWMutex
	checks []check
}

// NewDashboard creates a new monitoring dashboard
func NewDashboard(logger *zap.Logger, version, environment string) *Dashboard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dashboard{
		logger:      logger,
		startTime:   time.Now(),
		version:     version,
		environment: environment,
		timeout:     5 * time.Second,
	}
}

// AddCheck registers a component. A failing critical component makes the
// service unhealthy; any other failure only degrades it.
func (d *Dashboard) AddCheck(name string, critical bool, fn CheckFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checks = append(d.checks, check{name: name, critical: critical, fn: fn})
}

// SystemHealthResponse represents system health
type SystemHealthResponse struct {
	Status      string                     `json:"status"`
	Timestamp   time.Time                  `json:"timestamp"`
	Uptime      string                     `json:"uptime"`
	Version     string                     `json:"version"`
	Environment string                     `json:"environment"`
	Components  map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents the health of one component
type ComponentHealth struct {
	Status       string                 `json:"status"`
	Critical     bool                   `json:"critical"`
	LastCheck    time.Time              `json:"last_check"`
	ResponseTime time.Duration          `json:"response_time"`
	Error        string                 `json:"error,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// GetSystemHealth runs every check concurrently
func (d *Dashboard) GetSystemHealth(ctx context.Context) *SystemHealthResponse {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	d.mu.RLock()
	checks := append([]check(nil), d.checks...)
	d.mu.RUnlock()

	response := &SystemHealthResponse{
		Timestamp:   time.Now(),
		Uptime:      time.Since(d.startTime).Round(time.Second).String(),
		Version:     d.version,
		Environment: d.environment,
		Components:  make(map[string]ComponentHealth, len(checks)),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, c := range checks {
		wg.Add(1)
		go func(c check) {
			defer wg.Done()
			component := d.runCheck(ctx, c)

			mu.Lock()
			response.Components[c.name] = component
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	response.Status = determineOverallStatus(response.Components)
	if response.Status != StatusHealthy {
		d.logger.Warn("System health check failed",
			zap.String("status", response.Status),
			zap.Strings("failing", failingComponents(response.Components)),
		)
	}

	return response
}

func (d *Dashboard) runCheck(ctx context.Context, c check) ComponentHealth {
	start := time.Now()
	details, err := c.fn(ctx)

	component := ComponentHealth{
		Status:       StatusHealthy,
		Critical:     c.critical,
		LastCheck:    start,
		ResponseTime: time.Since(start),
		Details:      details,
	}
	if err != nil {
		component.Error = err.Error()
		component.Status = StatusDegraded
		if c.critical {
			component.Status = StatusUnhealthy
		}
	}
	return component
}

// determineOverallStatus determines the overall system status
func determineOverallStatus(components map[string]ComponentHealth) string {
	status := StatusHealthy
	for _, component := range components {
		switch component.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

func failingComponents(components map[string]ComponentHealth) []string {
	var names []string
	for name, component := range components {
		if component.Status != StatusHealthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// GetLogger returns the dashboard logger
func (d *Dashboard) GetLogger() *zap.Logger {
	return d.logger
}

// GetEnvironment returns the deployment environment
func (d *Dashboard) GetEnvironment() string {
	return d.environment
}
