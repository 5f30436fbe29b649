// file: internal/repositories/collection.go
package repositories

import (
	"context"
	"fmt"
	"time"

	"noodlebadge/internal/cache"
	"noodlebadge/internal/database"

	"go.uber.org/zap"
)

// Collection holds all repository instances for dependency injection
type Collection struct {
	Progress ProgressRepository
	Settings NotificationSettingsRepository

	db     *database.Manager
	logger *zap.Logger
}

// RepositoryConfig holds configuration for repository initialization
type RepositoryConfig struct {
	Cache    cache.Cache
	CacheTTL time.Duration
}

// NewCollection creates the Postgres-backed repositories. When config carries
// a cache the progress repository is wrapped with it.
func NewCollection(db *database.Manager, logger *zap.Logger, config *RepositoryConfig) (*Collection, error) {
	if db == nil {
		return nil, fmt.Errorf("database manager is required")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	collection := &Collection{
		Progress: NewProgressRepository(db, logger),
		Settings: NewNotificationSettingsRepository(db, logger),
		db:       db,
		logger:   logger,
	}
	collection.applyCache(config)

	logger.Info("Repository collection initialized",
		zap.String("provider", "postgres"),
		zap.Bool("cache_enabled", config != nil && config.Cache != nil),
	)

	return collection, nil
}

// NewMemoryCollection creates in-process repositories
func NewMemoryCollection(logger *zap.Logger, config *RepositoryConfig) *Collection {
	if logger == nil {
		logger = zap.NewNop()
	}

	collection := &Collection{
		Progress: NewMemoryProgressRepository(),
		Settings: NewMemoryNotificationSettingsRepository(),
		logger:   logger,
	}
	collection.applyCache(config)

	logger.Info("Repository collection initialized", zap.String("provider", "memory"))

	return collection
}

func (c *Collection) applyCache(config *RepositoryConfig) {
	if config == nil || config.Cache == nil {
		return
	}
	c.Progress = NewCachedProgressRepository(c.Progress, config.Cache, config.CacheTTL, c.logger)
}

// HealthCheck reports database health, or "memory" when no database is used
func (c *Collection) HealthCheck(ctx context.Context) map[string]interface{} {
	health := make(map[string]interface{})

	if c.db == nil {
		health["database"] = map[string]interface{}{"status": "memory"}
		return health
	}

	dbHealth := c.db.Health(ctx)
	health["database"] = map[string]interface{}{
		"status":        dbHealth.Status,
		"response_time": dbHealth.ResponseTime.String(),
		"errors":        dbHealth.Errors,
	}

	metrics := c.db.Metrics()
	health["performance"] = map[string]interface{}{
		"query_count":        metrics.QueryCount,
		"error_count":        metrics.ErrorCount,
		"slow_query_count":   metrics.SlowQueryCount,
		"avg_query_duration": metrics.AvgQueryDuration.String(),
	}

	return health
}

// Close closes the database connection if there is one
func (c *Collection) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
