package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"noodlebadge/internal/config"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Open connects to Postgres with exponential backoff and, when enabled,
// applies migrations before returning.
func Open(cfg *config.DatabaseConfig, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var manager *Manager
	connect := func() error {
		m, err := NewManager(cfg, logger)
		if err != nil {
			return err
		}
		manager = m
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second

	err := backoff.RetryNotify(connect, policy, func(err error, wait time.Duration) {
		logger.Warn("Database not reachable, retrying",
			zap.Error(err),
			zap.Duration("retry_in", wait),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if !cfg.AutoMigrate {
		return manager, nil
	}

	path := determineMigrationsPath(cfg.MigrationsPath)
	migrateOnce := func() error { return manager.Migrate(path) }

	err = backoff.RetryNotify(migrateOnce, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3),
		func(err error, wait time.Duration) {
			logger.Warn("Migration attempt failed, retrying",
				zap.Error(err),
				zap.Duration("retry_in", wait),
			)
		})
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	return manager, nil
}

// determineMigrationsPath resolves the migrations directory relative to the
// working directory, falling back to a few common locations.
func determineMigrationsPath(configPath string) string {
	candidates := []string{configPath, "migrations", "./migrations", "../../migrations"}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return configPath
}
