package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("STORE_PROVIDER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Feed.Provider)
	assert.Equal(t, "drop", cfg.Engine.StoreFailurePolicy)
	assert.Equal(t, 3, cfg.Engine.StoreRetryAttempts)
	assert.Equal(t, "badge.counters", cfg.Feed.Exchange)
	assert.False(t, cfg.Push.Enabled)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "*", cfg.Server.CORSAllowedOrigin)
	assert.True(t, cfg.Server.SwaggerEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("STORE_PROVIDER", "memory")
	t.Setenv("STORE_FAILURE_POLICY", "BUFFER")
	t.Setenv("STORE_RETRY_INTERVAL", "250ms")
	t.Setenv("FEED_PROVIDER", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CORS_ALLOWED_ORIGIN", "https://noodles.example.com")
	t.Setenv("SWAGGER_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://noodles.example.com", cfg.Server.CORSAllowedOrigin)
	assert.False(t, cfg.Server.SwaggerEnabled)

	assert.Equal(t, "buffer", cfg.Engine.StoreFailurePolicy)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.StoreRetryInterval)
	assert.Equal(t, "redis", cfg.Feed.Provider)
}

func TestValidateAll(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: "8080", ReadTimeout: time.Second, WriteTimeout: time.Second, CORSAllowedOrigin: "*"},
			Database: DatabaseConfig{Provider: "memory"},
			Feed:     FeedConfig{Provider: "memory", BufferSize: 8},
			Engine:   EngineConfig{StoreFailurePolicy: "drop"},
			Logging:  LoggingConfig{Format: "json"},
			Auth:     AuthConfig{JWTSecret: "secret"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"redis feed without url", func(c *Config) { c.Feed.Provider = "redis" }, "REDIS_URL"},
		{"amqp feed without url", func(c *Config) { c.Feed.Provider = "amqp" }, "AMQP_URL"},
		{"unknown feed", func(c *Config) { c.Feed.Provider = "kafka" }, "FEED_PROVIDER"},
		{"bad policy", func(c *Config) { c.Engine.StoreFailurePolicy = "retry" }, "STORE_FAILURE_POLICY"},
		{"postgres without url", func(c *Config) { c.Database.Provider = "postgres" }, "DATABASE_URL"},
		{"push without credentials", func(c *Config) { c.Push.Enabled = true }, "FIREBASE_CREDENTIALS_FILE"},
		{"cache without redis", func(c *Config) { c.Redis.CacheEnabled = true }, "REDIS_URL"},
		{"empty cors origin", func(c *Config) { c.Server.CORSAllowedOrigin = "" }, "CORS_ALLOWED_ORIGIN"},
		{
			"default secret in production",
			func(c *Config) {
				c.Server.Environment = "production"
				c.Auth.JWTSecret = "default-jwt-secret-change-in-production"
			},
			"JWT secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.ValidateAll()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
