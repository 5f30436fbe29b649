package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Feed     FeedConfig
	Engine   EngineConfig
	Push     PushConfig
	Auth     AuthConfig
	Logging  LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	GracefulTimeout time.Duration
	MaxHeaderBytes  int

	CORSAllowedOrigin string

	SwaggerEnabled  bool
	SwaggerUsername string
	SwaggerPassword string
}

// DatabaseConfig holds the progress store configuration. Provider "memory"
// skips Postgres entirely and keeps progress in process.
type DatabaseConfig struct {
	Provider           string
	URL                string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	SlowQueryThreshold time.Duration
	MigrationsPath     string
	AutoMigrate        bool
}

// RedisConfig holds redis connection settings used by the read cache and the redis feed
type RedisConfig struct {
	URL          string
	CacheEnabled bool
	CacheTTL     time.Duration
	KeyPrefix    string
}

// FeedConfig selects and configures the counter feed
type FeedConfig struct {
	Provider      string // memory, redis, amqp
	ChannelPrefix string
	AMQPURL       string
	Exchange      string
	QueuePrefix   string
	BufferSize    int
}

// EngineConfig holds badge engine settings
type EngineConfig struct {
	CatalogPath        string
	StoreFailurePolicy string // drop, buffer
	StoreRetryAttempts int
	StoreRetryInterval time.Duration
	SubscriptionBuffer int
}

// PushConfig holds Firebase Cloud Messaging settings
type PushConfig struct {
	Enabled         bool
	CredentialsFile string
	ProjectID       string
	SendTimeout     time.Duration
	RetryAttempts   int
}

// AuthConfig holds bearer token settings
type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	RequireAuth bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment. Outside production a
// .env.<GO_ENV> file is loaded first, falling back to .env.
func Load() (*Config, error) {
	env := getEnv("GO_ENV", "development")
	if env != "production" {
		envFile := fmt.Sprintf(".env.%s", env)
		if _, err := os.Stat(envFile); err == nil {
			_ = godotenv.Load(envFile)
		} else {
			_ = godotenv.Load() // fallback to .env
		}
	}

	config := &Config{
		Server:   loadServerConfig(env),
		Database: loadDatabaseConfig(env),
		Redis:    loadRedisConfig(),
		Feed:     loadFeedConfig(),
		Engine:   loadEngineConfig(),
		Push:     loadPushConfig(),
		Auth:     loadAuthConfig(env),
		Logging:  loadLoggingConfig(env),
	}

	if err := config.ValidateAll(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func loadServerConfig(env string) ServerConfig {
	return ServerConfig{
		Port:            getEnv("PORT", "8080"),
		Host:            getEnv("HOST", "0.0.0.0"),
		Environment:     env,
		ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
		GracefulTimeout: getDurationEnv("SERVER_GRACEFUL_TIMEOUT", 30*time.Second),
		MaxHeaderBytes:  getIntEnv("SERVER_MAX_HEADER_BYTES", 1<<20),

		CORSAllowedOrigin: getEnv("CORS_ALLOWED_ORIGIN", "*"),

		SwaggerEnabled:  getBoolEnv("SWAGGER_ENABLED", true),
		SwaggerUsername: getEnv("SWAGGER_USERNAME", ""),
		SwaggerPassword: getEnv("SWAGGER_PASSWORD", ""),
	}
}

func loadDatabaseConfig(env string) DatabaseConfig {
	maxOpen := 25
	if env == "production" {
		maxOpen = 50
	}
	return DatabaseConfig{
		Provider:           strings.ToLower(getEnv("STORE_PROVIDER", "postgres")),
		URL:                getEnv("DATABASE_URL", ""),
		MaxOpenConns:       getIntEnv("DB_MAX_OPEN_CONNS", maxOpen),
		MaxIdleConns:       getIntEnv("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:    getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		ConnMaxIdleTime:    getDurationEnv("DB_CONN_MAX_IDLE_TIME", 10*time.Minute),
		SlowQueryThreshold: getDurationEnv("DB_SLOW_QUERY_THRESHOLD", 100*time.Millisecond),
		MigrationsPath:     getEnv("DB_MIGRATIONS_PATH", "migrations"),
		AutoMigrate:        getBoolEnv("DB_AUTO_MIGRATE", true),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:          getEnv("REDIS_URL", ""),
		CacheEnabled: getBoolEnv("REDIS_CACHE_ENABLED", false),
		CacheTTL:     getDurationEnv("REDIS_CACHE_TTL", 10*time.Minute),
		KeyPrefix:    getEnv("REDIS_KEY_PREFIX", "noodlebadge:"),
	}
}

func loadFeedConfig() FeedConfig {
	return FeedConfig{
		Provider:      strings.ToLower(getEnv("FEED_PROVIDER", "memory")),
		ChannelPrefix: getEnv("FEED_CHANNEL_PREFIX", "badge-counters:"),
		AMQPURL:       getEnv("AMQP_URL", ""),
		Exchange:      getEnv("FEED_EXCHANGE", "badge.counters"),
		QueuePrefix:   getEnv("FEED_QUEUE_PREFIX", "badge-counters."),
		BufferSize:    getIntEnv("FEED_BUFFER_SIZE", 64),
	}
}

func loadEngineConfig() EngineConfig {
	return EngineConfig{
		CatalogPath:        getEnv("BADGE_CATALOG_PATH", ""),
		StoreFailurePolicy: strings.ToLower(getEnv("STORE_FAILURE_POLICY", "drop")),
		StoreRetryAttempts: getIntEnv("STORE_RETRY_ATTEMPTS", 3),
		StoreRetryInterval: getDurationEnv("STORE_RETRY_INTERVAL", 100*time.Millisecond),
		SubscriptionBuffer: getIntEnv("SUBSCRIPTION_ERROR_BUFFER", 16),
	}
}

func loadPushConfig() PushConfig {
	return PushConfig{
		Enabled:         getBoolEnv("PUSH_ENABLED", false),
		CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		SendTimeout:     getDurationEnv("PUSH_SEND_TIMEOUT", 10*time.Second),
		RetryAttempts:   getIntEnv("PUSH_RETRY_ATTEMPTS", 3),
	}
}

func loadAuthConfig(env string) AuthConfig {
	return AuthConfig{
		JWTSecret:   getEnv("JWT_SECRET", "default-jwt-secret-change-in-production"),
		JWTIssuer:   getEnv("JWT_ISSUER", ""),
		RequireAuth: getBoolEnv("REQUIRE_AUTH", env == "production"),
	}
}

func loadLoggingConfig(env string) LoggingConfig {
	return LoggingConfig{
		Level:  getEnv("LOG_LEVEL", getDefaultLogLevel(env)),
		Format: getEnv("LOG_FORMAT", getDefaultLogFormat(env)),
	}
}

// ===============================
// VALIDATION
// ===============================

// ValidateAll validates every section and then the cross-section rules
func (c *Config) ValidateAll() error {
	validators := []struct {
		name string
		fn   func() error
	}{
		{"server", c.Server.Validate},
		{"database", c.Database.Validate},
		{"feed", c.Feed.Validate},
		{"engine", c.Engine.Validate},
		{"push", c.Push.Validate},
		{"logging", c.Logging.Validate},
	}

	for _, v := range validators {
		if err := v.fn(); err != nil {
			return fmt.Errorf("%s config: %w", v.name, err)
		}
	}

	if err := c.validateCrossConfig(); err != nil {
		return fmt.Errorf("cross-config validation failed: %w", err)
	}

	return nil
}

func (c *Config) validateCrossConfig() error {
	if c.Feed.Provider == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("FEED_PROVIDER=redis requires REDIS_URL")
	}

	if c.Redis.CacheEnabled && c.Redis.URL == "" {
		return fmt.Errorf("REDIS_CACHE_ENABLED requires REDIS_URL")
	}

	if c.IsProduction() {
		if c.Auth.JWTSecret == "default-jwt-secret-change-in-production" {
			return fmt.Errorf("default JWT secret cannot be used in production")
		}
		if c.Database.Provider == "postgres" && strings.Contains(c.Database.URL, "sslmode=disable") {
			return fmt.Errorf("SSL must be enabled for database in production")
		}
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	if s.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if s.ReadTimeout <= 0 {
		return fmt.Errorf("ReadTimeout must be positive")
	}

	if s.WriteTimeout <= 0 {
		return fmt.Errorf("WriteTimeout must be positive")
	}

	if s.CORSAllowedOrigin == "" {
		return fmt.Errorf("CORS_ALLOWED_ORIGIN cannot be empty")
	}

	return nil
}

func (d *DatabaseConfig) Validate() error {
	switch d.Provider {
	case "memory":
		return nil
	case "postgres":
	default:
		return fmt.Errorf("unknown STORE_PROVIDER %q", d.Provider)
	}

	if d.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if d.MaxOpenConns <= 0 {
		return fmt.Errorf("MaxOpenConns must be positive")
	}

	if d.MaxIdleConns < 0 {
		return fmt.Errorf("MaxIdleConns cannot be negative")
	}

	if d.MaxIdleConns > d.MaxOpenConns {
		return fmt.Errorf("MaxIdleConns cannot be greater than MaxOpenConns")
	}

	if d.ConnMaxLifetime <= 0 {
		return fmt.Errorf("ConnMaxLifetime must be positive")
	}

	return nil
}

func (f *FeedConfig) Validate() error {
	switch f.Provider {
	case "memory", "redis":
	case "amqp":
		if f.AMQPURL == "" {
			return fmt.Errorf("FEED_PROVIDER=amqp requires AMQP_URL")
		}
		if f.Exchange == "" {
			return fmt.Errorf("FEED_EXCHANGE is required")
		}
	default:
		return fmt.Errorf("unknown FEED_PROVIDER %q", f.Provider)
	}

	if f.BufferSize <= 0 {
		return fmt.Errorf("FEED_BUFFER_SIZE must be positive")
	}

	return nil
}

func (e *EngineConfig) Validate() error {
	if e.StoreFailurePolicy != "drop" && e.StoreFailurePolicy != "buffer" {
		return fmt.Errorf("STORE_FAILURE_POLICY must be drop or buffer, got %q", e.StoreFailurePolicy)
	}

	if e.StoreRetryAttempts < 0 {
		return fmt.Errorf("STORE_RETRY_ATTEMPTS cannot be negative")
	}

	return nil
}

func (p *PushConfig) Validate() error {
	if p.Enabled && p.CredentialsFile == "" {
		return fmt.Errorf("PUSH_ENABLED requires FIREBASE_CREDENTIALS_FILE")
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	switch strings.ToLower(l.Format) {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", l.Format)
	}
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// ===============================
// ENV HELPERS
// ===============================

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getDefaultLogLevel(env string) string {
	switch env {
	case "production":
		return "info"
	default:
		return "debug"
	}
}

func getDefaultLogFormat(env string) string {
	switch env {
	case "production":
		return "json"
	default:
		return "console"
	}
}
