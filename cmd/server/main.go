package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"noodlebadge/internal/cache"
	"noodlebadge/internal/catalog"
	"noodlebadge/internal/config"
	"noodlebadge/internal/database"
	"noodlebadge/internal/events"
	"noodlebadge/internal/feed"
	"noodlebadge/internal/handlers/web"
	"noodlebadge/internal/middleware"
	"noodlebadge/internal/monitoring"
	"noodlebadge/internal/notifications"
	"noodlebadge/internal/repositories"
	"noodlebadge/internal/response"
	"noodlebadge/internal/router"
	"noodlebadge/internal/services"
	"noodlebadge/internal/utils/appinfo"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// achievementHandler is implemented by both push and log notifiers
type achievementHandler interface {
	HandleBadgeAchieved(ctx context.Context, event *events.BadgeAchievedEvent) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(&cfg.Logging, cfg.Server.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting noodlebadge",
		zap.String("version", appinfo.GetVersion()),
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("store", cfg.Database.Provider),
		zap.String("feed", cfg.Feed.Provider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Catalog
	badgeCatalog := catalog.Default()
	if cfg.Engine.CatalogPath != "" {
		badgeCatalog, err = catalog.LoadFile(cfg.Engine.CatalogPath)
		if err != nil {
			logger.Fatal("Failed to load badge catalog", zap.Error(err), zap.String("path", cfg.Engine.CatalogPath))
		}
	}
	logger.Info("Badge catalog loaded", zap.Int("badges", badgeCatalog.Len()))

	// Read cache
	var repoConfig *repositories.RepositoryConfig
	var progressCache cache.Cache
	if cfg.Redis.CacheEnabled {
		cacheConfig := cache.DefaultConfig()
		cacheConfig.Provider = "redis"
		cacheConfig.RedisURL = cfg.Redis.URL
		cacheConfig.KeyPrefix = cfg.Redis.KeyPrefix
		cacheConfig.TTL = cfg.Redis.CacheTTL

		progressCache, err = cache.NewCache(cacheConfig, logger)
		if err != nil {
			logger.Fatal("Failed to create cache", zap.Error(err))
		}
		repoConfig = &repositories.RepositoryConfig{Cache: progressCache, CacheTTL: cfg.Redis.CacheTTL}
	}

	// Progress store
	var collection *repositories.Collection
	if cfg.Database.Provider == "memory" {
		collection = repositories.NewMemoryCollection(logger, repoConfig)
	} else {
		dbManager, err := database.Open(&cfg.Database, logger)
		if err != nil {
			logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		collection, err = repositories.NewCollection(dbManager, logger, repoConfig)
		if err != nil {
			logger.Fatal("Failed to initialize repositories", zap.Error(err))
		}
	}

	// Counter feed
	counterFeed, err := feed.NewFeed(&feed.Config{
		Provider:      cfg.Feed.Provider,
		RedisURL:      cfg.Redis.URL,
		ChannelPrefix: cfg.Feed.ChannelPrefix,
		AMQPURL:       cfg.Feed.AMQPURL,
		Exchange:      cfg.Feed.Exchange,
		QueuePrefix:   cfg.Feed.QueuePrefix,
		BufferSize:    cfg.Feed.BufferSize,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create counter feed", zap.Error(err))
	}

	// Event bus
	bus := events.NewEventBus(events.DefaultEventBusConfig(), logger)
	if err := bus.Start(ctx); err != nil {
		logger.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Engine
	engine := services.NewBadgeProgressService(&services.BadgeEngineConfig{
		StoreFailurePolicy: services.StoreFailurePolicy(cfg.Engine.StoreFailurePolicy),
		StoreRetryAttempts: cfg.Engine.StoreRetryAttempts,
		StoreRetryInterval: cfg.Engine.StoreRetryInterval,
		ErrorBuffer:        cfg.Engine.SubscriptionBuffer,
	}, badgeCatalog, collection.Progress, counterFeed, events.NewBusSink(bus, false), logger)

	settingsService := services.NewNotificationSettingsService(collection.Settings, logger)

	// Achievement consumers
	hub := web.NewAchievementHub(web.DefaultHubConfig(), engine, logger)
	if err := events.OnBadgeAchieved(bus, "websocket_hub", hub.HandleBadgeAchieved); err != nil {
		logger.Fatal("Failed to subscribe websocket hub", zap.Error(err))
	}

	var pushNotifier *notifications.PushNotifier
	var notifier achievementHandler = notifications.NewLogNotifier(badgeCatalog, logger)
	if cfg.Push.Enabled {
		messenger, err := notifications.NewFirebaseMessenger(ctx, &notifications.FirebaseConfig{
			CredentialsPath: cfg.Push.CredentialsFile,
			ProjectID:       cfg.Push.ProjectID,
		})
		if err != nil {
			logger.Fatal("Failed to initialize Firebase messaging", zap.Error(err))
		}

		pushConfig := notifications.DefaultPushConfig()
		pushConfig.SendTimeout = cfg.Push.SendTimeout
		pushConfig.RetryAttempts = cfg.Push.RetryAttempts
		pushNotifier = notifications.NewPushNotifier(pushConfig, badgeCatalog, settingsService, messenger, logger)
		pushNotifier.Start(ctx)
		notifier = pushNotifier
	}
	if err := events.OnBadgeAchieved(bus, "notifier", notifier.HandleBadgeAchieved); err != nil {
		logger.Fatal("Failed to subscribe notifier", zap.Error(err))
	}

	// Health
	dashboard := monitoring.NewDashboard(logger, appinfo.GetVersion(), cfg.Server.Environment)
	dashboard.AddCheck("store", true, func(ctx context.Context) (map[string]interface{}, error) {
		health := collection.HealthCheck(ctx)
		if db, ok := health["database"].(map[string]interface{}); ok && db["status"] == database.StatusUnhealthy {
			return health, errors.New("database is unhealthy")
		}
		return health, nil
	})
	if progressCache != nil {
		dashboard.AddCheck("cache", false, func(ctx context.Context) (map[string]interface{}, error) {
			stats, err := progressCache.Stats(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"hits": stats.Hits, "misses": stats.Misses, "hit_ratio": stats.HitRatio},
				progressCache.Health(ctx)
		})
	}
	dashboard.AddCheck("event_bus", false, func(ctx context.Context) (map[string]interface{}, error) {
		stats := bus.Stats()
		return map[string]interface{}{
			"published": stats.EventsPublished,
			"processed": stats.EventsProcessed,
			"failed":    stats.EventsFailed,
		}, bus.Health()
	})
	dashboard.AddCheck("websocket", false, func(ctx context.Context) (map[string]interface{}, error) {
		return hub.Stats(), nil
	})

	// HTTP
	authMiddleware, err := middleware.NewAuthMiddleware(&middleware.AuthConfig{
		JWTSecret:       cfg.Auth.JWTSecret,
		Issuer:          cfg.Auth.JWTIssuer,
		Required:        cfg.Auth.RequireAuth,
		TokenQueryParam: "access_token",
		LogFailedAuth:   true,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create auth middleware", zap.Error(err))
	}

	responseConfig := response.DefaultConfig()
	responseConfig.APIVersion = "v1"
	responseConfig.MaskInternalErrors = cfg.IsProduction()

	var swaggerConfig *middleware.SwaggerConfig
	if cfg.Server.SwaggerEnabled {
		swaggerConfig = middleware.DefaultSwaggerConfig()
		swaggerConfig.Username = cfg.Server.SwaggerUsername
		swaggerConfig.Password = cfg.Server.SwaggerPassword
	}

	handler := router.SetupRouter(&router.Dependencies{
		Engine:          engine,
		Settings:        settingsService,
		Hub:             hub,
		Dashboard:       dashboard,
		AuthMiddleware:  authMiddleware,
		ResponseBuilder: response.NewBuilder(responseConfig, logger),
		CORSOrigin:      cfg.Server.CORSAllowedOrigin,
		Swagger:         swaggerConfig,
		Logger:          logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	hub.Close()

	if err := engine.FlushAll(shutdownCtx); err != nil {
		logger.Error("Buffered progress could not be flushed", zap.Error(err))
	}

	if err := bus.Stop(shutdownCtx); err != nil {
		logger.Error("Failed to stop event bus", zap.Error(err))
	}

	if pushNotifier != nil {
		pushNotifier.Stop()
	}

	if err := counterFeed.Close(); err != nil {
		logger.Error("Failed to close counter feed", zap.Error(err))
	}

	if progressCache != nil {
		if err := progressCache.Close(); err != nil {
			logger.Error("Failed to close cache", zap.Error(err))
		}
	}

	if err := collection.Close(); err != nil {
		logger.Error("Failed to close database connections", zap.Error(err))
	}

	logger.Info("Application shutdown completed")
}

// initLogger builds the structured logger from the logging configuration
func initLogger(cfg *config.LoggingConfig, env string) (*zap.Logger, error) {
	var zc zap.Config
	if env == "production" || env == "staging" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	if cfg.Format == "json" {
		zc.Encoding = "json"
		zc.EncoderConfig = zap.NewProductionEncoderConfig()
	} else {
		zc.Encoding = "console"
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}
