package app

import (
	"context"
	"log"
	"log/slog"

	"intuneget/pkg/config"
	"intuneget/pkg/database"
	"intuneget/pkg/logging"

	"github.com/joho/godotenv"
)

// AppContext holds the shared application context and dependencies
type AppContext struct {
	MongoDB          *database.MongoDB
	Redis            *database.Redis
	TelemetryManager *logging.TelemetryManager
	AutoUpdate       config.AutoUpdateConfig
	ServiceName      string
	shutdownFuncs    []func(context.Context) error
}

// InitializeApp loads configuration and connects shared dependencies. MongoDB is
// required; Redis is optional and features that use it degrade without it.
func InitializeApp(serviceName string) (*AppContext, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it: %v", err)
	}

	ctx := context.Background()

	telemetryManager := logging.NewTelemetryManager(serviceName)
	if err := telemetryManager.Initialize(ctx); err != nil {
		log.Printf("Warning: Failed to initialize telemetry: %v", err)
	}

	autoUpdate, err := config.LoadAutoUpdateConfig()
	if err != nil {
		return nil, err
	}

	mongodb, err := database.NewMongoDB(ctx, serviceName)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		return nil, err
	}
	slog.Info("Connected to MongoDB", slog.String("database", mongodb.Database.Name()))

	redis, err := database.NewRedis(ctx)
	if err != nil {
		slog.Warn("Redis unavailable, sweep lock and catalog cache disabled", "error", err)
		redis = nil
	} else {
		slog.Info("Connected to Redis")
	}

	appCtx := &AppContext{
		MongoDB:          mongodb,
		Redis:            redis,
		TelemetryManager: telemetryManager,
		AutoUpdate:       autoUpdate,
		ServiceName:      serviceName,
	}

	appCtx.shutdownFuncs = append(appCtx.shutdownFuncs, mongodb.Close)
	if redis != nil {
		appCtx.shutdownFuncs = append(appCtx.shutdownFuncs, func(ctx context.Context) error {
			return redis.Close()
		})
	}
	appCtx.shutdownFuncs = append(appCtx.shutdownFuncs, telemetryManager.Shutdown)

	return appCtx, nil
}

// Shutdown gracefully shuts down all application dependencies
func (a *AppContext) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down application", "service", a.ServiceName)

	for _, shutdown := range a.shutdownFuncs {
		if err := shutdown(ctx); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}

	slog.Info("Application shutdown completed", "service", a.ServiceName)
	return nil
}

// GetPort returns the port from environment or default
func GetPort(defaultPort string) string {
	return config.GetEnv("PORT", defaultPort)
}

// IsProduction returns true if running in production environment
func IsProduction() bool {
	return config.GetEnv("APP_ENV", "development") == "production"
}
