package setup

import (
	"context"
	"log"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/towertools/tiersync/internal/database"
	"github.com/towertools/tiersync/internal/redis"
	"github.com/towertools/tiersync/internal/setup/config"
)

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config        *config.Config  // Application configuration
	Logger        *zap.Logger     // Main application logger
	DBLogger      *zap.Logger     // Database-specific logger
	DB            database.Client // Database connection
	RedisManager  *redis.Manager  // Redis connection manager
	StatusClient  rueidis.Client  // Redis client for status reporting
	SummaryClient rueidis.Client  // Redis client for reconciliation summaries
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, logDir string) (*App, error) {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logger, dbLogger, err := GetLoggers(logDir, cfg.Debug.LogLevel, cfg.Debug.MaxLogsToKeep)
	if err != nil {
		return nil, err
	}

	db, err := database.NewConnection(ctx, &cfg.PostgreSQL, dbLogger, true)
	if err != nil {
		return nil, err
	}

	redisManager := redis.NewManager(&cfg.Redis, logger)

	statusClient, err := redisManager.GetClient(redis.StatusDBIndex)
	if err != nil {
		db.Close()
		return nil, err
	}

	summaryClient, err := redisManager.GetClient(redis.SummaryDBIndex)
	if err != nil {
		db.Close()
		redisManager.Close()

		return nil, err
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		DBLogger:      dbLogger.Named("database"),
		DB:            db,
		RedisManager:  redisManager,
		StatusClient:  statusClient,
		SummaryClient: summaryClient,
	}, nil
}

// Cleanup ensures graceful shutdown of all components in reverse
// initialization order. Cleanup errors are logged, not fatal, so every
// component gets its shutdown attempt.
func (s *App) Cleanup(context.Context) {
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	if err := s.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	// Redis goes last as other components might report status during cleanup
	s.RedisManager.Close()
}
