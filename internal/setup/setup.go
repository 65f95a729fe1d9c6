package setup

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/redis/rueidis"
	"github.com/robalyx/reactor/internal/database"
	"github.com/robalyx/reactor/internal/database/migrations"
	"github.com/robalyx/reactor/internal/database/sqlite"
	"github.com/robalyx/reactor/internal/reaction"
	"github.com/robalyx/reactor/internal/reconcile"
	"github.com/robalyx/reactor/internal/redis"
	"github.com/robalyx/reactor/internal/setup/config"
	"github.com/robalyx/reactor/internal/setup/telemetry"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// ErrMigrationsPending is returned when the schema is behind and migrations were declined.
var ErrMigrationsPending = errors.New("database migrations are pending")

// EventStore is the reaction event log used by both the toggle engine and
// the reconciliation job.
type EventStore interface {
	reaction.EventStore
	reconcile.Aggregator
}

// Options control how the application is bootstrapped.
type Options struct {
	// LogDir is the base directory for session logs.
	LogDir string
	// AutoMigrate applies pending Postgres migrations without prompting.
	AutoMigrate bool
}

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config     // Application configuration
	Logger       *zap.Logger        // Main application logger
	DBLogger     *zap.Logger        // Database-specific logger
	DB           database.Client    // Postgres connection pool, nil with the sqlite driver
	SQLite       *sqlite.Store      // Embedded event store, nil with the postgres driver
	Events       EventStore         // Event store selected by storage.driver
	RedisManager *redis.Manager     // Redis connection manager
	CountsClient rueidis.Client     // Redis client for cached counts and anomalies
	StatsClient  rueidis.Client     // Redis client for hourly statistics
	StatusClient rueidis.Client     // Redis client for worker status reporting
	LimitClient  rueidis.Client     // Redis client for rate limit windows
	LogManager   *telemetry.Manager // Log management system
	shutdown     func(context.Context)
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, serviceType telemetry.ServiceType, opts Options) (*App, error) {
	// Load app configuration
	cfg, configDir, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logManager := telemetry.NewManager(serviceType, opts.LogDir, &cfg.Debug)

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		return nil, err
	}

	if configDir != "" {
		logger.Info("Loaded configuration", zap.String("dir", configDir))
	} else {
		logger.Info("No config file found, using defaults and environment")
	}

	shutdown := telemetry.ConfigureTracing(&cfg.Telemetry, serviceType, logger)

	app := &App{
		Config:     cfg,
		Logger:     logger,
		DBLogger:   dbLogger.Named("database"),
		LogManager: logManager,
		shutdown:   shutdown,
	}

	// Event store is chosen by driver
	switch cfg.Storage.Driver {
	case config.StorageDriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLite.Path, cfg.SQLite.PoolSize, app.DBLogger)
		if err != nil {
			app.Cleanup(ctx)
			return nil, err
		}

		app.SQLite = store
		app.Events = store
	default:
		db, err := checkAndRunMigrations(ctx, &cfg.PostgreSQL, app.DBLogger, opts.AutoMigrate)
		if err != nil {
			app.Cleanup(ctx)
			return nil, err
		}

		app.DB = db
		app.Events = db.Model().Reaction()
	}

	// Redis manager provides connection pools for various subsystems
	app.RedisManager = redis.NewManager(&cfg.Redis, logger)

	for _, c := range []struct {
		dbIndex int
		target  *rueidis.Client
	}{
		{redis.CountsDBIndex, &app.CountsClient},
		{redis.StatsDBIndex, &app.StatsClient},
		{redis.WorkerStatusDBIndex, &app.StatusClient},
		{redis.RatelimitDBIndex, &app.LimitClient},
	} {
		client, err := app.RedisManager.GetClient(c.dbIndex)
		if err != nil {
			app.Cleanup(ctx)
			return nil, err
		}

		*c.target = client
	}

	logger.Info("Application initialized",
		zap.String("service", serviceType.String()),
		zap.String("storage", cfg.Storage.Driver))

	return app, nil
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(ctx context.Context) {
	// Close Redis connections
	if s.RedisManager != nil {
		s.RedisManager.Close()
	}

	// Close event stores
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Printf("Failed to close database connection: %v", err)
		}
	}

	if s.SQLite != nil {
		if err := s.SQLite.Close(); err != nil {
			log.Printf("Failed to close sqlite store: %v", err)
		}
	}

	// Flush pending spans
	if s.shutdown != nil {
		s.shutdown(ctx)
	}

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	s.LogManager.Close()
}

// checkAndRunMigrations runs database migrations if needed.
func checkAndRunMigrations(
	ctx context.Context, cfg *config.PostgreSQL, dbLogger *zap.Logger, autoMigrate bool,
) (database.Client, error) {
	if autoMigrate {
		return database.NewConnection(ctx, cfg, dbLogger, true)
	}

	tempDB, err := database.NewConnection(ctx, cfg, dbLogger, false)
	if err != nil {
		return nil, err
	}

	migrator := migrate.NewMigrator(tempDB.DB(), migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		tempDB.Close()
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		tempDB.Close()
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}

	unapplied := ms.Unapplied()
	if len(unapplied) == 0 {
		return tempDB, nil
	}

	log.Println("Database migrations are pending. Would you like to run them now? (y/N)")

	var response string

	_, _ = fmt.Scanln(&response)

	if response != "y" && response != "Y" {
		tempDB.Close()
		return nil, fmt.Errorf("%w: %d unapplied", ErrMigrationsPending, len(unapplied))
	}

	if err := database.RunMigrations(ctx, tempDB.DB(), dbLogger); err != nil {
		tempDB.Close()
		return nil, err
	}

	return tempDB, nil
}
