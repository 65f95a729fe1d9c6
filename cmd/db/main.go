package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/robalyx/reactor/internal/database"
	"github.com/robalyx/reactor/internal/database/migrations"
	"github.com/robalyx/reactor/internal/setup/config"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var (
	ErrNameRequired = errors.New("NAME argument required")
	ErrPostgresOnly = errors.New("migrations only apply to the postgres storage driver")
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

// migrationTool runs migration commands against the reaction event store.
type migrationTool struct {
	db       database.Client
	migrator *migrate.Migrator
	logger   *zap.Logger
}

func run() error {
	ctx := context.Background()

	tool, err := newMigrationTool(ctx)
	if err != nil {
		return fmt.Errorf("failed to setup migrator: %w", err)
	}
	defer tool.db.Close()

	app := &cli.Command{
		Name:  "db",
		Usage: "Reaction event store management tool",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Initialize migration tables",
				Action: tool.init,
			},
			{
				Name:   "migrate",
				Usage:  "Run pending migrations",
				Action: tool.migrate,
			},
			{
				Name:   "rollback",
				Usage:  "Rollback the last migration group",
				Action: tool.rollback,
			},
			{
				Name:   "status",
				Usage:  "Show applied and pending migrations",
				Action: tool.status,
			},
			{
				Name:   "unlock",
				Usage:  "Release a migration lock left by an interrupted run",
				Action: tool.unlock,
			},
			{
				Name:      "create",
				Usage:     "Create a new Go migration file",
				ArgsUsage: "NAME",
				Action:    tool.create,
			},
		},
	}

	return app.Run(ctx, os.Args)
}

// newMigrationTool loads the configuration and connects to Postgres without
// applying migrations.
func newMigrationTool(ctx context.Context) (*migrationTool, error) {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Storage.Driver != config.StorageDriverPostgres {
		return nil, ErrPostgresOnly
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := database.NewConnection(ctx, &cfg.PostgreSQL, logger, false)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &migrationTool{
		db:       db,
		migrator: migrate.NewMigrator(db.DB(), migrations.Migrations),
		logger:   logger,
	}, nil
}

func (t *migrationTool) init(ctx context.Context, _ *cli.Command) error {
	if err := t.migrator.Init(ctx); err != nil {
		return err
	}

	t.logger.Info("Migration tables ready")

	return nil
}

func (t *migrationTool) migrate(ctx context.Context, _ *cli.Command) error {
	pending, err := t.pending(ctx)
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		t.logger.Info("No new migrations to run (database is up to date)")
		return nil
	}

	if err := database.RunMigrations(ctx, t.db.DB(), t.logger); err != nil {
		return err
	}

	t.logger.Info("Applied migrations", zap.Strings("migrations", pending))

	return nil
}

func (t *migrationTool) rollback(ctx context.Context, _ *cli.Command) error {
	if err := t.migrator.Lock(ctx); err != nil {
		return err
	}
	defer t.migrator.Unlock(ctx) //nolint:errcheck

	group, err := t.migrator.Rollback(ctx)
	if err != nil {
		return err
	}

	if group.IsZero() {
		t.logger.Info("No groups to roll back")
		return nil
	}

	t.logger.Info("Rolled back migration group", zap.String("group", group.String()))

	return nil
}

func (t *migrationTool) status(ctx context.Context, _ *cli.Command) error {
	if err := t.migrator.Init(ctx); err != nil {
		return err
	}

	ms, err := t.migrator.MigrationsWithStatus(ctx)
	if err != nil {
		return err
	}

	for _, m := range ms {
		t.logger.Info("Migration",
			zap.String("name", m.Name),
			zap.String("comment", m.Comment),
			zap.Bool("applied", m.IsApplied()),
			zap.Int64("group", m.GroupID))
	}

	t.logger.Info("Migration summary",
		zap.Int("total", len(ms)),
		zap.Int("pending", len(ms.Unapplied())),
		zap.String("lastGroup", ms.LastGroup().String()))

	return nil
}

func (t *migrationTool) unlock(ctx context.Context, _ *cli.Command) error {
	if err := t.migrator.Unlock(ctx); err != nil {
		return err
	}

	t.logger.Warn("Migration lock released")

	return nil
}

func (t *migrationTool) create(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return ErrNameRequired
	}

	mf, err := t.migrator.CreateGoMigration(ctx, c.Args().First())
	if err != nil {
		return err
	}

	t.logger.Info("Created Go migration",
		zap.String("name", mf.Name),
		zap.String("path", mf.Path))

	return nil
}

// pending lists the names of migrations not yet applied.
func (t *migrationTool) pending(ctx context.Context) ([]string, error) {
	if err := t.migrator.Init(ctx); err != nil {
		return nil, err
	}

	ms, err := t.migrator.MigrationsWithStatus(ctx)
	if err != nil {
		return nil, err
	}

	unapplied := ms.Unapplied()
	names := make([]string, 0, len(unapplied))

	for _, m := range unapplied {
		names = append(names, m.Name)
	}

	return names, nil
}
