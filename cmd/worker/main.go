package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robalyx/reactor/internal/setup"
	"github.com/robalyx/reactor/internal/setup/telemetry"
	reconcileWorker "github.com/robalyx/reactor/internal/worker/reconcile"
	"github.com/robalyx/reactor/pkg/utils"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const (
	// WorkerLogDir specifies where worker log files are stored.
	WorkerLogDir = "logs/worker_logs"

	// ReconcileWorker rebuilds cached counts from the event log.
	ReconcileWorker = "reconcile"

	// restartDelay is the pause before a crashed worker is restarted.
	restartDelay = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "worker",
		Usage: "Start the reactor worker",
		Commands: []*cli.Command{
			{
				Name:  ReconcileWorker,
				Usage: "Start the reconciliation worker",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "once",
						Usage: "Run a single reconciliation and exit",
					},
					&cli.BoolFlag{
						Name:  "auto-migrate",
						Usage: "Apply pending database migrations without prompting",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runReconcile(ctx, c.Bool("once"), c.Bool("auto-migrate"))
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// runReconcile runs the reconciliation worker until a termination signal, or
// a single pass when once is set.
func runReconcile(ctx context.Context, once, autoMigrate bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, setup.Options{
		LogDir:      WorkerLogDir,
		AutoMigrate: autoMigrate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.WithoutCancel(ctx))

	worker := app.ReconcileWorker()

	if once {
		report, err := worker.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("reconciliation failed: %w", err)
		}

		app.Logger.Info("Reconciliation finished",
			zap.Int("targets", report.Targets),
			zap.Int("written", report.Written),
			zap.Int("anomalies", len(report.Anomalies)),
			zap.Duration("duration", report.Duration))

		return nil
	}

	runWorker(ctx, worker, app.Logger)

	return nil
}

// runWorker runs a single worker in a loop with error recovery.
func runWorker(ctx context.Context, w *reconcileWorker.Worker, logger *zap.Logger) {
	for {
		if utils.ContextGuard(ctx) {
			logger.Info("Context cancelled, stopping worker")
			return
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Worker execution failed", zap.Any("panic", r))
				}
			}()

			logger.Info("Starting worker")

			if err := w.Start(ctx); err != nil {
				logger.Error("Worker stopped with error", zap.Error(err))
			}
		}()

		if utils.ContextGuard(ctx) {
			return
		}

		if !utils.RestartSleep(ctx, restartDelay, logger, ReconcileWorker) {
			return
		}
	}
}
