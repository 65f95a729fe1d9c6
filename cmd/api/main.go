package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robalyx/reactor/internal/rest"
	"github.com/robalyx/reactor/internal/setup"
	"github.com/robalyx/reactor/internal/setup/telemetry"
	"github.com/robalyx/reactor/internal/worker/core"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// APILogDir specifies where API server log files are stored.
const APILogDir = "logs/api_logs"

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "api",
		Usage: "Start the reaction API server",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "auto-migrate",
				Usage: "Apply pending database migrations without prompting",
			},
			&cli.BoolFlag{
				Name:  "embedded-worker",
				Usage: "Run the reconciliation scheduler inside the server process",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, c.Bool("auto-migrate"), c.Bool("embedded-worker"))
		},
	}

	return app.Run(context.Background(), os.Args)
}

// serve runs the HTTP server, and the reconciliation worker when embedded,
// until a termination signal arrives.
func serve(ctx context.Context, autoMigrate, embeddedWorker bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize application with required dependencies
	app, err := setup.InitializeApp(ctx, telemetry.ServiceAPI, setup.Options{
		LogDir:      APILogDir,
		AutoMigrate: autoMigrate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.WithoutCancel(ctx))

	cfg := app.Config

	if cfg.Debug.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	statistics := app.Statistics()

	router, err := rest.NewRouter(cfg, &rest.Dependencies{
		Engine:     app.ReactionEngine(statistics),
		Limiter:    app.RateLimiter(),
		Anomalies:  app.AnomalyStore(),
		Statistics: statistics,
		Monitor:    core.NewMonitor(app.StatusClient, app.Logger),
		Pinger:     app.RedisManager,
	}, cfg.Telemetry.ServiceName, app.Logger)
	if err != nil {
		return err
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Logger.Info("API server started", zap.String("addr", srv.Addr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}

		return nil
	})

	if embeddedWorker || cfg.Reconcile.Embedded {
		worker := app.ReconcileWorker()

		g.Go(func() error {
			return worker.Start(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		app.Logger.Info("Shutting down API server...")

		// Create shutdown context with timeout
		shutdownCtx, cancel := context.WithTimeout(
			context.WithoutCancel(gctx), time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
		)
		defer cancel()

		// Attempt graceful shutdown
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error("Server forced to shutdown", zap.Error(err))
			return err
		}

		app.Logger.Info("Server gracefully stopped")

		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
