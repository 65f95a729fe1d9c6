package telemetry

import (
	"context"

	"github.com/robalyx/reactor/internal/setup/config"
	"github.com/uptrace/uptrace-go/uptrace"
	"go.uber.org/zap"
)

// ConfigureTracing installs the Uptrace OpenTelemetry exporters when a DSN is
// configured. The returned function flushes and shuts them down.
func ConfigureTracing(cfg *config.Telemetry, serviceType ServiceType, logger *zap.Logger) func(context.Context) {
	if cfg.UptraceDSN == "" {
		logger.Debug("Tracing disabled, no Uptrace DSN configured")
		return func(context.Context) {}
	}

	uptrace.ConfigureOpentelemetry(
		uptrace.WithDSN(cfg.UptraceDSN),
		uptrace.WithServiceName(cfg.ServiceName+"-"+serviceType.String()),
		uptrace.WithDeploymentEnvironment(cfg.Environment),
	)

	logger.Info("Tracing enabled",
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment))

	return func(ctx context.Context) {
		if err := uptrace.Shutdown(ctx); err != nil {
			logger.Error("Failed to shut down tracing", zap.Error(err))
		}
	}
}
