package rest

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/robalyx/reactor/internal/ratelimit"
	"github.com/robalyx/reactor/internal/reaction"
	"github.com/robalyx/reactor/internal/reconcile"
	"github.com/robalyx/reactor/internal/rest/handler"
	"github.com/robalyx/reactor/internal/rest/middleware"
	"github.com/robalyx/reactor/internal/setup/config"
	"github.com/robalyx/reactor/internal/stats"
	"github.com/robalyx/reactor/internal/worker/core"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Dependencies are the services the router exposes.
type Dependencies struct {
	Engine     *reaction.Engine
	Limiter    *ratelimit.Limiter
	Anomalies  *reconcile.AnomalyStore
	Statistics *stats.Statistics
	Monitor    *core.Monitor
	Pinger     handler.Pinger
}

// NewRouter builds the gin engine serving the reaction API.
func NewRouter(
	cfg *config.Config, deps *Dependencies, serviceName string, logger *zap.Logger,
) (*gin.Engine, error) {
	router := gin.New()

	// Client IP resolution for fingerprints
	router.RemoteIPHeaders = cfg.Server.ClientIPHeaders
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	reactionHandler := handler.NewReactionHandler(deps.Engine, deps.Anomalies, deps.Statistics, logger)
	healthHandler := handler.NewHealthHandler(deps.Pinger, deps.Monitor, logger)

	router.Use(
		gin.Recovery(),
		otelgin.Middleware(serviceName),
		middleware.RequestLogger(logger),
		middleware.CORS(cfg.Server.CORSOrigins),
		middleware.Fingerprint(cfg.Reaction.FingerprintSecret),
	)

	api := router.Group("/api")
	api.GET("/health", healthHandler.Check)

	reactions := api.Group("/reactions")
	{
		reactions.POST("/query", reactionHandler.Query)
		reactions.GET("/:kind/:id", reactionHandler.Get)
		reactions.POST("/:kind/:id",
			middleware.RateLimit(deps.Limiter, ratelimit.ClassReaction, logger),
			reactionHandler.Toggle)
	}

	admin := reactions.Group("", middleware.AdminToken(cfg.Server.AdminToken))
	{
		admin.GET("/anomalies", reactionHandler.Anomalies)
		admin.GET("/stats", reactionHandler.Stats)
	}

	return router, nil
}
