package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robalyx/reactor/internal/rest/response"
	"github.com/robalyx/reactor/internal/worker/core"
	"go.uber.org/zap"
)

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WorkerHealth is a worker status annotated with staleness.
type WorkerHealth struct {
	core.Status

	Stale bool `json:"stale"`
}

// Health is the body of the health endpoint.
type Health struct {
	OK      bool           `json:"ok"`
	Workers []WorkerHealth `json:"workers"`
}

// HealthHandler reports service and worker health.
type HealthHandler struct {
	pinger  Pinger
	monitor *core.Monitor
	logger  *zap.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(pinger Pinger, monitor *core.Monitor, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		pinger:  pinger,
		monitor: monitor,
		logger:  logger.Named("health_handler"),
	}
}

// Check returns ok when Redis answers, along with the known workers.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()
	health := Health{OK: true, Workers: []WorkerHealth{}}

	if err := h.pinger.Ping(ctx); err != nil {
		h.logger.Warn("Health check failed", zap.Error(err))
		health.OK = false
	}

	if health.OK {
		statuses, err := h.monitor.GetAllStatuses(ctx)
		if err != nil {
			h.logger.Warn("Failed to read worker statuses", zap.Error(err))
		}

		now := time.Now()
		for _, status := range statuses {
			health.Workers = append(health.Workers, WorkerHealth{Status: status, Stale: status.IsStale(now)})
		}
	}

	if !health.OK {
		c.JSON(http.StatusServiceUnavailable, response.DataEnvelope{Data: health})
		return
	}

	response.OK(c, health)
}
