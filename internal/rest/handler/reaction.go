package handler

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/robalyx/reactor/internal/database/types"
	"github.com/robalyx/reactor/internal/database/types/enum"
	"github.com/robalyx/reactor/internal/reaction"
	"github.com/robalyx/reactor/internal/reconcile"
	"github.com/robalyx/reactor/internal/rest/middleware"
	"github.com/robalyx/reactor/internal/rest/response"
	"github.com/robalyx/reactor/internal/stats"
	"go.uber.org/zap"
)

// MaxQueryTargets bounds the targets of one bulk query.
const MaxQueryTargets = 100

// actionToggle is the explicit form of the default intent.
const actionToggle = "toggle"

// UserState is the caller's view of a target.
type UserState struct {
	Reacted []string `json:"reacted"`
}

// ReactionView is the body of a single-target read.
type ReactionView struct {
	Counts types.ReactionCounts `json:"counts"`
	User   UserState            `json:"user"`
}

// ToggleView is the body of a single-target write.
type ToggleView struct {
	Counts types.ReactionCounts `json:"counts"`
	Action enum.ReactionAction  `json:"action"`
	User   UserState            `json:"user"`
}

// ToggleRequest is the body of a reaction write.
type ToggleRequest struct {
	Emoji  string `json:"emoji"`
	Action string `json:"action"`
}

// QueryTarget is one target of a bulk query.
type QueryTarget struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// QueryRequest is the body of a bulk query.
type QueryRequest struct {
	Targets []QueryTarget `json:"targets"`
}

// ReactionHandler serves the reaction endpoints.
type ReactionHandler struct {
	engine    *reaction.Engine
	anomalies *reconcile.AnomalyStore
	stats     *stats.Statistics
	logger    *zap.Logger
}

// NewReactionHandler creates a ReactionHandler.
func NewReactionHandler(
	engine *reaction.Engine, anomalies *reconcile.AnomalyStore, statistics *stats.Statistics, logger *zap.Logger,
) *ReactionHandler {
	return &ReactionHandler{
		engine:    engine,
		anomalies: anomalies,
		stats:     statistics,
		logger:    logger.Named("reaction_handler"),
	}
}

// Get returns the counts of a target and the emoji the caller reacted with.
func (h *ReactionHandler) Get(c *gin.Context) {
	target, err := types.NewReactionTarget(c.Param("kind"), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	result, err := h.engine.Query(c.Request.Context(), target, middleware.FingerprintFrom(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.OK(c, ReactionView{
		Counts: result.Counts,
		User:   UserState{Reacted: result.Reacted},
	})
}

// Toggle applies a reaction intent for the caller.
func (h *ReactionHandler) Toggle(c *gin.Context) {
	target, err := types.NewReactionTarget(c.Param("kind"), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, "invalid JSON body")
		return
	}

	explicit, err := parseAction(req.Action)
	if err != nil {
		response.FromError(c, err)
		return
	}

	result, err := h.engine.Toggle(c.Request.Context(), target, req.Emoji, middleware.FingerprintFrom(c), explicit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	reacted := []string{}
	if result.Action == enum.ReactionActionAdd {
		reacted = append(reacted, result.Event.Emoji)
	}

	response.OK(c, ToggleView{
		Counts: result.Counts,
		Action: result.Action,
		User:   UserState{Reacted: reacted},
	})
}

// Query returns the cached counts of many targets keyed by "kind:id".
func (h *ReactionHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, "invalid JSON body")
		return
	}

	if req.Targets == nil {
		response.InvalidRequest(c, "targets required")
		return
	}

	if len(req.Targets) > MaxQueryTargets {
		response.InvalidRequest(c, fmt.Sprintf("at most %d targets per query", MaxQueryTargets))
		return
	}

	targets := make([]types.ReactionTarget, 0, len(req.Targets))
	for _, t := range req.Targets {
		target, err := types.NewReactionTarget(t.Kind, t.ID)
		if err != nil {
			response.FromError(c, err)
			return
		}

		targets = append(targets, target)
	}

	response.OK(c, h.engine.QueryMany(c.Request.Context(), targets))
}

// Anomalies returns the last stored anomaly record, or null.
func (h *ReactionHandler) Anomalies(c *gin.Context) {
	record, err := h.anomalies.Last(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.OK(c, record)
}

// Stats returns the hourly reaction activity of the last day.
func (h *ReactionHandler) Stats(c *gin.Context) {
	hourly, err := h.stats.GetHourlyStats(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.OK(c, hourly)
}

// parseAction maps the request action to an explicit action. Toggle and
// empty map to no explicit action.
func parseAction(raw string) (enum.ReactionAction, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == actionToggle {
		return "", nil
	}

	return enum.ReactionActionString(raw)
}
