package reaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robalyx/reactor/internal/database/types"
	"github.com/robalyx/reactor/internal/database/types/enum"
	"github.com/robalyx/reactor/internal/setup/config"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// QueryConcurrency caps the parallel cache reads of a bulk query.
const QueryConcurrency = 16

// EventStore is the append-only log the engine reads and writes.
type EventStore interface {
	Append(
		ctx context.Context, target types.ReactionTarget, emoji, fingerprint string, action enum.ReactionAction,
	) (*types.ReactionEvent, error)
	LatestAction(ctx context.Context, target types.ReactionTarget, fingerprint, emoji string) (enum.ReactionAction, error)
	LatestActionsByFingerprint(
		ctx context.Context, target types.ReactionTarget, fingerprint string,
	) (map[string]enum.ReactionAction, error)
}

// ActivityRecorder receives every applied action.
type ActivityRecorder interface {
	RecordAction(ctx context.Context, action enum.ReactionAction) error
}

// ToggleResult is the outcome of a toggle.
type ToggleResult struct {
	Counts types.ReactionCounts `json:"counts"`
	Action enum.ReactionAction  `json:"action"`
	Event  *types.ReactionEvent `json:"-"`
}

// QueryResult is the read-only view of a target for one caller.
type QueryResult struct {
	Counts  types.ReactionCounts `json:"counts"`
	Reacted []string             `json:"reacted"`
}

// Engine applies reaction intents to the event log and the counter cache.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	store    EventStore
	cache    *CounterCache
	palette  *Palette
	timeout  time.Duration
	recorder ActivityRecorder
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithActivityRecorder reports applied actions to recorder on a best-effort basis.
func WithActivityRecorder(recorder ActivityRecorder) EngineOption {
	return func(e *Engine) {
		e.recorder = recorder
	}
}

// NewEngine creates an Engine from the reaction configuration.
func NewEngine(
	store EventStore, cache *CounterCache, cfg *config.Reaction, logger *zap.Logger, opts ...EngineOption,
) *Engine {
	engine := &Engine{
		store:   store,
		cache:   cache,
		palette: NewPalette(cfg.Emojis),
		timeout: cfg.StoreTimeout(),
		logger:  logger.Named("reaction_engine"),
	}
	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Palette returns the allowed emoji set.
func (e *Engine) Palette() *Palette {
	return e.palette
}

// Toggle applies a reaction intent. An empty explicit action flips the
// caller's latest action; add or remove is applied as given.
//
// The event is appended before the cache is written, so the log is never
// behind the displayed counts. A failed cache write is logged and left for
// reconciliation.
func (e *Engine) Toggle(
	ctx context.Context, target types.ReactionTarget, rawEmoji, fingerprint string, explicit enum.ReactionAction,
) (*ToggleResult, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	if explicit != "" && !explicit.IsAReactionAction() {
		return nil, fmt.Errorf("%w: %q", enum.ErrInvalidAction, explicit)
	}

	emoji, err := e.palette.Resolve(rawEmoji)
	if err != nil {
		return nil, err
	}

	// Read current counts and the caller's latest action
	counts := e.palette.Normalize(e.cache.Get(ctx, target))

	latest, err := e.latestAction(ctx, target, fingerprint, emoji)
	if err != nil {
		return nil, err
	}

	action := ResolveAction(latest, explicit)
	counts.Apply(emoji, action)

	// Persist the event first
	event, err := e.append(ctx, target, emoji, fingerprint, action)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Put(ctx, target, counts); err != nil {
		e.logger.Warn("Failed to write counts after append",
			zap.String("target", target.Key()),
			zap.String("emoji", emoji),
			zap.Error(err))
	}

	if e.recorder != nil {
		if err := e.recorder.RecordAction(ctx, action); err != nil {
			e.logger.Debug("Failed to record activity", zap.Error(err))
		}
	}

	e.logger.Debug("Toggled reaction",
		zap.String("target", target.Key()),
		zap.String("emoji", emoji),
		zap.String("previous", latest.String()),
		zap.String("action", action.String()))

	return &ToggleResult{Counts: counts, Action: action, Event: event}, nil
}

// Query returns the normalized counts of a target and the emoji the caller
// currently reacts with, in palette order.
func (e *Engine) Query(ctx context.Context, target types.ReactionTarget, fingerprint string) (*QueryResult, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	counts := e.palette.Normalize(e.cache.Get(ctx, target))

	storeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	actions, err := e.store.LatestActionsByFingerprint(storeCtx, target, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to query reactions: %w", err)
	}

	reacted := make([]string, 0, len(actions))
	for emoji, action := range actions {
		if action == enum.ReactionActionAdd {
			reacted = append(reacted, emoji)
		}
	}

	e.palette.Sort(reacted)

	return &QueryResult{Counts: counts, Reacted: reacted}, nil
}

// QueryMany reads the cached counts of every target in parallel, keyed by
// target key. Counts are returned as stored, without palette normalization.
func (e *Engine) QueryMany(ctx context.Context, targets []types.ReactionTarget) map[string]types.ReactionCounts {
	var mu sync.Mutex

	results := make(map[string]types.ReactionCounts, len(targets))

	p := pool.New().WithMaxGoroutines(QueryConcurrency)
	for _, target := range targets {
		p.Go(func() {
			counts := e.cache.Get(ctx, target)

			mu.Lock()
			results[target.Key()] = counts
			mu.Unlock()
		})
	}

	p.Wait()

	return results
}

// ResolveAction decides the action to apply given the latest recorded one.
func ResolveAction(latest, explicit enum.ReactionAction) enum.ReactionAction {
	if explicit != "" {
		return explicit
	}

	// No prior event toggles to add
	return latest.Opposite()
}

func (e *Engine) latestAction(
	ctx context.Context, target types.ReactionTarget, fingerprint, emoji string,
) (enum.ReactionAction, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	latest, err := e.store.LatestAction(ctx, target, fingerprint, emoji)
	if err != nil {
		return "", fmt.Errorf("failed to read latest action: %w", err)
	}

	return latest, nil
}

func (e *Engine) append(
	ctx context.Context, target types.ReactionTarget, emoji, fingerprint string, action enum.ReactionAction,
) (*types.ReactionEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	event, err := e.store.Append(ctx, target, emoji, fingerprint, action)
	if err != nil {
		return nil, fmt.Errorf("failed to record reaction: %w", err)
	}

	return event, nil
}
