package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/reactor/internal/database/dbretry"
	"github.com/robalyx/reactor/internal/database/types"
	"github.com/robalyx/reactor/internal/database/types/enum"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ReactionModel handles database operations for the reaction event log.
type ReactionModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewReaction creates a ReactionModel for the reaction_events table.
func NewReaction(db *bun.DB, logger *zap.Logger) *ReactionModel {
	return &ReactionModel{
		db:     db,
		logger: logger.Named("db_reaction"),
	}
}

// Append durably records one reaction event. The event id is fixed before the
// first attempt so a retried insert that already landed is not duplicated.
func (r *ReactionModel) Append(
	ctx context.Context, target types.ReactionTarget, emoji, fingerprint string, action enum.ReactionAction,
) (*types.ReactionEvent, error) {
	event := &types.ReactionEvent{
		ID:          uuid.New(),
		TargetKind:  target.Kind,
		TargetID:    target.ID,
		Emoji:       emoji,
		Fingerprint: fingerprint,
		Action:      action,
		CreatedAt:   time.Now().UTC(),
	}

	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().
			Model(event).
			ExcludeColumn("seq").
			On("CONFLICT (id) DO NOTHING").
			Returning("NULL").
			Exec(ctx)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append reaction event for %s: %w", target.Key(), err)
	}

	r.logger.Debug("Appended reaction event",
		zap.String("target", target.Key()),
		zap.String("emoji", emoji),
		zap.String("action", action.String()))

	return event, nil
}

// LatestAction returns the action of the most recent event for the exact
// target, fingerprint and emoji. An empty action means no event exists.
func (r *ReactionModel) LatestAction(
	ctx context.Context, target types.ReactionTarget, fingerprint, emoji string,
) (enum.ReactionAction, error) {
	var event types.ReactionEvent

	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(&event).
			Column("action").
			Where("target_kind = ?", target.Kind).
			Where("target_id = ?", target.ID).
			Where("fingerprint = ?", fingerprint).
			Where("emoji = ?", emoji).
			OrderExpr("created_at DESC, seq DESC").
			Limit(1).
			Scan(ctx)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}

		return "", fmt.Errorf("failed to get latest action for %s: %w", target.Key(), err)
	}

	return event.Action, nil
}

// LatestActionsByFingerprint returns the latest action for every emoji the
// fingerprint has touched on the target.
func (r *ReactionModel) LatestActionsByFingerprint(
	ctx context.Context, target types.ReactionTarget, fingerprint string,
) (map[string]enum.ReactionAction, error) {
	events, err := dbretry.Operation(ctx, func(ctx context.Context) ([]types.ReactionEvent, error) {
		var events []types.ReactionEvent

		err := r.latestActionsByFingerprintQuery(target, fingerprint, &events).Scan(ctx)

		return events, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get latest actions for %s: %w", target.Key(), err)
	}

	actions := make(map[string]enum.ReactionAction, len(events))
	for _, event := range events {
		actions[event.Emoji] = event.Action
	}

	return actions, nil
}

// Aggregate counts, per target and emoji, the fingerprints whose latest event
// at or after since is an add. Triples whose latest event is a remove still
// yield a row with a zero count so reconciliation can clear stale entries.
func (r *ReactionModel) Aggregate(ctx context.Context, since time.Time) ([]types.ReactionAggregate, error) {
	rows, err := dbretry.Operation(ctx, func(ctx context.Context) ([]types.ReactionAggregate, error) {
		var rows []types.ReactionAggregate

		err := r.aggregateQuery(since).Scan(ctx, &rows)

		return rows, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate reaction events: %w", err)
	}

	r.logger.Debug("Aggregated reaction events",
		zap.Time("since", since),
		zap.Int("rows", len(rows)))

	return rows, nil
}

// latestActionsByFingerprintQuery selects one row per emoji holding the
// newest action of the fingerprint on the target.
func (r *ReactionModel) latestActionsByFingerprintQuery(
	target types.ReactionTarget, fingerprint string, events *[]types.ReactionEvent,
) *bun.SelectQuery {
	return r.db.NewSelect().
		Model(events).
		DistinctOn("emoji").
		Column("emoji", "action").
		Where("target_kind = ?", target.Kind).
		Where("target_id = ?", target.ID).
		Where("fingerprint = ?", fingerprint).
		OrderExpr("emoji, created_at DESC, seq DESC")
}

// aggregateQuery reduces the window to the newest event per triple, then
// counts the adds per target and emoji.
func (r *ReactionModel) aggregateQuery(since time.Time) *bun.SelectQuery {
	latest := r.db.NewSelect().
		Model((*types.ReactionEvent)(nil)).
		DistinctOn("target_kind, target_id, fingerprint, emoji").
		Column("target_kind", "target_id", "emoji", "action").
		Where("created_at >= ?", since).
		OrderExpr("target_kind, target_id, fingerprint, emoji, created_at DESC, seq DESC")

	return r.db.NewSelect().
		TableExpr("(?) AS latest", latest).
		ColumnExpr("latest.target_kind, latest.target_id, latest.emoji").
		ColumnExpr("COUNT(*) FILTER (WHERE latest.action = ?) AS count", enum.ReactionActionAdd).
		GroupExpr("latest.target_kind, latest.target_id, latest.emoji").
		OrderExpr("latest.target_kind, latest.target_id, latest.emoji")
}
