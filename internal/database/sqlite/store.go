package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/reactor/internal/database/types"
	"github.com/robalyx/reactor/internal/database/types/enum"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS reaction_events (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT    NOT NULL UNIQUE,
	target_kind TEXT    NOT NULL,
	target_id   TEXT    NOT NULL,
	emoji       TEXT    NOT NULL,
	fingerprint TEXT    NOT NULL,
	action      TEXT    NOT NULL CHECK (action IN ('add', 'remove')),
	created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reaction_events_latest
ON reaction_events (target_kind, target_id, fingerprint, emoji, created_at DESC, seq DESC);

CREATE INDEX IF NOT EXISTS idx_reaction_events_created
ON reaction_events (created_at);
`

// Store is an Event Store backed by an embedded SQLite database.
// Timestamps are stored as unix milliseconds.
type Store struct {
	pool   *sqlitex.Pool
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp appended events.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string, poolSize int, logger *zap.Logger, opts ...Option) (*Store, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteTransient(conn, "PRAGMA busy_timeout = 5000;", nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database %s: %w", path, err)
	}

	store := &Store{
		pool:   pool,
		now:    time.Now,
		logger: logger.Named("sqlite_store"),
	}
	for _, opt := range opts {
		opt(store)
	}

	conn, err := pool.Take(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to take SQLite connection: %w", err)
	}
	defer pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply SQLite schema: %w", err)
	}

	store.logger.Info("SQLite event store ready", zap.String("path", path), zap.Int("poolSize", poolSize))

	return store, nil
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Append durably records one reaction event.
func (s *Store) Append(
	ctx context.Context, target types.ReactionTarget, emoji, fingerprint string, action enum.ReactionAction,
) (*types.ReactionEvent, error) {
	event := &types.ReactionEvent{
		ID:          uuid.New(),
		TargetKind:  target.Kind,
		TargetID:    target.ID,
		Emoji:       emoji,
		Fingerprint: fingerprint,
		Action:      action,
		CreatedAt:   s.now().UTC().Truncate(time.Millisecond),
	}

	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			INSERT INTO reaction_events (id, target_kind, target_id, emoji, fingerprint, action, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{
					event.ID.String(),
					event.TargetKind.String(),
					event.TargetID,
					event.Emoji,
					event.Fingerprint,
					event.Action.String(),
					event.CreatedAt.UnixMilli(),
				},
			})
		if err != nil {
			return err
		}

		event.Seq = conn.LastInsertRowID()

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append reaction event for %s: %w", target.Key(), err)
	}

	return event, nil
}

// LatestAction returns the action of the most recent event for the triple,
// or an empty action when none exists.
func (s *Store) LatestAction(
	ctx context.Context, target types.ReactionTarget, fingerprint, emoji string,
) (enum.ReactionAction, error) {
	var action enum.ReactionAction

	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT action FROM reaction_events
			WHERE target_kind = ? AND target_id = ? AND fingerprint = ? AND emoji = ?
			ORDER BY created_at DESC, seq DESC
			LIMIT 1`,
			&sqlitex.ExecOptions{
				Args: []any{target.Kind.String(), target.ID, fingerprint, emoji},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					action = enum.ReactionAction(stmt.ColumnText(0))
					return nil
				},
			})
	})
	if err != nil {
		return "", fmt.Errorf("failed to get latest action for %s: %w", target.Key(), err)
	}

	return action, nil
}

// LatestActionsByFingerprint returns the latest action per emoji for the
// fingerprint on the target.
func (s *Store) LatestActionsByFingerprint(
	ctx context.Context, target types.ReactionTarget, fingerprint string,
) (map[string]enum.ReactionAction, error) {
	actions := make(map[string]enum.ReactionAction)

	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT emoji, action FROM (
				SELECT emoji, action, ROW_NUMBER() OVER (
					PARTITION BY emoji ORDER BY created_at DESC, seq DESC
				) AS rn
				FROM reaction_events
				WHERE target_kind = ? AND target_id = ? AND fingerprint = ?
			) WHERE rn = 1`,
			&sqlitex.ExecOptions{
				Args: []any{target.Kind.String(), target.ID, fingerprint},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					actions[stmt.ColumnText(0)] = enum.ReactionAction(stmt.ColumnText(1))
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get latest actions for %s: %w", target.Key(), err)
	}

	return actions, nil
}

// Aggregate counts, per target and emoji, the fingerprints whose latest event
// at or after since is an add. Zero-count rows are kept.
func (s *Store) Aggregate(ctx context.Context, since time.Time) ([]types.ReactionAggregate, error) {
	var rows []types.ReactionAggregate

	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT target_kind, target_id, emoji,
				SUM(CASE WHEN action = 'add' THEN 1 ELSE 0 END) AS cnt
			FROM (
				SELECT target_kind, target_id, emoji, action, ROW_NUMBER() OVER (
					PARTITION BY target_kind, target_id, fingerprint, emoji
					ORDER BY created_at DESC, seq DESC
				) AS rn
				FROM reaction_events
				WHERE created_at >= ?
			)
			WHERE rn = 1
			GROUP BY target_kind, target_id, emoji
			ORDER BY target_kind, target_id, emoji`,
			&sqlitex.ExecOptions{
				Args: []any{since.UnixMilli()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					rows = append(rows, types.ReactionAggregate{
						TargetKind: enum.TargetKind(stmt.ColumnText(0)),
						TargetID:   stmt.ColumnText(1),
						Emoji:      stmt.ColumnText(2),
						Count:      stmt.ColumnInt(3),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate reaction events: %w", err)
	}

	return rows, nil
}

// withConn borrows a pooled connection for the duration of fn.
func (s *Store) withConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("failed to take SQLite connection: %w", err)
	}
	defer s.pool.Put(conn)

	return fn(conn)
}
