package migrations

import (
	"context"
	"fmt"

	"github.com/robalyx/reactor/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewCreateTable().
			Model((*types.ReactionEvent)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create reaction_events table: %w", err)
		}

		_, err = db.NewRaw(`
			-- Latest action per target, fingerprint and emoji
			CREATE INDEX IF NOT EXISTS idx_reaction_events_latest
			ON reaction_events (target_kind, target_id, fingerprint, emoji, created_at DESC, seq DESC);

			-- Reconciliation window scans
			CREATE INDEX IF NOT EXISTS idx_reaction_events_created
			ON reaction_events (created_at);

			ALTER TABLE reaction_events
			DROP CONSTRAINT IF EXISTS reaction_events_action_check;

			ALTER TABLE reaction_events
			ADD CONSTRAINT reaction_events_action_check CHECK (action IN ('add', 'remove'));
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create reaction_events indexes: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewDropTable().
			Model((*types.ReactionEvent)(nil)).
			IfExists().
			Cascade().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop reaction_events table: %w", err)
		}

		return nil
	})
}
