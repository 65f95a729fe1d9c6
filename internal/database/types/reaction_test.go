package types_test

import (
	"strings"
	"testing"

	"github.com/robalyx/reactor/internal/database/types"
	"github.com/robalyx/reactor/internal/database/types/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReactionTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    string
		id      string
		want    types.ReactionTarget
		wantErr error
	}{
		{
			name: "article",
			kind: "article",
			id:   "hello-world",
			want: types.ReactionTarget{Kind: enum.TargetKindArticle, ID: "hello-world"},
		},
		{
			name: "trims id",
			kind: "nowplaying",
			id:   "  track-1 ",
			want: types.ReactionTarget{Kind: enum.TargetKindNowPlaying, ID: "track-1"},
		},
		{name: "unknown kind", kind: "post", id: "1", wantErr: enum.ErrInvalidTargetKind},
		{name: "empty id", kind: "chat", id: "   ", wantErr: types.ErrInvalidTargetID},
		{
			name:    "oversized id",
			kind:    "chat",
			id:      strings.Repeat("x", types.MaxTargetIDLength+1),
			wantErr: types.ErrInvalidTargetID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := types.NewReactionTarget(tt.kind, tt.id)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReactionCountsNormalize(t *testing.T) {
	t.Parallel()

	counts := types.ReactionCounts{"👍": 2, "🔥": 1, "❤️": -3}

	normalized := counts.Normalize([]string{"👍", "❤️", "🚀"})
	assert.Equal(t, types.ReactionCounts{"👍": 2, "❤️": 0, "🚀": 0, "🔥": 1}, normalized)

	// The receiver is untouched
	assert.Equal(t, -3, counts["❤️"])
}

func TestReactionCountsApply(t *testing.T) {
	t.Parallel()

	counts := types.ReactionCounts{}

	counts.Apply("👍", enum.ReactionActionAdd)
	counts.Apply("👍", enum.ReactionActionAdd)
	counts.Apply("👍", enum.ReactionActionRemove)
	counts.Apply("🎉", enum.ReactionActionRemove)

	assert.Equal(t, types.ReactionCounts{"👍": 1, "🎉": 0}, counts)
}
