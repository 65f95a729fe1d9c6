package sqlite_test

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/robalyx/reactor/internal/database/sqlite"
	"github.com/robalyx/reactor/internal/database/types"
	"github.com/robalyx/reactor/internal/database/types/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// manualClock is a clock advanced by hand.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func setupTest(t *testing.T) (*sqlite.Store, *manualClock) {
	t.Helper()

	clock := &manualClock{now: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}

	store, err := sqlite.Open(t.Context(), filepath.Join(t.TempDir(), "events.db"), 2, zap.NewNop(),
		sqlite.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, clock
}

var (
	articleA = types.ReactionTarget{Kind: enum.TargetKindArticle, ID: "a"}
	chatB    = types.ReactionTarget{Kind: enum.TargetKindChat, ID: "b"}
)

func TestAppend(t *testing.T) {
	t.Parallel()

	store, clock := setupTest(t)
	ctx := t.Context()

	first, err := store.Append(ctx, articleA, "👍", "fp-1", enum.ReactionActionAdd)
	require.NoError(t, err)

	second, err := store.Append(ctx, articleA, "👍", "fp-1", enum.ReactionActionRemove)
	require.NoError(t, err)

	assert.Greater(t, second.Seq, first.Seq)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, clock.Now(), first.CreatedAt)
	assert.Equal(t, articleA, first.Target())
}

func TestLatestAction(t *testing.T) {
	t.Parallel()

	store, clock := setupTest(t)
	ctx := t.Context()

	action, err := store.LatestAction(ctx, articleA, "fp-1", "👍")
	require.NoError(t, err)
	assert.Empty(t, action)

	_, err = store.Append(ctx, articleA, "👍", "fp-1", enum.ReactionActionAdd)
	require.NoError(t, err)

	clock.Advance(time.Second)

	_, err = store.Append(ctx, articleA, "👍", "fp-1", enum.ReactionActionRemove)
	require.NoError(t, err)

	action, err = store.LatestAction(ctx, articleA, "fp-1", "👍")
	require.NoError(t, err)
	assert.Equal(t, enum.ReactionActionRemove, action)

	// Other fingerprints, emoji and targets are independent
	action, err = store.LatestAction(ctx, articleA, "fp-2", "👍")
	require.NoError(t, err)
	assert.Empty(t, action)

	action, err = store.LatestAction(ctx, chatB, "fp-1", "👍")
	require.NoError(t, err)
	assert.Empty(t, action)
}

func TestLatestActionSameTimestamp(t *testing.T) {
	t.Parallel()

	store, _ := setupTest(t)
	ctx := t.Context()

	// Events sharing a timestamp are ordered by sequence
	_, err := store.Append(ctx, articleA, "🚀", "fp-1", enum.ReactionActionAdd)
	require.NoError(t, err)
	_, err = store.Append(ctx, articleA, "🚀", "fp-1", enum.ReactionActionRemove)
	require.NoError(t, err)
	_, err = store.Append(ctx, articleA, "🚀", "fp-1", enum.ReactionActionAdd)
	require.NoError(t, err)

	action, err := store.LatestAction(ctx, articleA, "fp-1", "🚀")
	require.NoError(t, err)
	assert.Equal(t, enum.ReactionActionAdd, action)
}

func TestLatestActionsByFingerprint(t *testing.T) {
	t.Parallel()

	store, clock := setupTest(t)
	ctx := t.Context()

	appends := []struct {
		emoji  string
		fp     string
		action enum.ReactionAction
	}{
		{"👍", "fp-1", enum.ReactionActionAdd},
		{"❤️", "fp-1", enum.ReactionActionAdd},
		{"❤️", "fp-1", enum.ReactionActionRemove},
		{"🎉", "fp-2", enum.ReactionActionAdd},
	}
	for _, a := range appends {
		_, err := store.Append(ctx, articleA, a.emoji, a.fp, a.action)
		require.NoError(t, err)
		clock.Advance(time.Millisecond)
	}

	actions, err := store.LatestActionsByFingerprint(ctx, articleA, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]enum.ReactionAction{
		"👍": enum.ReactionActionAdd,
		"❤️": enum.ReactionActionRemove,
	}, actions)

	actions, err = store.LatestActionsByFingerprint(ctx, chatB, "fp-1")
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	store, clock := setupTest(t)
	ctx := t.Context()

	// Outside the window
	_, err := store.Append(ctx, chatB, "👍", "fp-old", enum.ReactionActionAdd)
	require.NoError(t, err)

	clock.Advance(48 * time.Hour)
	since := clock.Now()

	events := []struct {
		target types.ReactionTarget
		emoji  string
		fp     string
		action enum.ReactionAction
	}{
		{articleA, "👍", "fp-1", enum.ReactionActionAdd},
		{articleA, "👍", "fp-2", enum.ReactionActionAdd},
		{articleA, "👍", "fp-1", enum.ReactionActionRemove},
		{articleA, "👍", "fp-1", enum.ReactionActionAdd},
		{articleA, "❤️", "fp-3", enum.ReactionActionAdd},
		{articleA, "❤️", "fp-3", enum.ReactionActionRemove},
		{chatB, "🚀", "fp-1", enum.ReactionActionAdd},
	}
	for _, e := range events {
		_, err := store.Append(ctx, e.target, e.emoji, e.fp, e.action)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	rows, err := store.Aggregate(ctx, since)
	require.NoError(t, err)

	assert.ElementsMatch(t, []types.ReactionAggregate{
		{TargetKind: enum.TargetKindArticle, TargetID: "a", Emoji: "👍", Count: 2},
		{TargetKind: enum.TargetKindArticle, TargetID: "a", Emoji: "❤️", Count: 0},
		{TargetKind: enum.TargetKindChat, TargetID: "b", Emoji: "🚀", Count: 1},
	}, rows)
}

func TestReopenKeepsEvents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.db")

	store, err := sqlite.Open(t.Context(), path, 1, zap.NewNop())
	require.NoError(t, err)

	_, err = store.Append(t.Context(), articleA, "🙏", "fp-1", enum.ReactionActionAdd)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlite.Open(t.Context(), path, 1, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	action, err := reopened.LatestAction(t.Context(), articleA, "fp-1", "🙏")
	require.NoError(t, err)
	assert.Equal(t, enum.ReactionActionAdd, action)
}
