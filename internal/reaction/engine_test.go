package reaction_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/reactor/internal/database/types"
	"github.com/robalyx/reactor/internal/database/types/enum"
	"github.com/robalyx/reactor/internal/reaction"
	"github.com/robalyx/reactor/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errStoreDown = errors.New("store unavailable")

// memoryStore is an in-memory event log.
type memoryStore struct {
	mu        sync.Mutex
	events    []types.ReactionEvent
	appendErr error
}

func (s *memoryStore) Append(
	_ context.Context, target types.ReactionTarget, emoji, fingerprint string, action enum.ReactionAction,
) (*types.ReactionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.appendErr != nil {
		return nil, s.appendErr
	}

	event := types.ReactionEvent{
		Seq:         int64(len(s.events) + 1),
		ID:          uuid.New(),
		TargetKind:  target.Kind,
		TargetID:    target.ID,
		Emoji:       emoji,
		Fingerprint: fingerprint,
		Action:      action,
		CreatedAt:   time.Now(),
	}
	s.events = append(s.events, event)

	return &event, nil
}

func (s *memoryStore) LatestAction(
	_ context.Context, target types.ReactionTarget, fingerprint, emoji string,
) (enum.ReactionAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if e.Target() == target && e.Fingerprint == fingerprint && e.Emoji == emoji {
			return e.Action, nil
		}
	}

	return "", nil
}

func (s *memoryStore) LatestActionsByFingerprint(
	_ context.Context, target types.ReactionTarget, fingerprint string,
) (map[string]enum.ReactionAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actions := make(map[string]enum.ReactionAction)
	for _, e := range s.events {
		if e.Target() == target && e.Fingerprint == fingerprint {
			actions[e.Emoji] = e.Action
		}
	}

	return actions, nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.events)
}

// countingRecorder counts recorded actions.
type countingRecorder struct {
	mu      sync.Mutex
	actions map[enum.ReactionAction]int
}

func (r *countingRecorder) RecordAction(_ context.Context, action enum.ReactionAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.actions == nil {
		r.actions = make(map[enum.ReactionAction]int)
	}
	r.actions[action]++

	return nil
}

type engineFixture struct {
	engine *reaction.Engine
	store  *memoryStore
	cache  *reaction.CounterCache
}

func setupEngine(t *testing.T, opts ...reaction.EngineOption) *engineFixture {
	t.Helper()

	client, _ := setupRedis(t)
	cache := reaction.NewCounterCache(client, time.Second, zap.NewNop())
	store := &memoryStore{}

	cfg := &config.Reaction{Emojis: config.DefaultEmojis, StoreTimeoutMS: 1000}

	return &engineFixture{
		engine: reaction.NewEngine(store, cache, cfg, zap.NewNop(), opts...),
		store:  store,
		cache:  cache,
	}
}

func article(id string) types.ReactionTarget {
	return types.ReactionTarget{Kind: enum.TargetKindArticle, ID: id}
}

func TestToggleAlternates(t *testing.T) {
	t.Parallel()

	f := setupEngine(t)
	ctx := t.Context()
	target := article("a1")

	expected := []struct {
		action enum.ReactionAction
		count  int
	}{
		{enum.ReactionActionAdd, 1},
		{enum.ReactionActionRemove, 0},
		{enum.ReactionActionAdd, 1},
	}

	for _, want := range expected {
		result, err := f.engine.Toggle(ctx, target, "👍", "fp-a", "")
		require.NoError(t, err)
		assert.Equal(t, want.action, result.Action)
		assert.Equal(t, want.count, result.Counts["👍"])
	}

	// Cached counts follow the last toggle and hold every palette emoji
	counts, err := f.cache.Load(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["👍"])
	assert.Len(t, counts, len(config.DefaultEmojis))
	assert.Equal(t, 3, f.store.count())
}

func TestToggleTwoFingerprints(t *testing.T) {
	t.Parallel()

	f := setupEngine(t)
	ctx := t.Context()
	target := article("a2")

	_, err := f.engine.Toggle(ctx, target, "❤️", "fp-a", "")
	require.NoError(t, err)

	result, err := f.engine.Toggle(ctx, target, "❤️", "fp-b", "")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Counts["❤️"])

	// An explicit add does not consult the toggle state
	result, err = f.engine.Toggle(ctx, target, "🚀", "fp-a", enum.ReactionActionAdd)
	require.NoError(t, err)
	assert.Equal(t, enum.ReactionActionAdd, result.Action)
	assert.Equal(t, 1, result.Counts["🚀"])
	assert.Equal(t, 2, result.Counts["❤️"])
}

func TestToggleRemoveNeverNegative(t *testing.T) {
	t.Parallel()

	f := setupEngine(t)

	result, err := f.engine.Toggle(t.Context(), article("a3"), "🎉", "fp-a", enum.ReactionActionRemove)
	require.NoError(t, err)
	assert.Equal(t, enum.ReactionActionRemove, result.Action)
	assert.Equal(t, 0, result.Counts["🎉"])
}

func TestToggleRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	f := setupEngine(t)

	tests := []struct {
		name     string
		target   types.ReactionTarget
		emoji    string
		explicit enum.ReactionAction
		wantErr  error
	}{
		{"emoji not allowed", article("x"), "🔥", "", reaction.ErrEmojiNotAllowed},
		{"emoji missing", article("x"), "", "", reaction.ErrEmojiRequired},
		{"unknown kind", types.ReactionTarget{Kind: "video", ID: "x"}, "👍", "", enum.ErrInvalidTargetKind},
		{"empty id", article(""), "👍", "", types.ErrInvalidTargetID},
		{"unknown action", article("x"), "👍", "flip", enum.ErrInvalidAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Toggle(t.Context(), tt.target, tt.emoji, "fp-a", tt.explicit)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Zero(t, f.store.count())
}

func TestToggleAppendFailureLeavesCache(t *testing.T) {
	t.Parallel()

	f := setupEngine(t)
	f.store.appendErr = errStoreDown
	target := article("a4")

	_, err := f.engine.Toggle(t.Context(), target, "👍", "fp-a", "")
	require.ErrorIs(t, err, errStoreDown)

	counts, err := f.cache.Load(t.Context(), target)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestToggleSurvivesCacheOutage(t *testing.T) {
	t.Parallel()

	client, mr := setupRedis(t)
	cache := reaction.NewCounterCache(client, 200*time.Millisecond, zap.NewNop())
	store := &memoryStore{}
	engine := reaction.NewEngine(store, cache,
		&config.Reaction{Emojis: config.DefaultEmojis, StoreTimeoutMS: 1000}, zap.NewNop())

	mr.Close()

	result, err := engine.Toggle(t.Context(), article("a5"), "👍", "fp-a", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counts["👍"])
	assert.Equal(t, 1, store.count())
}

func TestToggleRecordsActivity(t *testing.T) {
	t.Parallel()

	recorder := &countingRecorder{}
	f := setupEngine(t, reaction.WithActivityRecorder(recorder))

	for range 3 {
		_, err := f.engine.Toggle(t.Context(), article("a6"), "🙏", "fp-a", "")
		require.NoError(t, err)
	}

	assert.Equal(t, 2, recorder.actions[enum.ReactionActionAdd])
	assert.Equal(t, 1, recorder.actions[enum.ReactionActionRemove])
}

func TestQuery(t *testing.T) {
	t.Parallel()

	f := setupEngine(t)
	ctx := t.Context()
	target := article("q1")

	for _, emoji := range []string{"😂", "👍", "🚀"} {
		_, err := f.engine.Toggle(ctx, target, emoji, "fp-a", "")
		require.NoError(t, err)
	}

	// Withdraw one of them
	_, err := f.engine.Toggle(ctx, target, "🚀", "fp-a", "")
	require.NoError(t, err)

	result, err := f.engine.Query(ctx, target, "fp-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"👍", "😂"}, result.Reacted)
	assert.Equal(t, 1, result.Counts["👍"])
	assert.Equal(t, 0, result.Counts["🚀"])
	assert.Len(t, result.Counts, len(config.DefaultEmojis))

	other, err := f.engine.Query(ctx, target, "fp-b")
	require.NoError(t, err)
	assert.Empty(t, other.Reacted)
	assert.Equal(t, result.Counts, other.Counts)
}

func TestQueryMany(t *testing.T) {
	t.Parallel()

	f := setupEngine(t)
	ctx := t.Context()

	require.NoError(t, f.cache.Put(ctx, article("m1"), types.ReactionCounts{"👍": 2}))

	targets := []types.ReactionTarget{
		article("m1"),
		article("m2"),
		{Kind: enum.TargetKindNowPlaying, ID: "track-9"},
	}

	results := f.engine.QueryMany(ctx, targets)
	require.Len(t, results, 3)
	assert.Equal(t, types.ReactionCounts{"👍": 2}, results["article:m1"])
	assert.Empty(t, results["article:m2"])
	assert.Empty(t, results["nowplaying:track-9"])
}

func TestResolveAction(t *testing.T) {
	t.Parallel()

	assert.Equal(t, enum.ReactionActionAdd, reaction.ResolveAction("", ""))
	assert.Equal(t, enum.ReactionActionRemove, reaction.ResolveAction(enum.ReactionActionAdd, ""))
	assert.Equal(t, enum.ReactionActionAdd, reaction.ResolveAction(enum.ReactionActionRemove, ""))
	assert.Equal(t, enum.ReactionActionAdd, reaction.ResolveAction(enum.ReactionActionAdd, enum.ReactionActionAdd))
	assert.Equal(t, enum.ReactionActionRemove, reaction.ResolveAction("", enum.ReactionActionRemove))
}
