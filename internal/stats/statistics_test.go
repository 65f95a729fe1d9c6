package stats

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/robalyx/reactor/internal/database/types/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTest(t *testing.T, now time.Time) (*Statistics, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	s := NewStatistics(client, zap.NewNop())
	s.now = func() time.Time { return now }

	return s, mr
}

func TestHourlyKey(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 5, 4, 13, 45, 0, 0, time.UTC)
	assert.Equal(t, "hourly_stats:reaction:add:2026-05-04-13", HourlyKey(enum.ReactionActionAdd, at))
}

func TestRecordAction(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 4, 13, 45, 0, 0, time.UTC)
	s, mr := setupTest(t, now)

	require.NoError(t, s.RecordAction(t.Context(), enum.ReactionActionAdd))
	require.NoError(t, s.RecordAction(t.Context(), enum.ReactionActionAdd))
	require.NoError(t, s.RecordAction(t.Context(), enum.ReactionActionRemove))

	key := HourlyKey(enum.ReactionActionAdd, now)

	value, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "2", value)
	assert.Equal(t, HourlyStatsExpiry, mr.TTL(key))
}

func TestGetHourlyStats(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 4, 13, 45, 0, 0, time.UTC)
	s, mr := setupTest(t, now)

	require.NoError(t, s.RecordAction(t.Context(), enum.ReactionActionAdd))
	require.NoError(t, s.RecordAction(t.Context(), enum.ReactionActionRemove))
	require.NoError(t, mr.Set(HourlyKey(enum.ReactionActionAdd, now.Add(-23*time.Hour)), "7"))

	// Outside the window
	require.NoError(t, mr.Set(HourlyKey(enum.ReactionActionAdd, now.Add(-24*time.Hour)), "99"))

	stats, err := s.GetHourlyStats(t.Context())
	require.NoError(t, err)
	require.Len(t, stats, HourlyWindow)

	first := stats[0]
	assert.Equal(t, time.Date(2026, 5, 3, 14, 0, 0, 0, time.UTC), first.Timestamp)
	assert.Equal(t, int64(7), first.Add)

	last := stats[HourlyWindow-1]
	assert.Equal(t, time.Date(2026, 5, 4, 13, 0, 0, 0, time.UTC), last.Timestamp)
	assert.Equal(t, int64(1), last.Add)
	assert.Equal(t, int64(1), last.Remove)

	var total int64
	for _, hour := range stats {
		total += hour.Add
	}
	assert.Equal(t, int64(8), total)
}
