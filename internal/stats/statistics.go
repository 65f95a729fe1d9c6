package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
	"github.com/robalyx/reactor/internal/database/types/enum"
	"go.uber.org/zap"
)

const (
	// HourlyStatsKeyPrefix prefixes every hourly counter.
	HourlyStatsKeyPrefix = "hourly_stats:reaction"
	// HourlyStatsExpiry is how long an hourly counter is retained.
	HourlyStatsExpiry = 24 * time.Hour
	// HourlyWindow is the number of buckets returned by GetHourlyStats.
	HourlyWindow = 24

	hourFormat = "2006-01-02-15"
)

// HourlyStats is the reaction activity of one hour.
type HourlyStats struct {
	Timestamp time.Time `json:"timestamp"`
	Add       int64     `json:"add"`
	Remove    int64     `json:"remove"`
}

// Statistics counts applied reaction actions per hour in Redis.
type Statistics struct {
	client rueidis.Client
	now    func() time.Time
	logger *zap.Logger
}

// NewStatistics creates a new Statistics instance.
func NewStatistics(client rueidis.Client, logger *zap.Logger) *Statistics {
	return &Statistics{
		client: client,
		now:    time.Now,
		logger: logger.Named("statistics"),
	}
}

// HourlyKey returns the counter key of an action for the hour containing t.
func HourlyKey(action enum.ReactionAction, t time.Time) string {
	return fmt.Sprintf("%s:%s:%s", HourlyStatsKeyPrefix, action, t.UTC().Format(hourFormat))
}

// RecordAction increments the counter of the current hour for the action.
func (s *Statistics) RecordAction(ctx context.Context, action enum.ReactionAction) error {
	key := HourlyKey(action, s.now())

	results := s.client.DoMulti(ctx,
		s.client.B().Incr().Key(key).Build(),
		s.client.B().Expire().Key(key).Seconds(int64(HourlyStatsExpiry.Seconds())).Build(),
	)
	for _, result := range results {
		if err := result.Error(); err != nil {
			return fmt.Errorf("failed to increment hourly stat %s: %w", key, err)
		}
	}

	return nil
}

// GetHourlyStats retrieves the counters of the past 24 hours, oldest first.
func (s *Statistics) GetHourlyStats(ctx context.Context) ([]HourlyStats, error) {
	current := s.now().UTC().Truncate(time.Hour)
	stats := make([]HourlyStats, HourlyWindow)
	cmds := make(rueidis.Commands, 0, HourlyWindow*2)

	for i := range HourlyWindow {
		timestamp := current.Add(-time.Duration(HourlyWindow-1-i) * time.Hour)
		stats[i] = HourlyStats{Timestamp: timestamp}

		// Hourly keys land on different slots, so each is read on its own
		cmds = append(cmds,
			s.client.B().Get().Key(HourlyKey(enum.ReactionActionAdd, timestamp)).Build(),
			s.client.B().Get().Key(HourlyKey(enum.ReactionActionRemove, timestamp)).Build())
	}

	for i, result := range s.client.DoMulti(ctx, cmds...) {
		count, err := result.AsInt64()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				continue
			}

			return nil, fmt.Errorf("failed to get hourly stats: %w", err)
		}

		if i%2 == 0 {
			stats[i/2].Add = count
		} else {
			stats[i/2].Remove = count
		}
	}

	s.logger.Debug("Retrieved hourly stats", zap.Int("keys", len(cmds)))

	return stats, nil
}
