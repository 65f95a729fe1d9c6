package reaction

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"github.com/robalyx/reactor/internal/database/types"
	"go.uber.org/zap"
)

// CountsKeyPrefix prefixes every cached counts entry.
const CountsKeyPrefix = "reactions"

// CountsKey returns the cache key holding the counts of a target.
func CountsKey(target types.ReactionTarget) string {
	return fmt.Sprintf("%s:%s:%s", CountsKeyPrefix, target.Kind, target.ID)
}

// CounterCache stores the derived per-target counts as JSON in Redis.
// Entries never expire and writes are unconditional overwrites.
type CounterCache struct {
	client  rueidis.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewCounterCache creates a CounterCache. Every call is bounded by timeout.
func NewCounterCache(client rueidis.Client, timeout time.Duration, logger *zap.Logger) *CounterCache {
	return &CounterCache{
		client:  client,
		timeout: timeout,
		logger:  logger.Named("counter_cache"),
	}
}

// Load reads the counts of a target. A missing entry is an empty mapping;
// unreachable Redis or an undecodable entry is an error.
func (c *CounterCache) Load(ctx context.Context, target types.ReactionTarget) (types.ReactionCounts, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.client.Do(ctx, c.client.B().Get().Key(CountsKey(target)).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return types.ReactionCounts{}, nil
		}

		return nil, fmt.Errorf("failed to get counts for %s: %w", target.Key(), err)
	}

	var counts types.ReactionCounts
	if err := sonic.Unmarshal(data, &counts); err != nil {
		return nil, fmt.Errorf("failed to decode counts for %s: %w", target.Key(), err)
	}

	if counts == nil {
		counts = types.ReactionCounts{}
	}

	return counts, nil
}

// Get is Load that degrades every failure to a cache miss.
func (c *CounterCache) Get(ctx context.Context, target types.ReactionTarget) types.ReactionCounts {
	counts, err := c.Load(ctx, target)
	if err != nil {
		c.logger.Warn("Treating counts read failure as cache miss",
			zap.String("target", target.Key()),
			zap.Error(err))

		return types.ReactionCounts{}
	}

	return counts
}

// Put overwrites the counts of a target.
func (c *CounterCache) Put(ctx context.Context, target types.ReactionTarget, counts types.ReactionCounts) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if counts == nil {
		counts = types.ReactionCounts{}
	}

	data, err := sonic.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to encode counts for %s: %w", target.Key(), err)
	}

	cmd := c.client.B().Set().Key(CountsKey(target)).Value(rueidis.BinaryString(data)).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to store counts for %s: %w", target.Key(), err)
	}

	return nil
}
