package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
	"github.com/robalyx/reactor/internal/setup/config"
	"go.uber.org/zap"
)

// KeyPrefix prefixes every rate limit window key.
const KeyPrefix = "ratelimit"

// Class separates the windows of unrelated write operations.
type Class string

// ClassReaction gates reaction writes.
const ClassReaction Class = "reaction"

// Key returns the window key of a fingerprint for a class.
func Key(class Class, fingerprint string) string {
	return fmt.Sprintf("%s:%s:%s", KeyPrefix, class, fingerprint)
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Count      int64         // requests counted in the window, including this one when allowed
	Limit      int64         // limit the decision was made against
	RetryAfter time.Duration // remaining window when rejected
	FailedOpen bool          // admitted because Redis could not be consulted
}

// Limiter is a fixed-window request counter stored in Redis.
// Windows start at the first admitted request and are refreshed by every
// admitted request after it. It fails open when Redis is unavailable.
type Limiter struct {
	client  rueidis.Client
	limit   int64
	window  time.Duration
	timeout time.Duration
	logger  *zap.Logger
}

// NewLimiter creates a Limiter from the rate limit configuration.
func NewLimiter(client rueidis.Client, cfg *config.RateLimit, logger *zap.Logger) *Limiter {
	return &Limiter{
		client:  client,
		limit:   int64(cfg.Limit),
		window:  cfg.Window(),
		timeout: cfg.Timeout(),
		logger:  logger.Named("ratelimit"),
	}
}

// Admit checks the configured limit for the fingerprint.
func (l *Limiter) Admit(ctx context.Context, class Class, fingerprint string) Decision {
	return l.AdmitWith(ctx, class, fingerprint, l.limit, l.window)
}

// AdmitWith checks an explicit limit and window for the fingerprint.
func (l *Limiter) AdmitWith(
	ctx context.Context, class Class, fingerprint string, limit int64, window time.Duration,
) Decision {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	key := Key(class, fingerprint)

	// Read the current window count
	count, err := l.client.Do(ctx, l.client.B().Get().Key(key).Build()).AsInt64()
	if err != nil && !rueidis.IsRedisNil(err) {
		return l.failOpen(key, limit, err)
	}

	if count >= limit {
		return Decision{
			Allowed:    false,
			Count:      count,
			Limit:      limit,
			RetryAfter: l.remaining(ctx, key, window),
		}
	}

	// Count this request and refresh the window
	results := l.client.DoMulti(ctx,
		l.client.B().Incr().Key(key).Build(),
		l.client.B().Expire().Key(key).Seconds(max(1, int64(window.Seconds()))).Build(),
	)

	count, err = results[0].AsInt64()
	if err != nil {
		return l.failOpen(key, limit, err)
	}

	if err := results[1].Error(); err != nil {
		l.logger.Warn("Failed to refresh rate limit window",
			zap.String("key", key),
			zap.Error(err))
	}

	return Decision{Allowed: true, Count: count, Limit: limit}
}

// remaining returns the time left in the window, or the full window when unknown.
func (l *Limiter) remaining(ctx context.Context, key string, window time.Duration) time.Duration {
	ttl, err := l.client.Do(ctx, l.client.B().Pttl().Key(key).Build()).AsInt64()
	if err != nil || ttl <= 0 {
		return window
	}

	return time.Duration(ttl) * time.Millisecond
}

func (l *Limiter) failOpen(key string, limit int64, err error) Decision {
	l.logger.Warn("Rate limit check failed, admitting request",
		zap.String("key", key),
		zap.Error(err))

	return Decision{Allowed: true, Limit: limit, FailedOpen: true}
}
