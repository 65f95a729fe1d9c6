package dbretry

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Policy bounds how long and how often an operation is retried.
type Policy struct {
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// DefaultPolicy is used by Operation and NoResult.
var DefaultPolicy = Policy{ //nolint:gochecknoglobals // -
	MaxElapsedTime:  10 * time.Second,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	MaxRetries:      3,
}

// retryableClasses lists SQLSTATE classes that describe transient failures.
var retryableClasses = map[string]struct{}{ //nolint:gochecknoglobals // -
	"08": {}, // connection exception
	"40": {}, // transaction rollback (serialization, deadlock)
	"53": {}, // insufficient resources
	"57": {}, // operator intervention
}

// retryableCodes lists individual SQLSTATE codes outside those classes.
var retryableCodes = map[string]struct{}{ //nolint:gochecknoglobals // -
	"55P03": {}, // lock_not_available
	"55006": {}, // object_in_use
}

// IsRetryableError checks if the given error is worth another attempt.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// A cancelled caller never wants a retry
	if errors.Is(err, context.Canceled) {
		return false
	}

	var pgerr pgdriver.Error
	if errors.As(err, &pgerr) {
		code := pgerr.Field('C')
		if _, ok := retryableCodes[code]; ok {
			return true
		}

		if len(code) == 5 {
			_, ok := retryableClasses[code[:2]]
			return ok
		}

		return false
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Network failures surface as plain errors from the driver
	errMsg := err.Error()
	for _, fragment := range []string{
		"connection reset by peer",
		"broken pipe",
		"connection refused",
		"i/o timeout",
		"unexpected EOF",
	} {
		if strings.Contains(errMsg, fragment) {
			return true
		}
	}

	return false
}

// Operation wraps a database operation with retry logic.
func Operation[T any](ctx context.Context, operation func(context.Context) (T, error)) (T, error) {
	return WithPolicy(ctx, DefaultPolicy, operation)
}

// NoResult wraps a database operation that doesn't return a result.
func NoResult(ctx context.Context, operation func(context.Context) error) error {
	_, err := WithPolicy(ctx, DefaultPolicy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	})

	return err
}

// WithPolicy runs the operation until it succeeds, fails permanently or the
// policy is exhausted.
func WithPolicy[T any](ctx context.Context, policy Policy, operation func(context.Context) (T, error)) (T, error) {
	var (
		result  T
		lastErr error
	)

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(policy.MaxElapsedTime),
		backoff.WithInitialInterval(policy.InitialInterval),
		backoff.WithMaxInterval(policy.MaxInterval),
	), policy.MaxRetries)

	err := backoff.Retry(func() error {
		var err error

		result, err = operation(ctx)
		if err == nil {
			return nil
		}

		if !IsRetryableError(err) {
			return backoff.Permanent(err)
		}

		lastErr = err

		return err
	}, backoff.WithContext(b, ctx))
	if err != nil {
		if errors.Is(err, lastErr) {
			return result, fmt.Errorf("database operation failed after retries: %w", err)
		}

		return result, fmt.Errorf("database operation failed: %w", err)
	}

	return result, nil
}
