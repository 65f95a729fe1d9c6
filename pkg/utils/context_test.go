package utils_test

import (
	"context"
	"testing"
	"time"

	"github.com/robalyx/reactor/pkg/utils"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestContextSleep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		duration       time.Duration
		cancelAfter    time.Duration
		expectedResult utils.SleepResult
	}{
		{
			name:           "sleep completes normally",
			duration:       10 * time.Millisecond,
			expectedResult: utils.SleepCompleted,
		},
		{
			name:           "context cancelled before sleep completes",
			duration:       time.Second,
			cancelAfter:    10 * time.Millisecond,
			expectedResult: utils.SleepCancelled,
		},
		{
			name:           "zero duration sleep",
			expectedResult: utils.SleepCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			if tt.cancelAfter > 0 {
				time.AfterFunc(tt.cancelAfter, cancel)
			}

			assert.Equal(t, tt.expectedResult, utils.ContextSleep(ctx, tt.duration))
		})
	}
}

func TestRestartSleep(t *testing.T) {
	t.Parallel()

	t.Run("delay elapses", func(t *testing.T) {
		t.Parallel()

		assert.True(t, utils.RestartSleep(t.Context(), 5*time.Millisecond, zap.NewNop(), "test"))
	})

	t.Run("cancelled context stops restart", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		assert.False(t, utils.RestartSleep(ctx, time.Minute, zap.NewNop(), "test"))
	})
}

func TestContextGuard(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	assert.False(t, utils.ContextGuard(ctx))

	cancel()
	assert.True(t, utils.ContextGuard(ctx))
}
