package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robalyx/reactor/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errTask = errors.New("task failed")

func TestTriggerWaitsForBackgroundWork(t *testing.T) {
	t.Parallel()

	var finished atomic.Bool

	s := scheduler.New("test", time.Hour, func(_ context.Context, exec *scheduler.Execution) error {
		exec.WaitUntil(func(context.Context) {
			time.Sleep(50 * time.Millisecond)
			finished.Store(true)
		})

		return nil
	}, zap.NewNop())

	require.NoError(t, s.Trigger(t.Context()))
	assert.True(t, finished.Load())
	assert.False(t, s.LastRun().IsZero())
}

func TestTriggerReturnsTaskError(t *testing.T) {
	t.Parallel()

	s := scheduler.New("test", time.Hour, func(context.Context, *scheduler.Execution) error {
		return errTask
	}, zap.NewNop())

	require.ErrorIs(t, s.Trigger(t.Context()), errTask)
}

func TestTriggerRejectsOverlappingRuns(t *testing.T) {
	t.Parallel()

	var once sync.Once

	started := make(chan struct{})
	release := make(chan struct{})

	s := scheduler.New("test", time.Hour, func(_ context.Context, exec *scheduler.Execution) error {
		exec.WaitUntil(func(context.Context) {
			once.Do(func() { close(started) })
			<-release
		})

		return nil
	}, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		done <- s.Trigger(t.Context())
	}()

	<-started
	require.ErrorIs(t, s.Trigger(t.Context()), scheduler.ErrAlreadyRunning)

	close(release)
	require.NoError(t, <-done)

	// Free again once the first run completed
	require.NoError(t, s.Trigger(t.Context()))
}

func TestTriggerRecoversPanics(t *testing.T) {
	t.Parallel()

	t.Run("task", func(t *testing.T) {
		t.Parallel()

		s := scheduler.New("test", time.Hour, func(context.Context, *scheduler.Execution) error {
			panic("boom")
		}, zap.NewNop())

		err := s.Trigger(t.Context())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "task panicked")
	})

	t.Run("background work", func(t *testing.T) {
		t.Parallel()

		s := scheduler.New("test", time.Hour, func(_ context.Context, exec *scheduler.Execution) error {
			exec.WaitUntil(func(context.Context) {
				panic("boom")
			})

			return nil
		}, zap.NewNop())

		err := s.Trigger(t.Context())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "background work panicked")
	})
}

func TestRunTicksUntilCancelled(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32

	s := scheduler.New("test", 20*time.Millisecond, func(context.Context, *scheduler.Execution) error {
		runs.Add(1)
		return errTask
	}, zap.NewNop(), scheduler.WithRunOnStart(true))

	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	// Failed runs do not stop the schedule
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunOnStart(t *testing.T) {
	t.Parallel()

	ran := make(chan struct{}, 1)

	s := scheduler.New("test", time.Hour, func(context.Context, *scheduler.Execution) error {
		select {
		case ran <- struct{}{}:
		default:
		}

		return nil
	}, zap.NewNop(), scheduler.WithRunOnStart(true))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	go func() {
		_ = s.Run(ctx)
	}()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run on start")
	}
}
