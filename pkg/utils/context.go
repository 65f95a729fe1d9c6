package utils

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SleepResult represents the outcome of a context-aware sleep operation.
type SleepResult int

const (
	// SleepCompleted indicates the sleep duration completed normally.
	SleepCompleted SleepResult = iota
	// SleepCancelled indicates the context was cancelled during sleep.
	SleepCancelled
)

// ContextSleep sleeps for the specified duration while respecting context cancellation.
func ContextSleep(ctx context.Context, duration time.Duration) SleepResult {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return SleepCompleted
	case <-ctx.Done():
		return SleepCancelled
	}
}

// RestartSleep waits before restarting a stopped worker. Returns false when
// the context was cancelled and the worker should not be restarted.
func RestartSleep(ctx context.Context, delay time.Duration, logger *zap.Logger, workerName string) bool {
	logger.Warn("Worker stopped unexpectedly, restarting",
		zap.String("worker", workerName),
		zap.Duration("delay", delay))

	if ContextSleep(ctx, delay) == SleepCancelled {
		logger.Info("Context cancelled during restart wait, stopping " + workerName)
		return false
	}

	return true
}

// ContextGuard checks if the context is cancelled and returns true if so.
func ContextGuard(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
