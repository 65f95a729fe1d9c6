package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by Trigger while another run is in progress.
var ErrAlreadyRunning = errors.New("scheduled task is already running")

// Task is invoked once per tick with the execution of that tick.
type Task func(ctx context.Context, exec *Execution) error

// Execution is the context of one scheduled run. Work handed to WaitUntil
// keeps running after the task returns; the run ends when it completes.
type Execution struct {
	ScheduledAt time.Time

	ctx context.Context
	wg  conc.WaitGroup
}

// WaitUntil runs fn in the background for the remainder of the run.
func (e *Execution) WaitUntil(fn func(ctx context.Context)) {
	e.wg.Go(func() {
		fn(e.ctx)
	})
}

// Scheduler invokes a task on a fixed interval.
type Scheduler struct {
	name       string
	interval   time.Duration
	task       Task
	runOnStart bool
	running    sync.Mutex
	lastRun    time.Time
	lastMu     sync.RWMutex
	logger     *zap.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRunOnStart triggers the task as soon as Run starts.
func WithRunOnStart(enabled bool) Option {
	return func(s *Scheduler) {
		s.runOnStart = enabled
	}
}

// New creates a Scheduler for the task.
func New(name string, interval time.Duration, task Task, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger.Named("scheduler").With(zap.String("task", name)),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run triggers the task every interval until ctx is done. Failed runs are
// logged and do not stop later ones.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Scheduler started", zap.Duration("interval", s.interval))

	if s.runOnStart {
		s.triggerAndLog(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
			s.triggerAndLog(ctx)
		}
	}
}

// Trigger runs the task once and waits for its background work. Panics in
// the task or its background work are recovered and returned as errors.
func (s *Scheduler) Trigger(ctx context.Context) (err error) {
	if !s.running.TryLock() {
		return ErrAlreadyRunning
	}
	defer s.running.Unlock()

	exec := &Execution{
		ScheduledAt: time.Now(),
		ctx:         ctx,
	}

	defer func() {
		if recovered := exec.wg.WaitAndRecover(); recovered != nil {
			err = errors.Join(err, fmt.Errorf("background work panicked: %w", recovered.AsError()))
		}

		s.lastMu.Lock()
		s.lastRun = exec.ScheduledAt
		s.lastMu.Unlock()
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	return s.task(ctx, exec)
}

// LastRun returns when the last completed run started.
func (s *Scheduler) LastRun() time.Time {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()

	return s.lastRun
}

func (s *Scheduler) triggerAndLog(ctx context.Context) {
	start := time.Now()

	if err := s.Trigger(ctx); err != nil {
		s.logger.Error("Scheduled run failed", zap.Error(err))
		return
	}

	s.logger.Debug("Scheduled run completed", zap.Duration("duration", time.Since(start)))
}
