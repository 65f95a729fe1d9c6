package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// StatusReporter handles automatic status reporting for workers.
type StatusReporter struct {
	monitor  *Monitor
	status   Status
	stopChan chan struct{}
	stopped  bool
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewStatusReporter creates a new status reporter for a worker.
func NewStatusReporter(client rueidis.Client, workerType string, logger *zap.Logger) *StatusReporter {
	return &StatusReporter{
		monitor: NewMonitor(client, logger),
		status: Status{
			WorkerID:   uuid.New().String(),
			WorkerType: workerType,
			IsHealthy:  true,
		},
		stopChan: make(chan struct{}),
		logger:   logger.Named("status_reporter"),
	}
}

// Start begins periodic status reporting until ctx is done or Stop is called.
// A stopped reporter can be started again.
func (r *StatusReporter) Start(ctx context.Context) {
	r.mu.Lock()
	if r.stopped {
		r.stopChan = make(chan struct{})
		r.stopped = false
	}
	stopChan := r.stopChan
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()

		r.report(ctx)

		for {
			select {
			case <-ticker.C:
				r.report(ctx)
			case <-ctx.Done():
				return
			case <-stopChan:
				return
			}
		}
	}()
}

// Stop ends status reporting and removes the stored status.
func (r *StatusReporter) Stop(ctx context.Context) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}

	close(r.stopChan)
	r.stopped = true
	r.mu.Unlock()

	if err := r.monitor.RemoveStatus(ctx, r.status.WorkerType, r.status.WorkerID); err != nil {
		r.logger.Warn("Failed to remove worker status", zap.Error(err))
	}
}

// UpdateStatus updates the current task and reports it right away.
func (r *StatusReporter) UpdateStatus(ctx context.Context, task string, progress int) {
	r.mu.Lock()
	r.status.CurrentTask = task
	r.status.Progress = progress
	r.mu.Unlock()

	r.report(ctx)
}

// SetHealthy updates the health status.
func (r *StatusReporter) SetHealthy(healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.IsHealthy = healthy
}

// SetLastRun records when the last completed run started.
func (r *StatusReporter) SetLastRun(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.LastRun = t
}

// GetWorkerID returns the unique worker ID.
func (r *StatusReporter) GetWorkerID() string {
	return r.status.WorkerID
}

// Snapshot returns a copy of the current status.
func (r *StatusReporter) Snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.status
}

func (r *StatusReporter) report(ctx context.Context) {
	if err := r.monitor.ReportStatus(ctx, r.Snapshot()); err != nil {
		r.logger.Error("Failed to report status", zap.Error(err))
	}
}
