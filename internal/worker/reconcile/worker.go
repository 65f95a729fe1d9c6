package reconcile

import (
	"context"
	"sync"

	"github.com/redis/rueidis"
	"github.com/robalyx/reactor/internal/reconcile"
	"github.com/robalyx/reactor/internal/scheduler"
	"github.com/robalyx/reactor/internal/setup/config"
	"github.com/robalyx/reactor/internal/worker/core"
	"go.uber.org/zap"
)

// WorkerType identifies this worker in status reports.
const WorkerType = "reconcile"

// Worker runs the reconciliation job on its schedule and reports heartbeats.
type Worker struct {
	job        *reconcile.Job
	scheduler  *scheduler.Scheduler
	reporter   *core.StatusReporter
	lastReport *reconcile.Report
	lastErr    error
	mu         sync.RWMutex
	logger     *zap.Logger
}

// New creates a reconciliation worker.
func New(job *reconcile.Job, statusClient rueidis.Client, cfg *config.Reconcile, logger *zap.Logger) *Worker {
	w := &Worker{
		job:      job,
		reporter: core.NewStatusReporter(statusClient, WorkerType, logger),
		logger:   logger.Named("reconcile_worker"),
	}
	w.scheduler = scheduler.New(WorkerType, cfg.Interval(), w.task, logger,
		scheduler.WithRunOnStart(cfg.RunOnStart))

	return w
}

// Start reports heartbeats and runs the schedule until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Reconcile worker started", zap.String("workerID", w.reporter.GetWorkerID()))

	w.reporter.Start(ctx)
	defer w.reporter.Stop(context.WithoutCancel(ctx))

	w.reporter.UpdateStatus(ctx, "Waiting for next run", 0)

	return w.scheduler.Run(ctx)
}

// RunOnce triggers a single run and returns its report.
func (w *Worker) RunOnce(ctx context.Context) (*reconcile.Report, error) {
	if err := w.scheduler.Trigger(ctx); err != nil {
		return nil, err
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.lastErr != nil {
		return nil, w.lastErr
	}

	return w.lastReport, nil
}

// LastReport returns the report of the last successful run, if any.
func (w *Worker) LastReport() *reconcile.Report {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.lastReport
}

// task hands the job to the execution as background work, so a trigger
// returns immediately and the run completes when the job does.
func (w *Worker) task(_ context.Context, exec *scheduler.Execution) error {
	exec.WaitUntil(func(ctx context.Context) {
		w.reporter.UpdateStatus(ctx, "Reconciling reaction counts", 0)

		report, err := w.job.Run(ctx)

		w.mu.Lock()
		w.lastErr = err
		w.mu.Unlock()

		if err != nil {
			w.logger.Error("Reconciliation failed", zap.Error(err))
			w.reporter.SetHealthy(false)
			w.reporter.UpdateStatus(ctx, "Reconciliation failed", 0)

			return
		}

		w.mu.Lock()
		w.lastReport = report
		w.mu.Unlock()

		w.reporter.SetHealthy(report.WriteFailures == 0)
		w.reporter.SetLastRun(exec.ScheduledAt)
		w.reporter.UpdateStatus(ctx, "Waiting for next run", 100)
	})

	return nil
}
