package reconcile

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robalyx/reactor/internal/database/types"
	"github.com/robalyx/reactor/internal/reaction"
	"github.com/robalyx/reactor/internal/setup/config"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Aggregator produces the grouped counts of the event log.
type Aggregator interface {
	Aggregate(ctx context.Context, since time.Time) ([]types.ReactionAggregate, error)
}

// Report summarizes one reconciliation run.
type Report struct {
	StartedAt     time.Time            `json:"startedAt"`
	Cutoff        time.Time            `json:"cutoff"`
	Duration      time.Duration        `json:"duration"`
	Rows          int                  `json:"rows"`
	Targets       int                  `json:"targets"`
	Written       int                  `json:"written"`
	ReadFailures  int                  `json:"readFailures"`
	WriteFailures int                  `json:"writeFailures"`
	Anomalies     []types.AnomalyEntry `json:"anomalies"`
}

// Job rebuilds cached counts from the event log over a trailing window and
// flags targets whose counts swung past the anomaly threshold.
type Job struct {
	events      Aggregator
	cache       *reaction.CounterCache
	anomalies   *AnomalyStore
	lookback    time.Duration
	threshold   int
	maxEntries  int
	concurrency int
	now         func() time.Time
	logger      *zap.Logger
}

// Option configures a Job.
type Option func(*Job)

// WithClock overrides the clock used to compute the cutoff.
func WithClock(now func() time.Time) Option {
	return func(j *Job) {
		j.now = now
	}
}

// NewJob creates a Job from the reconciliation configuration.
func NewJob(
	events Aggregator, cache *reaction.CounterCache, anomalies *AnomalyStore,
	cfg *config.Reconcile, logger *zap.Logger, opts ...Option,
) *Job {
	job := &Job{
		events:      events,
		cache:       cache,
		anomalies:   anomalies,
		lookback:    cfg.Lookback(),
		threshold:   cfg.AnomalyThreshold,
		maxEntries:  max(1, cfg.AnomalyMaxEntries),
		concurrency: max(1, cfg.Concurrency),
		now:         time.Now,
		logger:      logger.Named("reconcile"),
	}
	for _, opt := range opts {
		opt(job)
	}

	return job
}

// Run performs one reconciliation pass. Only a failed aggregation aborts the
// run; per-target read and write failures are counted and skipped.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: j.now()}
	report.Cutoff = report.StartedAt.Add(-j.lookback)

	rows, err := j.events.Aggregate(ctx, report.Cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate reaction events: %w", err)
	}

	targets, grouped := group(rows)
	report.Rows = len(rows)
	report.Targets = len(targets)

	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(j.concurrency)
	for _, target := range targets {
		after := grouped[target]

		p.Go(func() {
			anomaly, readOK, writeOK := j.reconcileTarget(ctx, target, after)

			mu.Lock()
			defer mu.Unlock()

			if !readOK {
				report.ReadFailures++
			}

			if writeOK {
				report.Written++
			} else {
				report.WriteFailures++
			}

			if anomaly != nil {
				report.Anomalies = append(report.Anomalies, *anomaly)
			}
		})
	}

	p.Wait()

	slices.SortFunc(report.Anomalies, func(a, b types.AnomalyEntry) int {
		return strings.Compare(a.Target.Key(), b.Target.Key())
	})

	if len(report.Anomalies) > 0 {
		j.recordAnomalies(ctx, report)
	}

	report.Duration = time.Since(report.StartedAt)

	j.logger.Info("Reconciled reaction counts",
		zap.Time("cutoff", report.Cutoff),
		zap.Int("rows", report.Rows),
		zap.Int("targets", report.Targets),
		zap.Int("written", report.Written),
		zap.Int("readFailures", report.ReadFailures),
		zap.Int("writeFailures", report.WriteFailures),
		zap.Int("anomalies", len(report.Anomalies)),
		zap.Duration("duration", report.Duration))

	return report, nil
}

// reconcileTarget overwrites one target and returns its anomaly, if any.
// A failed read of the prior snapshot counts as an empty snapshot.
func (j *Job) reconcileTarget(
	ctx context.Context, target types.ReactionTarget, after types.ReactionCounts,
) (anomaly *types.AnomalyEntry, readOK, writeOK bool) {
	before, err := j.cache.Load(ctx, target)
	readOK = err == nil

	if err != nil {
		j.logger.Warn("Failed to read prior counts, treating as empty",
			zap.String("target", target.Key()),
			zap.Error(err))

		before = types.ReactionCounts{}
	}

	diff := Diff(before, after)
	if ExceedsThreshold(diff, j.threshold) {
		anomaly = &types.AnomalyEntry{Target: target, Diff: diff}
	}

	if err := j.cache.Put(ctx, target, after); err != nil {
		j.logger.Error("Failed to write reconciled counts",
			zap.String("target", target.Key()),
			zap.Error(err))

		return anomaly, readOK, false
	}

	return anomaly, readOK, true
}

// recordAnomalies persists the capped anomaly list and emits a warning.
func (j *Job) recordAnomalies(ctx context.Context, report *Report) {
	entries := report.Anomalies[:min(len(report.Anomalies), j.maxEntries)]

	record := &types.AnomalyRecord{
		Timestamp: report.StartedAt,
		Threshold: j.threshold,
		Total:     len(report.Anomalies),
		Entries:   entries,
	}

	if err := j.anomalies.Save(ctx, record); err != nil {
		j.logger.Error("Failed to store anomaly record", zap.Error(err))
	}

	j.logger.Warn("Reaction count anomalies detected",
		zap.Int("total", record.Total),
		zap.Int("threshold", j.threshold),
		zap.Any("entries", entries))
}

// group folds aggregate rows into one counts map per target, keeping the
// order in which targets first appear.
func group(rows []types.ReactionAggregate) ([]types.ReactionTarget, map[types.ReactionTarget]types.ReactionCounts) {
	var targets []types.ReactionTarget

	grouped := make(map[types.ReactionTarget]types.ReactionCounts)

	for _, row := range rows {
		target := row.Target()

		counts, ok := grouped[target]
		if !ok {
			counts = types.ReactionCounts{}
			grouped[target] = counts
			targets = append(targets, target)
		}

		counts[row.Emoji] = row.Count
	}

	return targets, grouped
}

// Diff returns after - before for every emoji whose count changed.
func Diff(before, after types.ReactionCounts) map[string]int {
	diff := make(map[string]int)

	for emoji, count := range after {
		if delta := count - before[emoji]; delta != 0 {
			diff[emoji] = delta
		}
	}

	for emoji, count := range before {
		if _, ok := after[emoji]; !ok && count != 0 {
			diff[emoji] = -count
		}
	}

	return diff
}

// ExceedsThreshold reports whether any delta reaches the threshold in
// absolute value. A threshold of zero or less disables detection.
func ExceedsThreshold(diff map[string]int, threshold int) bool {
	if threshold <= 0 {
		return false
	}

	for _, delta := range diff {
		if delta >= threshold || -delta >= threshold {
			return true
		}
	}

	return false
}
