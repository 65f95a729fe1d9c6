package setup

import (
	"github.com/robalyx/reactor/internal/ratelimit"
	"github.com/robalyx/reactor/internal/reaction"
	"github.com/robalyx/reactor/internal/reconcile"
	"github.com/robalyx/reactor/internal/stats"
	reconcileWorker "github.com/robalyx/reactor/internal/worker/reconcile"
)

// CounterCache returns the cache of displayed counts.
func (s *App) CounterCache() *reaction.CounterCache {
	return reaction.NewCounterCache(s.CountsClient, s.Config.Reaction.StoreTimeout(), s.Logger)
}

// Statistics returns the hourly activity counters.
func (s *App) Statistics() *stats.Statistics {
	return stats.NewStatistics(s.StatsClient, s.Logger)
}

// AnomalyStore returns the store of the last anomaly record.
func (s *App) AnomalyStore() *reconcile.AnomalyStore {
	return reconcile.NewAnomalyStore(s.CountsClient, s.Config.Reconcile.AnomalyTTL(), s.Logger)
}

// RateLimiter returns the write admission limiter.
func (s *App) RateLimiter() *ratelimit.Limiter {
	return ratelimit.NewLimiter(s.LimitClient, &s.Config.RateLimit, s.Logger)
}

// ReactionEngine returns the toggle engine, recording activity into statistics.
func (s *App) ReactionEngine(statistics *stats.Statistics) *reaction.Engine {
	return reaction.NewEngine(s.Events, s.CounterCache(), &s.Config.Reaction, s.Logger,
		reaction.WithActivityRecorder(statistics))
}

// ReconcileWorker returns the scheduled reconciliation worker.
func (s *App) ReconcileWorker() *reconcileWorker.Worker {
	job := reconcile.NewJob(s.Events, s.CounterCache(), s.AnomalyStore(), &s.Config.Reconcile, s.Logger)
	return reconcileWorker.New(job, s.StatusClient, &s.Config.Reconcile, s.Logger)
}
