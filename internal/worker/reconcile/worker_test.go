package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/robalyx/reactor/internal/database/types"
	"github.com/robalyx/reactor/internal/database/types/enum"
	"github.com/robalyx/reactor/internal/reaction"
	"github.com/robalyx/reactor/internal/reconcile"
	"github.com/robalyx/reactor/internal/setup/config"
	"github.com/robalyx/reactor/internal/worker/core"
	reconcileWorker "github.com/robalyx/reactor/internal/worker/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errAggregate = errors.New("aggregate failed")

type staticAggregator struct {
	rows []types.ReactionAggregate
	err  error
}

func (a *staticAggregator) Aggregate(context.Context, time.Time) ([]types.ReactionAggregate, error) {
	return a.rows, a.err
}

func setupWorker(t *testing.T, events reconcile.Aggregator) (*reconcileWorker.Worker, *reaction.CounterCache, rueidis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	cfg := &config.Reconcile{
		LookbackDays:      30,
		AnomalyThreshold:  20,
		AnomalyMaxEntries: 20,
		AnomalyTTLHours:   168,
		IntervalMinutes:   60,
		Concurrency:       2,
	}

	cache := reaction.NewCounterCache(client, time.Second, zap.NewNop())
	anomalies := reconcile.NewAnomalyStore(client, cfg.AnomalyTTL(), zap.NewNop())
	job := reconcile.NewJob(events, cache, anomalies, cfg, zap.NewNop())

	return reconcileWorker.New(job, client, cfg, zap.NewNop()), cache, client
}

func TestRunOnce(t *testing.T) {
	t.Parallel()

	events := &staticAggregator{rows: []types.ReactionAggregate{
		{TargetKind: enum.TargetKindArticle, TargetID: "a", Emoji: "👍", Count: 3},
	}}
	worker, cache, _ := setupWorker(t, events)

	assert.Nil(t, worker.LastReport())

	report, err := worker.RunOnce(t.Context())
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Written)
	assert.Same(t, report, worker.LastReport())

	counts, err := cache.Load(t.Context(), types.ReactionTarget{Kind: enum.TargetKindArticle, ID: "a"})
	require.NoError(t, err)
	assert.Equal(t, types.ReactionCounts{"👍": 3}, counts)
}

func TestRunOnceFailure(t *testing.T) {
	t.Parallel()

	worker, _, _ := setupWorker(t, &staticAggregator{err: errAggregate})

	_, err := worker.RunOnce(t.Context())
	require.ErrorIs(t, err, errAggregate)
	assert.Nil(t, worker.LastReport())
}

func TestStartReportsStatus(t *testing.T) {
	t.Parallel()

	worker, _, client := setupWorker(t, &staticAggregator{})
	monitor := core.NewMonitor(client, zap.NewNop())

	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() {
		done <- worker.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		statuses, err := monitor.GetAllStatuses(t.Context())
		return err == nil && len(statuses) == 1 && statuses[0].WorkerType == reconcileWorker.WorkerType
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	// Status is removed on shutdown
	statuses, err := monitor.GetAllStatuses(t.Context())
	require.NoError(t, err)
	assert.Empty(t, statuses)
}
