package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// Status represents a worker's current state.
type Status struct {
	WorkerID    string    `json:"workerId"`
	WorkerType  string    `json:"workerType"`
	LastSeen    time.Time `json:"lastSeen"`
	CurrentTask string    `json:"currentTask,omitempty"`
	Progress    int       `json:"progress"`
	IsHealthy   bool      `json:"isHealthy"`
	LastRun     time.Time `json:"lastRun"`
}

// IsStale reports whether the worker missed its heartbeats for too long.
func (s Status) IsStale(now time.Time) bool {
	return now.Sub(s.LastSeen) > StaleThreshold
}

// StatusKey returns the Redis key of a worker's status.
func StatusKey(workerType, workerID string) string {
	return fmt.Sprintf("%s:%s:%s", StatusKeyPrefix, workerType, workerID)
}

// Monitor handles worker status reporting and querying.
type Monitor struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewMonitor creates a new worker status monitor.
func NewMonitor(client rueidis.Client, logger *zap.Logger) *Monitor {
	return &Monitor{
		client: client,
		logger: logger.Named("worker_monitor"),
	}
}

// ReportStatus updates a worker's status in Redis.
func (m *Monitor) ReportStatus(ctx context.Context, status Status) error {
	status.LastSeen = time.Now()

	data, err := sonic.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	key := StatusKey(status.WorkerType, status.WorkerID)

	err = m.client.Do(ctx, m.client.B().Set().Key(key).Value(rueidis.BinaryString(data)).Ex(HeartbeatTTL).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to store status: %w", err)
	}

	return nil
}

// RemoveStatus deletes a worker's status, used on clean shutdown.
func (m *Monitor) RemoveStatus(ctx context.Context, workerType, workerID string) error {
	key := StatusKey(workerType, workerID)
	if err := m.client.Do(ctx, m.client.B().Del().Key(key).Build()).Error(); err != nil {
		return fmt.Errorf("failed to remove status: %w", err)
	}

	return nil
}

// GetAllStatuses retrieves every stored worker status ordered by type and id.
func (m *Monitor) GetAllStatuses(ctx context.Context) ([]Status, error) {
	var keys []string

	cursor := uint64(0)
	for {
		entry, err := m.client.Do(ctx, m.client.B().Scan().Cursor(cursor).
			Match(StatusKeyPrefix+":*").Count(scanBatch).Build()).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker keys: %w", err)
		}

		keys = append(keys, entry.Elements...)

		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return []Status{}, nil
	}

	// Status keys hash to different slots, so each is read with its own GET
	cmds := make(rueidis.Commands, 0, len(keys))
	for _, key := range keys {
		cmds = append(cmds, m.client.B().Get().Key(key).Build())
	}

	statuses := make([]Status, 0, len(keys))

	for i, result := range m.client.DoMulti(ctx, cmds...) {
		data, err := result.AsBytes()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				// Expired between SCAN and GET
				continue
			}

			return nil, fmt.Errorf("failed to get worker status %s: %w", keys[i], err)
		}

		var status Status
		if err := sonic.Unmarshal(data, &status); err != nil {
			m.logger.Error("Failed to unmarshal worker status", zap.String("key", keys[i]), zap.Error(err))
			continue
		}

		statuses = append(statuses, status)
	}

	slices.SortFunc(statuses, func(a, b Status) int {
		if c := strings.Compare(a.WorkerType, b.WorkerType); c != 0 {
			return c
		}

		return strings.Compare(a.WorkerID, b.WorkerID)
	})

	return statuses, nil
}
