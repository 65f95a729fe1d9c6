package redis

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/redis/rueidis"
	"github.com/robalyx/reactor/internal/setup/config"
	"go.uber.org/zap"
)

const (
	// CountsDBIndex stores the cached reaction counts and the anomaly record.
	CountsDBIndex = 0

	// StatsDBIndex dedicates database 1 to hourly activity counters.
	StatsDBIndex = 1

	// WorkerStatusDBIndex uses database 4 for worker heartbeats and status.
	WorkerStatusDBIndex = 4

	// RatelimitDBIndex uses database 5 for rate limit windows.
	RatelimitDBIndex = 5
)

// Manager maintains a thread-safe mapping of database indices to Redis clients.
// Each database index gets its own dedicated connection pool through rueidis.
type Manager struct {
	clients map[int]rueidis.Client
	config  *config.Redis
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewManager initializes the Redis connection manager with an empty client pool.
// Actual client connections are created lazily when first requested.
func NewManager(cfg *config.Redis, logger *zap.Logger) *Manager {
	return &Manager{
		clients: make(map[int]rueidis.Client),
		config:  cfg,
		logger:  logger.Named("redis"),
	}
}

// GetClient retrieves or creates a Redis client for the specified database index.
func (m *Manager) GetClient(dbIndex int) (rueidis.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if client, exists := m.clients[dbIndex]; exists {
		return client, nil
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:         []string{fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)},
		Username:            m.config.Username,
		Password:            m.config.Password,
		SelectDB:            dbIndex,
		ClientName:          "reactor",
		DisableCache:        true,
		ReadBufferEachConn:  1 << 18,
		WriteBufferEachConn: 1 << 18,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis client for DB %d: %w", dbIndex, err)
	}

	m.clients[dbIndex] = client
	m.logger.Info("Created new Redis client", zap.Int("dbIndex", dbIndex))

	return client, nil
}

// Ping checks every created client and returns the first failure.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.Lock()
	clients := maps.Clone(m.clients)
	m.mu.Unlock()

	for _, dbIndex := range slices.Sorted(maps.Keys(clients)) {
		client := clients[dbIndex]
		if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
			return fmt.Errorf("redis DB %d unreachable: %w", dbIndex, err)
		}
	}

	return nil
}

// Close gracefully shuts down all active Redis clients in the pool.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for dbIndex, client := range m.clients {
		client.Close()
		m.logger.Info("Closed Redis client", zap.Int("dbIndex", dbIndex))
	}

	clear(m.clients)
}
