package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"github.com/robalyx/reactor/internal/database/types"
	"go.uber.org/zap"
)

// AnomalyKey holds the record of the last run that found anomalies.
const AnomalyKey = "reaction:anomaly:last"

// AnomalyStore persists anomaly records in Redis with a bounded retention.
type AnomalyStore struct {
	client rueidis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewAnomalyStore creates an AnomalyStore whose records expire after ttl.
func NewAnomalyStore(client rueidis.Client, ttl time.Duration, logger *zap.Logger) *AnomalyStore {
	return &AnomalyStore{
		client: client,
		ttl:    ttl,
		logger: logger.Named("anomaly_store"),
	}
}

// Save overwrites the last anomaly record.
func (s *AnomalyStore) Save(ctx context.Context, record *types.AnomalyRecord) error {
	data, err := sonic.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal anomaly record: %w", err)
	}

	cmd := s.client.B().Set().Key(AnomalyKey).Value(rueidis.BinaryString(data)).Ex(s.ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to store anomaly record: %w", err)
	}

	return nil
}

// Last returns the stored record, or nil when none is retained.
func (s *AnomalyStore) Last(ctx context.Context) (*types.AnomalyRecord, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(AnomalyKey).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil //nolint:nilnil // absent record is not an error
		}

		return nil, fmt.Errorf("failed to get anomaly record: %w", err)
	}

	var record types.AnomalyRecord
	if err := sonic.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal anomaly record: %w", err)
	}

	return &record, nil
}
