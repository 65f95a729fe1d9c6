package core

import "time"

const (
	// HeartbeatInterval is how often workers report their status.
	HeartbeatInterval = 10 * time.Second

	// HeartbeatTTL is how long a worker's status remains stored.
	HeartbeatTTL = 10 * time.Minute

	// StaleThreshold is how long before a silent worker is considered offline.
	StaleThreshold = 1 * time.Minute

	// StatusKeyPrefix prefixes every worker status key.
	StatusKeyPrefix = "worker"

	// scanBatch is the COUNT hint used when scanning status keys.
	scanBatch = 100
)
