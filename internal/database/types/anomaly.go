package types

import "time"

// AnomalyEntry records a reconciled target whose counts swung past the threshold.
type AnomalyEntry struct {
	Target ReactionTarget `json:"target"`
	Diff   map[string]int `json:"diff"` // after - before per emoji
}

// AnomalyRecord is the persisted summary of one reconciliation run.
type AnomalyRecord struct {
	Timestamp time.Time      `json:"ts"`
	Threshold int            `json:"threshold"`
	Total     int            `json:"total"` // entries found before capping
	Entries   []AnomalyEntry `json:"entries"`
}
