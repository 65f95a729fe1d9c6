package models

var (
	LatestActionsByFingerprintQuery = (*ReactionModel).latestActionsByFingerprintQuery
	AggregateQuery                  = (*ReactionModel).aggregateQuery
)
