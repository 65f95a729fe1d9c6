package database

import (
	"github.com/robalyx/reactor/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	reaction *models.ReactionModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		reaction: models.NewReaction(db, logger),
	}
}

// Reaction returns the reaction event model repository.
func (r *Repository) Reaction() *models.ReactionModel {
	return r.reaction
}
