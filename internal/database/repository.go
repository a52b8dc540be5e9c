package database

import (
	"github.com/towertools/tiersync/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	player  *models.PlayerModel
	tourney *models.TourneyModel
	setting *models.SettingModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		player:  models.NewPlayer(db, logger),
		tourney: models.NewTourney(db, logger),
		setting: models.NewSetting(db, logger),
	}
}

// Player returns the player model repository.
func (r *Repository) Player() *models.PlayerModel {
	return r.player
}

// Tourney returns the tournament result model repository.
func (r *Repository) Tourney() *models.TourneyModel {
	return r.tourney
}

// Setting returns the settings model repository.
func (r *Repository) Setting() *models.SettingModel {
	return r.setting
}
