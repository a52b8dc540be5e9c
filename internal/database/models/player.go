package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/towertools/tiersync/internal/database/dbretry"
	"github.com/towertools/tiersync/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ErrPlayerNotFound is returned when no player matches the lookup.
var ErrPlayerNotFound = errors.New("player not found")

// PlayerModel handles database operations for player identities.
type PlayerModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewPlayer creates a PlayerModel with database access.
func NewPlayer(db *bun.DB, logger *zap.Logger) *PlayerModel {
	return &PlayerModel{
		db:     db,
		logger: logger.Named("db_player"),
	}
}

// GetByDiscordID returns the approved player linked to a Discord account.
func (m *PlayerModel) GetByDiscordID(ctx context.Context, discordID uint64) (*types.Player, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Player, error) {
		player := new(types.Player)

		err := m.db.NewSelect().Model(player).
			Relation("GameIDs").
			Where("discord_id = ?", discordID).
			Where("approved = TRUE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrPlayerNotFound
			}

			return nil, fmt.Errorf("failed to get player by discord id: %w", err)
		}

		return player, nil
	})
}

// GetApproved returns approved players that have a linked Discord account,
// newest first. A zero limit returns all; discordIDs narrows the result to
// specific accounts.
func (m *PlayerModel) GetApproved(
	ctx context.Context, limit int, discordIDs []uint64,
) ([]*types.Player, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Player, error) {
		var players []*types.Player

		q := m.db.NewSelect().Model(&players).
			Relation("GameIDs").
			Where("approved = TRUE").
			Where("discord_id IS NOT NULL").
			Order("id DESC")

		if len(discordIDs) > 0 {
			q = q.Where("discord_id IN (?)", bun.In(discordIDs))
		}

		if limit > 0 {
			q = q.Limit(limit)
		}

		if err := q.Scan(ctx); err != nil {
			return nil, fmt.Errorf("failed to get approved players: %w", err)
		}

		return players, nil
	})
}
