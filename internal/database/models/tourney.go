package models

import (
	"context"
	"fmt"

	"github.com/towertools/tiersync/internal/database/dbretry"
	"github.com/towertools/tiersync/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// TourneyModel handles database operations for tournament result rows.
// All read paths exclude moderation-suppressed game ids.
type TourneyModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewTourney creates a TourneyModel with database access.
func NewTourney(db *bun.DB, logger *zap.Logger) *TourneyModel {
	return &TourneyModel{
		db:     db,
		logger: logger.Named("db_tourney"),
	}
}

// ResultsForLeague returns up to limit result rows for a league, most recent
// first, with suppressed game ids filtered out.
func (m *TourneyModel) ResultsForLeague(
	ctx context.Context, league string, limit int,
) ([]*types.TourneyResult, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.TourneyResult, error) {
		var rows []*types.TourneyResult

		q := m.db.NewSelect().Model(&rows).
			Where("league = ?", league).
			Where("game_id NOT IN (SELECT game_id FROM suppressions WHERE active = TRUE)").
			Order("date DESC")

		if limit > 0 {
			q = q.Limit(limit)
		}

		if err := q.Scan(ctx); err != nil {
			return nil, fmt.Errorf("failed to get results for league %s: %w", league, err)
		}

		return rows, nil
	})
}

// ResultsForGameIDs returns one player's result rows in a league, most recent
// first. Suppression is applied here as well so the single-member path and the
// batch path see identical data.
func (m *TourneyModel) ResultsForGameIDs(
	ctx context.Context, league string, gameIDs []string,
) ([]*types.TourneyResult, error) {
	if len(gameIDs) == 0 {
		return nil, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.TourneyResult, error) {
		var rows []*types.TourneyResult

		err := m.db.NewSelect().Model(&rows).
			Where("league = ?", league).
			Where("game_id IN (?)", bun.In(gameIDs)).
			Where("game_id NOT IN (SELECT game_id FROM suppressions WHERE active = TRUE)").
			Order("date DESC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get results for game ids: %w", err)
		}

		return rows, nil
	})
}

// IsSuppressed reports whether a game id is excluded by moderation.
func (m *TourneyModel) IsSuppressed(ctx context.Context, gameID string) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		exists, err := m.db.NewSelect().Model((*types.Suppression)(nil)).
			Where("game_id = ?", gameID).
			Where("active = TRUE").
			Exists(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to check suppression: %w", err)
		}

		return exists, nil
	})
}
