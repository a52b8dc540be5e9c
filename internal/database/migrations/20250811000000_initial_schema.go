package migrations

import (
	"context"
	"fmt"

	"github.com/towertools/tiersync/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.Player)(nil),
			(*types.PlayerGameID)(nil),
			(*types.TourneyResult)(nil),
			(*types.Suppression)(nil),
			(*types.BotSetting)(nil),
		}

		for _, model := range models {
			_, err := db.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create table for %T: %w", model, err)
			}
		}

		// Result lookups are always league-scoped and filtered by game id
		indexes := []struct {
			name    string
			table   string
			columns string
		}{
			{"idx_tourney_results_league_game", "tourney_results", "league, game_id"},
			{"idx_tourney_results_league_date", "tourney_results", "league, date DESC"},
			{"idx_players_discord_id", "players", "discord_id"},
			{"idx_player_game_ids_player", "player_game_ids", "player_id"},
		}

		for _, idx := range indexes {
			_, err := db.ExecContext(ctx, fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS %s ON %s (%s)", idx.name, idx.table, idx.columns,
			))
			if err != nil {
				return fmt.Errorf("failed to create index %s: %w", idx.name, err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		tables := []string{
			"bot_settings",
			"suppressions",
			"tourney_results",
			"player_game_ids",
			"players",
		}

		for _, table := range tables {
			_, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table)
			if err != nil {
				return fmt.Errorf("failed to drop table %s: %w", table, err)
			}
		}

		return nil
	})
}
