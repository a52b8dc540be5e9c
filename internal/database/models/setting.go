package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/towertools/tiersync/internal/database/dbretry"
	"github.com/towertools/tiersync/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// SettingModel handles database operations for runtime-tunable bot settings.
type SettingModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewSetting creates a SettingModel with database access.
func NewSetting(db *bun.DB, logger *zap.Logger) *SettingModel {
	return &SettingModel{
		db:     db,
		logger: logger.Named("db_setting"),
	}
}

// Get retrieves the settings row, creating it with the provided defaults if it
// does not exist yet.
func (m *SettingModel) Get(ctx context.Context, defaults *types.BotSetting) (*types.BotSetting, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.BotSetting, error) {
		settings := new(types.BotSetting)

		err := m.db.NewSelect().Model(settings).
			Where("id = ?", types.BotSettingID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// Seed with startup defaults on first use
				seeded := *defaults
				seeded.ID = types.BotSettingID
				seeded.UpdatedAt = time.Now()

				if _, err := m.db.NewInsert().Model(&seeded).Exec(ctx); err != nil {
					return nil, fmt.Errorf("failed to create bot settings: %w", err)
				}

				m.logger.Info("Seeded default bot settings")

				return &seeded, nil
			}

			return nil, fmt.Errorf("failed to get bot settings: %w", err)
		}

		return settings, nil
	})
}

// Update persists changed settings.
func (m *SettingModel) Update(ctx context.Context, settings *types.BotSetting) error {
	return dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		settings.ID = types.BotSettingID
		settings.UpdatedAt = time.Now()

		_, err := tx.NewUpdate().Model(settings).WherePK().Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update bot settings: %w", err)
		}

		return nil
	})
}
