package types

import (
	"time"

	"github.com/uptrace/bun"
)

// BotSettingID is the primary key of the singleton settings row.
const BotSettingID = 1

// BotSetting is the single row of runtime-tunable options. Values here
// override the startup defaults from config.toml and can be refreshed on
// demand without a restart.
type BotSetting struct {
	bun.BaseModel `bun:"table:bot_settings"`

	ID int64 `bun:"id,pk"`

	// Seconds before allowing another update for the same member.
	CooldownSeconds int `bun:"cooldown_seconds,notnull"`
	// Milliseconds to wait for additional role changes before deciding.
	DebounceDelayMS int `bun:"debounce_delay_ms,notnull"`
	// Maximum number of members waiting in the update queue.
	QueueCapacity int `bun:"queue_capacity,notnull"`
	// Milliseconds between queue polls.
	PollIntervalMS int `bun:"poll_interval_ms,notnull"`
	// Minutes between scheduled reconciliation passes.
	BatchIntervalMinutes int `bun:"batch_interval_minutes,notnull"`
	// Maximum result rows loaded per league during reconciliation.
	ResultsLimit int `bun:"results_limit,notnull"`
	// Report-only mode for the scheduled reconciler.
	DryRun bool `bun:"dry_run,notnull"`

	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// CooldownWindow returns the cooldown as a duration.
func (s *BotSetting) CooldownWindow() time.Duration {
	return time.Duration(s.CooldownSeconds) * time.Second
}

// DebounceDelay returns the debounce delay as a duration.
func (s *BotSetting) DebounceDelay() time.Duration {
	return time.Duration(s.DebounceDelayMS) * time.Millisecond
}

// PollInterval returns the queue poll interval as a duration.
func (s *BotSetting) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMS) * time.Millisecond
}

// BatchInterval returns the reconciliation interval as a duration.
func (s *BotSetting) BatchInterval() time.Duration {
	return time.Duration(s.BatchIntervalMinutes) * time.Minute
}
