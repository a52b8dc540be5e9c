package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrNoGuildConfigured     = errors.New("discord guild_id is not configured")
)

// CurrentVersion of the config file.
const CurrentVersion = 1

// Config represents the entire application configuration.
type Config struct {
	Version    int           `koanf:"version"`
	Debug      Debug         `koanf:"debug"`
	PostgreSQL PostgreSQL    `koanf:"postgresql"`
	Redis      Redis         `koanf:"redis"`
	Discord    DiscordConfig `koanf:"discord"`
	Sync       SyncConfig    `koanf:"sync"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// DiscordConfig contains the bot token, target guild and the managed role catalog.
type DiscordConfig struct {
	// Discord bot token for authentication.
	Token string `koanf:"token"`
	// Guild whose members are managed.
	GuildID uint64 `koanf:"guild_id"`
	// Channel for reconciliation summary messages (0 disables).
	LogChannelID uint64 `koanf:"log_channel_id"`
	// Baseline role every linked player should hold.
	VerifiedRoleID uint64 `koanf:"verified_role_id"`
	// Managed tier role catalog.
	Catalog CatalogConfig `koanf:"catalog"`
}

// CatalogConfig describes the league hierarchy and its tier role tables.
// Leagues are listed from most to least prestigious.
type CatalogConfig struct {
	// The single position-based league at the top of the hierarchy.
	Position PositionLeagueConfig `koanf:"position"`
	// Wave-based leagues in hierarchy order below the position league.
	Waves []WaveLeagueConfig `koanf:"waves"`
}

// PositionLeagueConfig configures the position-based league.
type PositionLeagueConfig struct {
	// League name as it appears in tournament result tables.
	Name string `koanf:"name"`
	// Role for the most recent event's winner.
	TopRole uint64 `koanf:"top_role"`
	// Role name for the winner role.
	TopRoleName string `koanf:"top_role_name"`
	// Position thresholds in ascending order; smallest satisfying threshold wins.
	Tiers []TierConfig `koanf:"tiers"`
}

// WaveLeagueConfig configures a wave-based league.
type WaveLeagueConfig struct {
	// League name as it appears in tournament result tables.
	Name string `koanf:"name"`
	// Wave thresholds; evaluated from the highest threshold down.
	Tiers []TierConfig `koanf:"tiers"`
}

// TierConfig maps a threshold to a managed role.
type TierConfig struct {
	Threshold int    `koanf:"threshold"`
	Role      uint64 `koanf:"role"`
	Name      string `koanf:"name"`
}

// SyncConfig contains tunables for the event path and the batch reconciler.
// These are startup defaults; the settings store can override them at runtime.
type SyncConfig struct {
	// Seconds before allowing another update for the same member.
	CooldownSeconds int `koanf:"cooldown_seconds"`
	// Milliseconds to wait for additional role changes before deciding.
	DebounceDelayMS int `koanf:"debounce_delay_ms"`
	// Maximum number of members waiting in the update queue.
	QueueCapacity int `koanf:"queue_capacity"`
	// Milliseconds between queue polls.
	PollIntervalMS int `koanf:"poll_interval_ms"`
	// Minutes between scheduled reconciliation passes.
	BatchIntervalMinutes int `koanf:"batch_interval_minutes"`
	// Maximum result rows loaded per league during reconciliation.
	ResultsLimit int `koanf:"results_limit"`
}

// LoadConfig loads the configuration from the first config.toml found in the
// search paths. Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".tiersync",
		homeDir + "/.tiersync/config",
		"/etc/tiersync/config",
		"/app/config",
		"config",
		".",
	}

	var usedConfigPath string

	for _, path := range configPaths {
		configPath := path + "/config.toml"
		if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
			usedConfigPath = path
			break
		}
	}

	if usedConfigPath == "" {
		return nil, "", fmt.Errorf("%w: config.toml", ErrConfigFileNotFound)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := checkConfigVersion(config.Version); err != nil {
		return nil, "", err
	}

	if config.Discord.GuildID == 0 {
		return nil, "", ErrNoGuildConfigured
	}

	return &config, usedConfigPath, nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(current int) error {
	if current == 0 {
		return fmt.Errorf("%w: config.toml", ErrConfigVersionMissing)
	}

	if current != CurrentVersion {
		return fmt.Errorf("%w: config.toml (got: %d, expected: %d)",
			ErrConfigVersionMismatch, current, CurrentVersion)
	}

	return nil
}
