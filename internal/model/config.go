package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// APIConfig holds settings for the backend REST API.
type APIConfig struct {
	// BaseURL is the root URL of the backend (e.g. https://api.example.com).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec is the per-request timeout in seconds.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// SyncConfig holds settings for the offline mutation queue.
type SyncConfig struct {
	// RetentionHours is how long successfully synced mutations are kept
	// before pruning, for audit/export. Zero prunes immediately.
	RetentionHours int `mapstructure:"retention_hours" yaml:"retention_hours"`
}

// NotifyConfig holds settings for the notification poller.
type NotifyConfig struct {
	// PollIntervalSec is the fixed base fetch interval.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// RateFloorSec is the minimum gap between two fetches.
	RateFloorSec int `mapstructure:"rate_floor_sec" yaml:"rate_floor_sec"`

	// DebounceMs is the quiet period that coalesces rapid triggers.
	DebounceMs int `mapstructure:"debounce_ms" yaml:"debounce_ms"`

	// DedupWindowSec is how long identical event content suppresses
	// re-delivery.
	DedupWindowSec int `mapstructure:"dedup_window_sec" yaml:"dedup_window_sec"`

	// BackoffThreshold is the consecutive-error count that switches
	// polling from the fixed interval to exponential backoff.
	BackoffThreshold int `mapstructure:"backoff_threshold" yaml:"backoff_threshold"`

	// BackoffMaxSec caps the computed backoff delay.
	BackoffMaxSec int `mapstructure:"backoff_max_sec" yaml:"backoff_max_sec"`

	// MaxNotifications caps the in-memory notification list.
	MaxNotifications int `mapstructure:"max_notifications" yaml:"max_notifications"`
}

// AlertsConfig holds settings for the on-screen alert queue.
type AlertsConfig struct {
	// MaxVisible is the number of tickets displayed at once; excess
	// tickets wait in FIFO order.
	MaxVisible int `mapstructure:"max_visible" yaml:"max_visible"`

	// CeilingSec is the hard safety ceiling: any ticket older than this
	// is swept regardless of its stated duration.
	CeilingSec int `mapstructure:"ceiling_sec" yaml:"ceiling_sec"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Notify  NotifyConfig  `mapstructure:"notify" yaml:"notify"`
	Alerts  AlertsConfig  `mapstructure:"alerts" yaml:"alerts"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/ledgerline/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "ledgerline", "config.yaml")
}

// DefaultDataPath returns the default path for the local database,
// located at ~/.config/ledgerline/ledgerline.db.
func DefaultDataPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "ledgerline.db")
	}
	return filepath.Join(home, ".config", "ledgerline", "ledgerline.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		API: APIConfig{
			TimeoutSec: 15,
		},
		Sync: SyncConfig{
			RetentionHours: 24,
		},
		Notify: NotifyConfig{
			PollIntervalSec:  30,
			RateFloorSec:     5,
			DebounceMs:       1000,
			DedupWindowSec:   10,
			BackoffThreshold: 3,
			BackoffMaxSec:    60,
			MaxNotifications: 100,
		},
		Alerts: AlertsConfig{
			MaxVisible: 4,
			CeilingSec: 30,
		},
		Display: DisplayConfig{
			Theme: "default",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("api.timeout_sec", 15)
	v.SetDefault("sync.retention_hours", 24)
	v.SetDefault("notify.poll_interval_sec", 30)
	v.SetDefault("notify.rate_floor_sec", 5)
	v.SetDefault("notify.debounce_ms", 1000)
	v.SetDefault("notify.dedup_window_sec", 10)
	v.SetDefault("notify.backoff_threshold", 3)
	v.SetDefault("notify.backoff_max_sec", 60)
	v.SetDefault("notify.max_notifications", 100)
	v.SetDefault("alerts.max_visible", 4)
	v.SetDefault("alerts.ceiling_sec", 30)
	v.SetDefault("display.theme", "default")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("sync", cfg.Sync)
	v.Set("notify", cfg.Notify)
	v.Set("alerts", cfg.Alerts)
	v.Set("display", cfg.Display)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
