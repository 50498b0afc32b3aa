package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// SourceConfig holds the configuration for a supplementary inbound source
// (for example a booking mailbox).
type SourceConfig struct {
	// ID is the unique identifier for this source instance.
	ID string `mapstructure:"id" yaml:"id" validate:"required"`

	// Type identifies the source kind (currently only "email").
	Type string `mapstructure:"type" yaml:"type" validate:"oneof=email"`

	// Name is the user-defined label for this source instance.
	Name string `mapstructure:"name" yaml:"name"`

	// Enabled controls whether this source is actively polled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// PollIntervalSec is how often (in seconds) to fetch updates.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec" validate:"gte=0"`

	// Config holds source-specific key-value settings
	// (e.g., imap_host, imap_port, username, tls).
	Config map[string]string `mapstructure:"config" yaml:"config"`
}

// ServerConfig describes the realtime endpoint.
type ServerConfig struct {
	URL string `mapstructure:"url" yaml:"url" validate:"required,url"`

	// JoinEvent is the event name of the outbound room-join message.
	JoinEvent string `mapstructure:"join_event" yaml:"join_event" validate:"required"`

	// NotificationEvents lists inbound event names carrying notifications.
	NotificationEvents []string `mapstructure:"notification_events" yaml:"notification_events" validate:"min=1"`
}

// ReconnectConfig bounds reconnection after a drop.
type ReconnectConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts" validate:"gte=1"`
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay" validate:"gt=0"`
	MaxDelay     time.Duration `mapstructure:"max_delay" yaml:"max_delay" validate:"gtefield=InitialDelay"`
}

// SoundConfig tunes the sound arbitration engine.
type SoundConfig struct {
	Throttle    time.Duration `mapstructure:"throttle" yaml:"throttle" validate:"gte=0"`
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay" validate:"gte=0"`
	PromptDelay time.Duration `mapstructure:"prompt_delay" yaml:"prompt_delay" validate:"gte=0"`

	// AutoplayRestricted keeps the playback gate locked until a genuine
	// user interaction. Headless mode forces it off.
	AutoplayRestricted bool `mapstructure:"autoplay_restricted" yaml:"autoplay_restricted"`

	// Player selects the primary playback tool ("auto" picks per OS).
	Player string `mapstructure:"player" yaml:"player"`

	// ClipPath optionally replaces the synthesized alert clip.
	ClipPath string `mapstructure:"clip_path" yaml:"clip_path"`
}

// DisplayConfig holds display queue and rendering preferences.
type DisplayConfig struct {
	MaxVisible int    `mapstructure:"max_visible" yaml:"max_visible" validate:"gte=1"`
	Theme      string `mapstructure:"theme" yaml:"theme" validate:"omitempty,oneof=default mono"`
}

// NotificationsConfig controls side channels of ingestion.
type NotificationsConfig struct {
	// Desktop mirrors notifications to the OS notification center while
	// the console is not focused.
	Desktop      bool `mapstructure:"desktop" yaml:"desktop"`
	HistoryLimit int  `mapstructure:"history_limit" yaml:"history_limit" validate:"gte=1,lte=50"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server        ServerConfig        `mapstructure:"server" yaml:"server"`
	Reconnect     ReconnectConfig     `mapstructure:"reconnect" yaml:"reconnect"`
	Sound         SoundConfig         `mapstructure:"sound" yaml:"sound"`
	Display       DisplayConfig       `mapstructure:"display" yaml:"display"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	Sources       []SourceConfig      `mapstructure:"sources" yaml:"sources" validate:"dive"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path" validate:"required"`
	LogFile      string `mapstructure:"log_file" yaml:"log_file"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level" validate:"oneof=trace debug info warn error"`
}

// ConfigDir returns ~/.config/frontdesk, falling back to the working
// directory when the home directory is unknown.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "frontdesk")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/frontdesk/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dir := ConfigDir()
	return &AppConfig{
		Server: ServerConfig{
			URL:                "ws://localhost:3000/ws",
			JoinEvent:          "join",
			NotificationEvents: []string{"notification", "new_notification"},
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:  5,
			InitialDelay: time.Second,
			MaxDelay:     5 * time.Second,
		},
		Sound: SoundConfig{
			Throttle:           500 * time.Millisecond,
			SettleDelay:        300 * time.Millisecond,
			PromptDelay:        3 * time.Second,
			AutoplayRestricted: true,
			Player:             "auto",
		},
		Display: DisplayConfig{
			MaxVisible: 5,
			Theme:      "default",
		},
		Notifications: NotificationsConfig{
			Desktop:      true,
			HistoryLimit: 50,
		},
		Sources:      []SourceConfig{},
		DatabasePath: filepath.Join(dir, "frontdesk.db"),
		LogFile:      filepath.Join(dir, "frontdesk.log"),
		LogLevel:     "info",
	}
}

// DefaultAppConfig exposes the built-in defaults.
func DefaultAppConfig() *AppConfig {
	return defaultAppConfig()
}

// setDefaults mirrors defaultAppConfig into viper so that missing keys
// resolve to the same values.
func setDefaults(v *viper.Viper, d *AppConfig) {
	v.SetDefault("server.url", d.Server.URL)
	v.SetDefault("server.join_event", d.Server.JoinEvent)
	v.SetDefault("server.notification_events", d.Server.NotificationEvents)
	v.SetDefault("reconnect.max_attempts", d.Reconnect.MaxAttempts)
	v.SetDefault("reconnect.initial_delay", d.Reconnect.InitialDelay)
	v.SetDefault("reconnect.max_delay", d.Reconnect.MaxDelay)
	v.SetDefault("sound.throttle", d.Sound.Throttle)
	v.SetDefault("sound.settle_delay", d.Sound.SettleDelay)
	v.SetDefault("sound.prompt_delay", d.Sound.PromptDelay)
	v.SetDefault("sound.autoplay_restricted", d.Sound.AutoplayRestricted)
	v.SetDefault("sound.player", d.Sound.Player)
	v.SetDefault("display.max_visible", d.Display.MaxVisible)
	v.SetDefault("display.theme", d.Display.Theme)
	v.SetDefault("notifications.desktop", d.Notifications.Desktop)
	v.SetDefault("notifications.history_limit", d.Notifications.HistoryLimit)
	v.SetDefault("database_path", d.DatabasePath)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("log_level", d.LogLevel)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
// Environment variables prefixed with FRONTDESK_ override file values
// (e.g. FRONTDESK_SERVER_URL).
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("frontdesk")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, defaultAppConfig())

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Apply defaults for each source entry.
	for i := range cfg.Sources {
		if cfg.Sources[i].PollIntervalSec == 0 {
			cfg.Sources[i].PollIntervalSec = 120
		}
		if !cfg.Sources[i].Enabled {
			// Viper unmarshals missing bools as false; treat unset as true.
			key := fmt.Sprintf("sources.%d.enabled", i)
			if !v.IsSet(key) {
				cfg.Sources[i].Enabled = true
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks struct-level constraints on the configuration.
func (c *AppConfig) Validate() error {
	return validator.New().Struct(c)
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

	v.Set("server", cfg.Server)
	v.Set("reconnect", cfg.Reconnect)
	v.Set("sound", cfg.Sound)
	v.Set("display", cfg.Display)
	v.Set("notifications", cfg.Notifications)
	v.Set("sources", cfg.Sources)
	v.Set("database_path", cfg.DatabasePath)
	v.Set("log_file", cfg.LogFile)
	v.Set("log_level", cfg.LogLevel)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
