// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Fishing() FishingConfig
	Reaction() ReactionConfig
	Calibration() CalibrationConfig
	Hotkey() HotkeyConfig
	Store() StoreConfig
	Telemetry() TelemetryConfig
	Notify() NotifyConfig
	Redis() RedisConfig

	// Fishing Setters
	SetFishingSoundNotification(bool)
	SetFishingActionKey(string)

	// Reaction Setters
	SetReactionJitter(bool)
	SetReactionBounds(lowerMs, upperMs int)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	FishingCfg     FishingConfig     `mapstructure:"fishing" yaml:"fishing"`
	ReactionCfg    ReactionConfig    `mapstructure:"reaction" yaml:"reaction"`
	CalibrationCfg CalibrationConfig `mapstructure:"calibration" yaml:"calibration"`
	HotkeyCfg      HotkeyConfig      `mapstructure:"hotkey" yaml:"hotkey"`
	StoreCfg       StoreConfig       `mapstructure:"store" yaml:"store"`
	TelemetryCfg   TelemetryConfig   `mapstructure:"telemetry" yaml:"telemetry"`
	NotifyCfg      NotifyConfig      `mapstructure:"notify" yaml:"notify"`
	RedisCfg       RedisConfig       `mapstructure:"redis" yaml:"redis"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Fishing() FishingConfig         { return c.FishingCfg }
func (c *Config) Reaction() ReactionConfig       { return c.ReactionCfg }
func (c *Config) Calibration() CalibrationConfig { return c.CalibrationCfg }
func (c *Config) Hotkey() HotkeyConfig           { return c.HotkeyCfg }
func (c *Config) Store() StoreConfig             { return c.StoreCfg }
func (c *Config) Telemetry() TelemetryConfig     { return c.TelemetryCfg }
func (c *Config) Notify() NotifyConfig           { return c.NotifyCfg }
func (c *Config) Redis() RedisConfig             { return c.RedisCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetFishingSoundNotification(b bool) { c.FishingCfg.SoundNotification = b }
func (c *Config) SetFishingActionKey(k string)       { c.FishingCfg.ActionKey = k }

func (c *Config) SetReactionJitter(b bool) { c.ReactionCfg.Jitter = b }
func (c *Config) SetReactionBounds(lowerMs, upperMs int) {
	c.ReactionCfg.LowerBoundMs = lowerMs
	c.ReactionCfg.UpperBoundMs = upperMs
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

// FishingConfig holds the fallback preferences of the state dispatcher.
// Values stored in the persistent key-value store take precedence at session start.
type FishingConfig struct {
	ActionKey         string `mapstructure:"action_key" yaml:"action_key"`
	CollectKey        string `mapstructure:"collect_key" yaml:"collect_key"`
	SoundNotification bool   `mapstructure:"sound_notification" yaml:"sound_notification"`
	// TargetWindow is the window title input is allowed to go to.
	TargetWindow string `mapstructure:"target_window" yaml:"target_window"`
}

// CalibrationConfig tunes the walk and rotate experiments.
type CalibrationConfig struct {
	ForwardKey   string        `mapstructure:"forward_key" yaml:"forward_key"`
	WalkDuration time.Duration `mapstructure:"walk_duration" yaml:"walk_duration"`
	SettleTime   time.Duration `mapstructure:"settle_time" yaml:"settle_time"`
	RotatePulses int           `mapstructure:"rotate_pulses" yaml:"rotate_pulses"`
	PulseDelay   time.Duration `mapstructure:"pulse_delay" yaml:"pulse_delay"`
	RotateBy     int           `mapstructure:"rotate_by" yaml:"rotate_by"`
	// Timeout bounds a whole calibration run. Zero disables it.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// HotkeyConfig configures the hotkey event loop.
type HotkeyConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	// Bindings maps an action name (toggle, calibrate, quit) to a key identifier.
	Bindings map[string]string `mapstructure:"bindings" yaml:"bindings"`
}

// StoreConfig locates the persistent key-value store.
type StoreConfig struct {
	Path           string        `mapstructure:"path" yaml:"path"`
	BackupPath     string        `mapstructure:"backup_path" yaml:"backup_path"`
	BackupInterval time.Duration `mapstructure:"backup_interval" yaml:"backup_interval"`
}

// TelemetryConfig holds the connection details for the hole telemetry database.
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// NotifyConfig configures the notification sinks.
type NotifyConfig struct {
	AlertEnabled bool       `mapstructure:"alert_enabled" yaml:"alert_enabled"`
	RatePerMin   float64    `mapstructure:"rate_per_min" yaml:"rate_per_min"`
	Burst        int        `mapstructure:"burst" yaml:"burst"`
	AMQP         AMQPConfig `mapstructure:"amqp" yaml:"amqp"`
}

// AMQPConfig defines the remote notification queue.
type AMQPConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
	Queue   string `mapstructure:"queue" yaml:"queue"`
	Durable bool   `mapstructure:"durable" yaml:"durable"`
}

// RedisConfig locates the state feed and the coordinate provider.
type RedisConfig struct {
	Address    string        `mapstructure:"address" yaml:"address"`
	Password   string        `mapstructure:"password" yaml:"password"`
	DB         int           `mapstructure:"db" yaml:"db"`
	StateQueue string        `mapstructure:"state_queue" yaml:"state_queue"`
	CoordsKey  string        `mapstructure:"coords_key" yaml:"coords_key"`
	BlockWait  time.Duration `mapstructure:"block_wait" yaml:"block_wait"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "angler")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Fishing --
	v.SetDefault("fishing.action_key", "e")
	v.SetDefault("fishing.collect_key", "r")
	v.SetDefault("fishing.sound_notification", false)
	v.SetDefault("fishing.target_window", "Elder Scrolls Online")

	// -- Reaction --
	setReactionDefaults(v)

	// -- Calibration --
	v.SetDefault("calibration.forward_key", "w")
	v.SetDefault("calibration.walk_duration", "3s")
	v.SetDefault("calibration.settle_time", "500ms")
	v.SetDefault("calibration.rotate_pulses", 50)
	v.SetDefault("calibration.pulse_delay", "50ms")
	v.SetDefault("calibration.rotate_by", 30)
	v.SetDefault("calibration.timeout", "0s")

	// -- Hotkey --
	v.SetDefault("hotkey.cooldown", "100ms")
	v.SetDefault("hotkey.bindings", map[string]string{
		"toggle":    "f9",
		"calibrate": "f10",
		"quit":      "f8",
	})

	// -- Store --
	v.SetDefault("store.path", "~/.local/share/angler/angler.db")
	v.SetDefault("store.backup_path", "~/.local/share/angler/angler.bak.json")
	v.SetDefault("store.backup_interval", "5m")

	// -- Telemetry --
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.url", "")

	// -- Notify --
	v.SetDefault("notify.alert_enabled", true)
	v.SetDefault("notify.rate_per_min", 6.0)
	v.SetDefault("notify.burst", 3)
	v.SetDefault("notify.amqp.enabled", false)
	v.SetDefault("notify.amqp.queue", "angler.notifications")
	v.SetDefault("notify.amqp.durable", true)

	// -- Redis --
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.state_queue", "angler:states")
	v.SetDefault("redis.coords_key", "angler:coords")
	v.SetDefault("redis.block_wait", "2s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("telemetry.url", "ANGLER_TELEMETRY_URL")
	v.BindEnv("notify.amqp.url", "ANGLER_AMQP_URL")
	v.BindEnv("redis.password", "ANGLER_REDIS_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.TelemetryCfg.Enabled && cfg.TelemetryCfg.URL == "" {
		cfg.TelemetryCfg.URL = os.Getenv("ANGLER_TELEMETRY_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.FishingCfg.ActionKey == "" || c.FishingCfg.CollectKey == "" {
		return fmt.Errorf("fishing.action_key and fishing.collect_key are required")
	}
	if err := c.ReactionCfg.Validate(); err != nil {
		return fmt.Errorf("reaction configuration invalid: %w", err)
	}
	if err := c.CalibrationCfg.Validate(); err != nil {
		return fmt.Errorf("calibration configuration invalid: %w", err)
	}
	if c.HotkeyCfg.Cooldown < 0 {
		return fmt.Errorf("hotkey.cooldown must not be negative")
	}
	if c.StoreCfg.Path == "" {
		return fmt.Errorf("store.path is a required configuration field")
	}
	if c.TelemetryCfg.Enabled && c.TelemetryCfg.URL == "" {
		return fmt.Errorf("telemetry.url is required when telemetry is enabled. Ensure ANGLER_TELEMETRY_URL is set")
	}
	if c.NotifyCfg.AMQP.Enabled && c.NotifyCfg.AMQP.URL == "" {
		return fmt.Errorf("notify.amqp.url is required when amqp notifications are enabled")
	}
	return nil
}

// Validate checks the calibration experiment settings.
func (c *CalibrationConfig) Validate() error {
	if c.WalkDuration <= 0 {
		return fmt.Errorf("walk_duration must be a positive duration")
	}
	if c.RotatePulses <= 0 {
		return fmt.Errorf("rotate_pulses must be greater than 0")
	}
	if c.SettleTime < 0 || c.PulseDelay < 0 || c.Timeout < 0 {
		return fmt.Errorf("settle_time, pulse_delay and timeout must not be negative")
	}
	return nil
}
