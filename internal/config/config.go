// Package config loads server configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
	Network  NetworkConfig  `mapstructure:"network"`
}

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig selects log verbosity and encoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig points at the card database. An empty DSN selects the
// built-in starter decks.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// GameConfig tunes match setup.
type GameConfig struct {
	HandSize      int   `mapstructure:"hand_size"`
	LifeCardCount int   `mapstructure:"life_card_count"`
	Seed          int64 `mapstructure:"seed"`
}

// NetworkConfig tunes the synchronization layer.
type NetworkConfig struct {
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	MonitorInterval      time.Duration `mapstructure:"monitor_interval"`
}

// Load reads configuration from the given path. Every key can be
// overridden through the environment with a KONIVRER_ prefix, e.g.
// KONIVRER_SERVER_ADDRESS or KONIVRER_DATABASE_DSN. A missing file is
// not an error; defaults and the environment still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("KONIVRER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.dsn", "")
	v.SetDefault("game.hand_size", 7)
	v.SetDefault("game.life_card_count", 4)
	v.SetDefault("game.seed", 0)
	v.SetDefault("network.heartbeat_interval", 5*time.Second)
	v.SetDefault("network.reconnect_delay", time.Second)
	v.SetDefault("network.max_reconnect_attempts", 5)
	v.SetDefault("network.monitor_interval", 10*time.Second)
}

func (c *Config) validate() error {
	if c.Game.HandSize < 1 {
		return fmt.Errorf("game.hand_size must be positive, got %d", c.Game.HandSize)
	}
	if c.Game.LifeCardCount < 1 {
		return fmt.Errorf("game.life_card_count must be positive, got %d", c.Game.LifeCardCount)
	}
	if c.Network.MaxReconnectAttempts < 1 {
		return fmt.Errorf("network.max_reconnect_attempts must be positive, got %d", c.Network.MaxReconnectAttempts)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
