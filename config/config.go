// Package config implements an optional environment/file-driven loader
// for Application options, built on github.com/spf13/viper so a config
// file can layer underneath environment variables instead of
// environment variables being the only source.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure from which a host
// entrypoint builds an *app.Application. Each field group corresponds to
// one construction concern.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Shutdown ShutdownConfig `mapstructure:"shutdown"`
	Version  VersionConfig  `mapstructure:"version"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the listen address.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr formats Host/Port as a net.Listen-ready address string.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ShutdownConfig maps onto shutdown.Options' timing fields.
type ShutdownConfig struct {
	DrainTimeout      time.Duration `mapstructure:"drain_timeout"`
	DrainPollInterval time.Duration `mapstructure:"drain_poll_interval"`
	GracePeriod       time.Duration `mapstructure:"grace_period"`
}

// VersionConfig maps onto version.Config's default/registered versions.
type VersionConfig struct {
	DefaultVersion string   `mapstructure:"default_version"`
	Register       []string `mapstructure:"register"`
	Header         string   `mapstructure:"header"`
	QueryParam     string   `mapstructure:"query_param"`
}

// LoggingConfig optionally routes the Application's default logger
// through a rotating file sink instead of stdout.
type LoggingConfig struct {
	Level string `mapstructure:"level"`

	// File, if non-empty, enables lumberjack-backed rotation to this
	// path instead of writing to stdout.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Shutdown: ShutdownConfig{
			DrainTimeout:      15 * time.Second,
			DrainPollInterval: 100 * time.Millisecond,
			GracePeriod:       30 * time.Second,
		},
		Version: VersionConfig{
			DefaultVersion: "v1",
			Register:       []string{"v1"},
			Header:         "X-API-Version",
			QueryParam:     "version",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// Load reads configuration from an optional file at path (if non-empty
// and present) layered under environment variables (NEXUS_SERVER_PORT,
// NEXUS_SHUTDOWN_DRAIN_TIMEOUT, ...), falling back to defaults(). File
// values take precedence over defaults; environment variables take
// precedence over both.
func Load(path string) (*Config, error) {
	v := viper.New()
	def := defaults()

	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("shutdown.drain_timeout", def.Shutdown.DrainTimeout)
	v.SetDefault("shutdown.drain_poll_interval", def.Shutdown.DrainPollInterval)
	v.SetDefault("shutdown.grace_period", def.Shutdown.GracePeriod)
	v.SetDefault("version.default_version", def.Version.DefaultVersion)
	v.SetDefault("version.register", def.Version.Register)
	v.SetDefault("version.header", def.Version.Header)
	v.SetDefault("version.query_param", def.Version.QueryParam)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.max_size_mb", def.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", def.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", def.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", def.Logging.Compress)

	v.SetEnvPrefix("nexus")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					return nil, fmt.Errorf("config: reading %s: %w", path, err)
				}
			}
		} else if !os.IsNotExist(statErr) {
			return nil, fmt.Errorf("config: stat %s: %w", path, statErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
