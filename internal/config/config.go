package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// XDG helpers
func getConfigBaseDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, ConfigDirName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", ConfigDirName)
}

func getConfigPath(filename string) string {
	return filepath.Join(getConfigBaseDir(), filename)
}

func getDefaultDatabasePath() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, ConfigDirName, DefaultDatabaseFilename)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", ConfigDirName, DefaultDatabaseFilename)
}

// Config represents the application configuration
type Config struct {
	Lights    LightsConfig
	Discovery DiscoveryConfig
	Database  DatabaseConfig
	Logging   LoggingConfig

	// Internal viper instance
	v *viper.Viper
}

// LightsConfig represents per-bulb behaviour settings
type LightsConfig struct {
	MaxNameLength   int           `mapstructure:"max_name_length"`  // Maximum length of a user-supplied bulb name
	RefreshInterval time.Duration `mapstructure:"refresh_interval"` // Interval between background property refreshes
	NotifyDuration  time.Duration `mapstructure:"notify_duration"`  // Duration of one notification pulse
}

// DiscoveryConfig represents the discovery configuration
type DiscoveryConfig struct {
	Interval     time.Duration `mapstructure:"interval"`      // Interval between discovery passes
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"` // How long a probe listens for replies
}

// DatabaseConfig represents the bulb registry database configuration
type DatabaseConfig struct {
	Path string
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from a file and environment variables
func Load(configName, configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")

	// Set default values
	v.SetDefault("lights.max_name_length", DefaultMaxNameLength)
	v.SetDefault("lights.refresh_interval", DefaultRefreshInterval)
	v.SetDefault("lights.notify_duration", DefaultNotifyDuration)
	v.SetDefault("discovery.interval", DefaultDiscoveryInterval)
	v.SetDefault("discovery.probe_timeout", DefaultProbeTimeout)
	v.SetDefault("database.path", getDefaultDatabasePath())
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.format", LogFormatText)

	// Add config paths
	if configFile != "" {
		v.SetConfigFile(configFile)
		slog.Info("Using config file from command line", "path", configFile)
	} else {
		configPath := getConfigPath(configName)
		v.SetConfigFile(configPath)

		// Create config directory if it doesn't exist
		configDir := getConfigBaseDir()
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return nil, fmt.Errorf("error creating config directory: %w", err)
		}

		// Only log if config file exists
		if _, err := os.Stat(configPath); err == nil {
			slog.Info("Using default config file", "path", configPath)
		}
	}

	// Read config file - Viper will use defaults if file not found
	v.ReadInConfig()

	// Bind environment variables
	v.SetEnvPrefix("BULBD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Create config struct
	cfg := &Config{
		Lights: LightsConfig{
			MaxNameLength:   v.GetInt("lights.max_name_length"),
			RefreshInterval: v.GetDuration("lights.refresh_interval"),
			NotifyDuration:  v.GetDuration("lights.notify_duration"),
		},
		Discovery: DiscoveryConfig{
			Interval:     v.GetDuration("discovery.interval"),
			ProbeTimeout: v.GetDuration("discovery.probe_timeout"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		v: v,
	}

	if cfg.Discovery.Interval < MinDiscoveryInterval {
		slog.Warn("Discovery interval too short, using minimum",
			"interval", cfg.Discovery.Interval, "minimum", MinDiscoveryInterval)
		cfg.Discovery.Interval = MinDiscoveryInterval
	}

	return cfg, nil
}

// Get retrieves a value from the configuration
func (c *Config) Get(key string) interface{} {
	if c.v == nil {
		return nil
	}
	return c.v.Get(key)
}

// Set sets a value in the configuration
func (c *Config) Set(key string, value interface{}) {
	if c.v == nil {
		return
	}
	c.v.Set(key, value)
}
