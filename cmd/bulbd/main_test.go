package main

import (
	"log/slog"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulbfleet/bulbd/internal/config"
)

func daemonFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("bulbd", pflag.ContinueOnError)
	fs.String("log-level", "info", "")
	fs.String("log-format", "text", "")
	fs.String("database", "", "")
	return fs
}

func TestFlagOverridesWin(t *testing.T) {
	cfg := &config.Config{
		Logging:  config.LoggingConfig{Level: "warn", Format: "json"},
		Database: config.DatabaseConfig{Path: "/var/lib/bulbd/bulbd.db"},
	}
	fs := daemonFlags()
	require.NoError(t, fs.Set("log-level", "debug"))
	require.NoError(t, fs.Set("database", "/tmp/override.db"))

	applyFlagOverrides(cfg, fs)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format, "untouched flag leaves config alone")
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
}

func TestFlagDefaultsDoNotClobberConfig(t *testing.T) {
	cfg := &config.Config{
		Logging:  config.LoggingConfig{Level: "debug", Format: "json"},
		Database: config.DatabaseConfig{Path: "/var/lib/bulbd/bulbd.db"},
	}

	applyFlagOverrides(cfg, daemonFlags())

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/var/lib/bulbd/bulbd.db", cfg.Database.Path)
}

func TestGetLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, getLogLevel(config.LogLevelDebug))
	assert.Equal(t, slog.LevelInfo, getLogLevel(config.LogLevelInfo))
	assert.Equal(t, slog.LevelWarn, getLogLevel(config.LogLevelWarn))
	assert.Equal(t, slog.LevelError, getLogLevel(config.LogLevelError))
	assert.Equal(t, slog.LevelInfo, getLogLevel("nonsense"))
}
