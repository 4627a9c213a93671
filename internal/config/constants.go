package config

import "time"

// Common constants for the daemon
const (
	// ConfigDirName is the name of the config directory within XDG_CONFIG_HOME
	ConfigDirName = "bulbd"

	// DaemonConfigFilename is the base filename for daemon config
	DaemonConfigFilename = "bulbd.yaml"

	// DefaultDatabaseFilename is the base filename for the bulb registry database
	DefaultDatabaseFilename = "bulbd.db"
)

// Default timeouts and intervals
const (
	// DefaultRefreshInterval is the default interval between property refreshes
	// of a single bulb
	DefaultRefreshInterval = 30 * time.Second

	// DefaultDiscoveryInterval is the default interval for network discovery
	DefaultDiscoveryInterval = 60 * time.Second

	// DefaultProbeTimeout is how long a single discovery probe listens for
	// bulb replies
	DefaultProbeTimeout = 3 * time.Second

	// DefaultNotifyDuration is the default duration of one notification pulse
	DefaultNotifyDuration = 400 * time.Millisecond

	// MinDiscoveryInterval is the minimum allowed discovery interval
	MinDiscoveryInterval = 5 * time.Second
)

// Light constraints
const (
	// MinBrightness is the minimum allowed brightness value
	MinBrightness = 1

	// MaxBrightness is the maximum allowed brightness value
	MaxBrightness = 100

	// DefaultMaxNameLength is the default maximum length of a bulb name
	DefaultMaxNameLength = 32
)

// Logging constants
const (
	// LogLevelDebug represents debug log level
	LogLevelDebug = "debug"

	// LogLevelInfo represents info log level
	LogLevelInfo = "info"

	// LogLevelWarn represents warning log level
	LogLevelWarn = "warn"

	// LogLevelError represents error log level
	LogLevelError = "error"

	// LogFormatText represents text log format
	LogFormatText = "text"

	// LogFormatJSON represents JSON log format
	LogFormatJSON = "json"
)
