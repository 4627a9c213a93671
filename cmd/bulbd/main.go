package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bulbfleet/bulbd/internal/config"
	"github.com/bulbfleet/bulbd/internal/events"
	"github.com/bulbfleet/bulbd/internal/fleet"
	"github.com/bulbfleet/bulbd/internal/store"
	"github.com/bulbfleet/bulbd/pkg/yeelight"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Set up Viper for configuration
	v := viper.New()
	v.SetEnvPrefix("BULBD")
	v.AutomaticEnv()

	// Set up command line flags
	pflag.String("log-level", "info", "Log level (debug, info, warn, error)")
	pflag.String("log-format", "text", "Log format (text, json)")
	pflag.String("config", "", "Path to config file")
	pflag.String("database", "", "Path to the bulb registry database")
	pflag.Parse()

	v.BindPFlag("config", pflag.Lookup("config"))

	// Load configuration
	cfg, err := config.Load(config.DaemonConfigFilename, v.GetString("config"))
	if err != nil {
		// Create a basic logger for the error
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	applyFlagOverrides(cfg, pflag.CommandLine)

	// Set up logging with the configured level
	level := getLogLevel(cfg.Logging.Level)
	var handler slog.Handler
	if cfg.Logging.Format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("Starting bulbd",
		"version", version,
		"commit", commit,
		"buildDate", buildDate,
	)

	registry, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open bulb registry", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer registry.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prober := &yeelight.SSDPProber{Timeout: cfg.Discovery.ProbeTimeout, Logger: logger}
	bus := events.NewBus()
	manager := fleet.New(logger, cfg, registry, prober, nil, bus)
	manager.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down...")
	cancel()
}

// applyFlagOverrides lets explicitly passed flags win over file and env
// values. Only flags the user actually set override; flag defaults never
// clobber a configured value.
func applyFlagOverrides(cfg *config.Config, flags *pflag.FlagSet) {
	if f := flags.Lookup("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = f.Value.String()
	}
	if f := flags.Lookup("log-format"); f != nil && f.Changed {
		cfg.Logging.Format = f.Value.String()
	}
	if f := flags.Lookup("database"); f != nil && f.Changed {
		cfg.Database.Path = f.Value.String()
	}
}

func getLogLevel(level string) slog.Level {
	switch level {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelInfo:
		return slog.LevelInfo
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
