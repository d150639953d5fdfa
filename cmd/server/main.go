// Package main implements the entry point for the firmgen server, which turns
// datasheets, schematics and instructions into embedded C code through an
// asynchronous generation pipeline.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/phrazzld/firmgen/internal/config"
	"github.com/phrazzld/firmgen/internal/platform/logger"
)

// main is the entry point for the firmgen server.
// It loads configuration, sets up logging, wires the application and serves
// HTTP until SIGINT or SIGTERM.
func main() {
	if err := run(context.Background()); err != nil {
		log.Fatalf("firmgen server: %v", err)
	}
}

func run(ctx context.Context) error {
	src, err := config.NewSource(os.Getenv(config.EnvConfigFile))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg, err := src.Config()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Set up structured logging using the configured log level
	appLogger, level, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"config_file", src.File(),
		"max_concurrent", cfg.Scheduler.MaxConcurrent,
		"archive_enabled", cfg.Archive.Enabled())

	watchLogLevel(src, level, appLogger)

	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}

// watchLogLevel applies log level changes written to the config file while
// the server runs. Other settings need a restart.
func watchLogLevel(src *config.Source, level *slog.LevelVar, log *slog.Logger) {
	watching := src.Watch(func(cfg *config.Config, err error) {
		if err != nil {
			log.Warn("ignoring invalid configuration change", "error", err)
			return
		}
		if err := logger.ApplyLevel(level, cfg.Server.LogLevel); err != nil {
			log.Warn("ignoring invalid log level", "level", cfg.Server.LogLevel, "error", err)
			return
		}
		log.Info("log level updated", "level", cfg.Server.LogLevel)
	})
	if watching {
		log.Debug("watching config file for changes", "file", src.File())
	}
}
