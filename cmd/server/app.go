package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/phrazzld/firmgen/internal/config"
	"github.com/phrazzld/firmgen/internal/docs"
	"github.com/phrazzld/firmgen/internal/pipeline"
	"github.com/phrazzld/firmgen/internal/platform/postgres"
	"github.com/phrazzld/firmgen/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	scheduler       *task.Scheduler
	checker         *docs.Checker
	archive         *postgres.TaskArchive
	modelConfigured bool
	started         time.Time
}

// newApplication creates a new application instance with all dependencies initialized.
//
// Parameters:
//   - ctx: Bounds client initialization and the archive connection
//   - cfg: The validated configuration
//   - logger: The base logger
//
// Returns:
//   - The wired application with its scheduler not yet started
//   - An error if a working directory, the pipeline or the archive cannot be set up
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		checker: docs.NewChecker(cfg.Tools, nil),
		started: time.Now(),
	}

	if err := ensureDirs(cfg.Server.UploadDir, cfg.Server.OutputDir, cfg.Pipeline.DebugDir, cfg.Pipeline.TempDir); err != nil {
		return nil, err
	}

	runner, modelConfigured, err := pipeline.Build(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	app.modelConfigured = modelConfigured

	tools := app.checker.Available()
	if !tools.CanConvert {
		logger.Warn("no PDF converter installed; PDF schematics fall back to text extraction",
			"remedies", docs.InstallRemedies)
	}

	app.scheduler = task.NewScheduler(
		task.NewStore(logger.With("component", "task_store")),
		runner,
		task.SchedulerConfig{
			MaxConcurrent: cfg.Scheduler.MaxConcurrent,
			Retention:     cfg.Scheduler.Retention,
			ReapInterval:  cfg.Scheduler.ReapInterval,
		},
		logger.With("component", "scheduler"),
	)

	if cfg.Archive.Enabled() {
		app.archive, err = postgres.Open(ctx, cfg.Archive.DatabaseURL, logger.With("component", "archive"))
		if err != nil {
			return nil, fmt.Errorf("failed to open task archive: %w", err)
		}
		app.scheduler.SetArchiver(app.archive)
	}

	logger.Info("application initialized",
		"model_configured", modelConfigured,
		"can_convert", tools.CanConvert)
	return app, nil
}

// Run starts the scheduler and serves HTTP until shutdown.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	app.scheduler.Start()

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup stops the scheduler, letting running tasks finish within ctx, then
// closes the archive.
func (app *application) cleanup(ctx context.Context) {
	if app.scheduler != nil {
		if err := app.scheduler.Stop(ctx); err != nil {
			app.logger.Error("scheduler did not stop cleanly", "error", err)
		}
	}

	if app.archive != nil {
		if err := app.archive.Close(); err != nil {
			app.logger.Error("error closing task archive", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}

func ensureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
