package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/firmgen/internal/config"
	"github.com/phrazzld/firmgen/internal/docs"
	"github.com/phrazzld/firmgen/internal/generation"
	"github.com/phrazzld/firmgen/internal/platform/gemini"
	"github.com/phrazzld/firmgen/internal/repair"
)

// Build assembles a production Runner from configuration: the Gemini
// transport behind a resilient invoker, the external document tools, the JSON
// repairer and the prompt templates.
//
// A missing API key does not fail the build. The runner is created over an
// unavailable transport so every model call fails with a configuration error,
// and modelConfigured is false.
//
// Parameters:
//   - ctx: Context for client initialization
//   - cfg: The full service configuration
//   - logger: Base logger; components derive their own scoped loggers
//
// Returns:
//   - The runner and whether a model backend is configured
//   - An error when a configured component cannot be created
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (runner *Runner, modelConfigured bool, err error) {
	var transport generation.Transport
	if cfg.LLM.GeminiAPIKey == "" {
		logger.Warn("no Gemini API key configured; generation requests will fail")
		transport = generation.UnavailableTransport{Reason: "gemini_api_key is not set"}
	} else {
		t, err := gemini.NewTransport(ctx, logger.With("component", "gemini"), cfg.LLM)
		if err != nil {
			return nil, false, fmt.Errorf("failed to create model transport: %w", err)
		}
		transport = t
		modelConfigured = true
	}

	invoker, err := generation.NewResilientInvoker(transport, generation.InvokerConfig{
		MaxRetries:      cfg.LLM.MaxRetries,
		RetryDelay:      cfg.LLM.RetryDelay,
		AttemptTimeout:  cfg.LLM.AttemptTimeout,
		BreakerFailures: cfg.LLM.BreakerFailures,
		BreakerCooldown: cfg.LLM.BreakerCooldown,
		BreakerProbes:   uint32(cfg.Scheduler.MaxConcurrent),
	}, logger.With("component", "invoker"))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create model invoker: %w", err)
	}

	prompts, err := LoadPrompts(cfg.Pipeline.PromptDir)
	if err != nil {
		return nil, false, err
	}

	runner, err = NewRunner(Deps{
		Invoker:   invoker,
		Repairer:  repair.New(cfg.Pipeline.DebugDir, logger.With("component", "repair")),
		Extractor: docs.NewExtractor(cfg.Tools, nil, logger.With("component", "extractor")),
		Converter: docs.NewConverter(cfg.Tools, cfg.Pipeline.DPI, cfg.Pipeline.TempDir, nil,
			logger.With("component", "converter")),
		Prompts: prompts,
	}, cfg.Pipeline, logger)
	if err != nil {
		return nil, false, err
	}
	return runner, modelConfigured, nil
}
