package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/phrazzld/firmgen/internal/docs"
	"github.com/phrazzld/firmgen/internal/generation"
	"github.com/phrazzld/firmgen/internal/repair"
)

// Model settings per stage.
const (
	registerTemperature  = 0.3
	registerMaxTokens    = 8000
	schematicTemperature = 0.3
	schematicMaxTokens   = 4000
	generateTemperature  = 0.5
	generateMaxTokens    = 4000
)

// extractRegisters asks the text model for the register map of a datasheet.
func (r *Runner) extractRegisters(ctx context.Context, log *slog.Logger, path string) (map[string]any, error) {
	log = log.With("stage", registerShape.stage, "datasheet", path)

	text, err := r.deps.Extractor.ExtractText(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read datasheet: %w", err)
	}
	capped := Truncate(text, r.config.SpecCharLimit)
	if len(capped) != len(text) {
		log.Info("datasheet text truncated", "original_chars", len([]rune(text)), "limit", r.config.SpecCharLimit)
	}

	prompt, err := r.deps.Prompts.ExtractRegisters(capped)
	if err != nil {
		return nil, err
	}
	raw, err := r.deps.Invoker.Invoke(ctx, generation.Request{
		Prompt:       prompt,
		SystemPrompt: r.deps.Prompts.System(),
		Temperature:  registerTemperature,
		MaxTokens:    registerMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	v := r.repairAndConform(log, registerShape, raw)
	log.Info("registers extracted", "count", len(list(v, "registers")))
	return v, nil
}

// parseSchematic extracts pin assignments from a schematic. Images, and PDFs
// that render to an image, go to the vision model. When rendering fails the
// stage falls back to the document's text.
func (r *Runner) parseSchematic(ctx context.Context, log *slog.Logger, path string) (map[string]any, error) {
	log = log.With("stage", schematicShape.stage, "schematic", path)

	var raw string
	switch docs.DetectKind(path) {
	case docs.KindImage, docs.KindPDF:
		image, err := r.deps.Converter.ToImage(ctx, path)
		if err != nil {
			var toolErr *docs.ToolUnavailableError
			if errors.As(err, &toolErr) {
				log.Warn("cannot render schematic, falling back to text extraction",
					"tried", len(toolErr.Tried),
					"remedies", toolErr.Remedies)
			} else {
				log.Warn("cannot render schematic, falling back to text extraction", "error", err)
			}
			break
		}
		raw, err = r.schematicFromImage(ctx, log, path, image)
		if err != nil {
			return nil, err
		}
	}

	if raw == "" {
		var err error
		raw, err = r.schematicFromText(ctx, log, path)
		if err != nil {
			return nil, err
		}
	}

	v := r.repairAndConform(log, schematicShape, raw)
	log.Info("schematic parsed", "pin_mappings", len(list(v, "pin_mappings")))
	return v, nil
}

func (r *Runner) schematicFromImage(ctx context.Context, log *slog.Logger, source, image string) (string, error) {
	if image != source {
		defer func() {
			if err := os.Remove(image); err != nil {
				log.Warn("failed to remove rendered schematic", "path", image, "error", err)
			}
		}()
	}

	data, err := os.ReadFile(image)
	if err != nil {
		return "", fmt.Errorf("failed to read schematic image: %w", err)
	}
	prompt, err := r.deps.Prompts.ParseSchematic("")
	if err != nil {
		return "", err
	}

	log.Info("analysing schematic with vision model", "image_bytes", len(data))
	return r.deps.Invoker.Invoke(ctx, generation.Request{
		Prompt:      prompt,
		Image:       data,
		ImageMIME:   docs.ImageMIME(image),
		Temperature: schematicTemperature,
		MaxTokens:   schematicMaxTokens,
	})
}

func (r *Runner) schematicFromText(ctx context.Context, log *slog.Logger, path string) (string, error) {
	text, err := r.deps.Extractor.ExtractText(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to read schematic: %w", err)
	}
	prompt, err := r.deps.Prompts.ParseSchematic(Truncate(text, r.config.DiagramCharLimit))
	if err != nil {
		return "", err
	}

	log.Info("analysing schematic text", "chars", len(text))
	return r.deps.Invoker.Invoke(ctx, generation.Request{
		Prompt:      prompt,
		Temperature: schematicTemperature,
		MaxTokens:   schematicMaxTokens,
	})
}

// generateCode asks the text model for C source using both extracted structures.
func (r *Runner) generateCode(ctx context.Context, log *slog.Logger, registers, pins map[string]any, instruction string) (string, error) {
	log = log.With("stage", "generate")

	registerJSON, err := json.MarshalIndent(registers, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode registers: %w", err)
	}
	pinJSON, err := json.MarshalIndent(pins, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode pin mappings: %w", err)
	}

	prompt, err := r.deps.Prompts.GenerateCode(string(registerJSON), string(pinJSON), instruction)
	if err != nil {
		return "", err
	}
	raw, err := r.deps.Invoker.Invoke(ctx, generation.Request{
		Prompt:       prompt,
		SystemPrompt: r.deps.Prompts.System(),
		Temperature:  generateTemperature,
		MaxTokens:    generateMaxTokens,
	})
	if err != nil {
		return "", err
	}

	code := StripCodeFence(raw)
	log.Info("code generated", "chars", len(code))
	return code, nil
}

func (r *Runner) repairAndConform(log *slog.Logger, s shape, raw string) map[string]any {
	v, outcome := r.deps.Repairer.Repair(s.stage, raw, s.empty)
	if outcome != repair.OutcomeParsed {
		log.Warn("model response needed repair", "outcome", outcome)
	}
	return s.conform(v, log)
}
