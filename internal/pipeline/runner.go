package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/firmgen/internal/config"
	"github.com/phrazzld/firmgen/internal/generation"
	"github.com/phrazzld/firmgen/internal/repair"
	"github.com/phrazzld/firmgen/internal/task"
)

// TextExtractor returns the text content of a document.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// ImageConverter renders a document as an image. When the returned path differs
// from the input the caller owns the new file.
type ImageConverter interface {
	ToImage(ctx context.Context, path string) (string, error)
}

// stage describes one pipeline step for progress reports, timings and failures.
type stage struct {
	step int
	// name labels step timings and failures
	name string
	// status is the progress step name shown while the stage runs
	status     string
	percentage int
}

var (
	stageRegisters = stage{step: 1, name: "Extract Registers", status: "Extracting registers", percentage: 10}
	stageSchematic = stage{step: 2, name: "Parse Schematic", status: "Parsing schematic", percentage: 40}
	stageGenerate  = stage{step: 3, name: "Generate Code", status: "Generating code", percentage: 70}
	stageWrite     = stage{step: 3, name: "Write Output", status: "Writing output", percentage: 90}
)

// Deps are the collaborators a Runner drives.
type Deps struct {
	Invoker   generation.Invoker
	Repairer  *repair.Repairer
	Extractor TextExtractor
	Converter ImageConverter
	Prompts   *Prompts
}

// Runner executes the three-stage generation pipeline. It implements task.Runner
// and holds no per-run state, so one Runner serves concurrent tasks.
type Runner struct {
	deps   Deps
	config config.PipelineConfig
	logger *slog.Logger
}

var _ task.Runner = (*Runner)(nil)

// NewRunner creates a Runner.
//
// Parameters:
//   - deps: Model invoker, JSON repairer, document collaborators and prompts; all required
//   - cfg: Character limits and vision settings
//   - logger: Logger for stage events
//
// Returns:
//   - A configured Runner
//   - ErrInvalidConfig if a collaborator is missing
func NewRunner(deps Deps, cfg config.PipelineConfig, logger *slog.Logger) (*Runner, error) {
	switch {
	case deps.Invoker == nil:
		return nil, fmt.Errorf("%w: invoker cannot be nil", ErrInvalidConfig)
	case deps.Repairer == nil:
		return nil, fmt.Errorf("%w: repairer cannot be nil", ErrInvalidConfig)
	case deps.Extractor == nil:
		return nil, fmt.Errorf("%w: extractor cannot be nil", ErrInvalidConfig)
	case deps.Converter == nil:
		return nil, fmt.Errorf("%w: converter cannot be nil", ErrInvalidConfig)
	case deps.Prompts == nil:
		return nil, fmt.Errorf("%w: prompts cannot be nil", ErrInvalidConfig)
	case logger == nil:
		return nil, errors.New("logger cannot be nil")
	}
	return &Runner{deps: deps, config: cfg, logger: logger.With("component", "pipeline")}, nil
}

// Run executes the pipeline for params.
//
// The register stage is skipped when no datasheet is given and the schematic
// stage when no schematic is given; skipped stages contribute empty defaults
// and report neither progress nor a timing.
// Code generation always runs. On success the artifact is written to
// params.OutputPath. On failure the error is a *task.Failure naming the stage,
// and nothing is written.
func (r *Runner) Run(ctx context.Context, params task.Params, progress task.ProgressFunc) (*task.Result, error) {
	if progress == nil {
		progress = func(int, string, int) {}
	}
	log := r.logger.With("output_path", params.OutputPath)
	start := time.Now()

	var timings []task.StepTiming
	timed := func(st stage, fn func() error) error {
		progress(st.step, st.status, st.percentage)
		t0 := time.Now()
		err := fn()
		timings = append(timings, task.StepTiming{Step: st.name, ElapsedMS: time.Since(t0).Milliseconds()})
		return err
	}

	registers := registerShape.empty()
	if params.SpecDoc == "" {
		log.Info("no datasheet provided, skipping register extraction")
	} else if err := timed(stageRegisters, func() (err error) {
		registers, err = r.extractRegisters(ctx, log, params.SpecDoc)
		return err
	}); err != nil {
		return nil, stageFailure(stageRegisters, err, timings, nil)
	}

	pins := schematicShape.empty()
	if params.DiagramDoc == "" {
		log.Info("no schematic provided, skipping schematic parsing")
	} else if err := timed(stageSchematic, func() (err error) {
		pins, err = r.parseSchematic(ctx, log, params.DiagramDoc)
		return err
	}); err != nil {
		return nil, stageFailure(stageSchematic, err, timings, extracted(registers, nil))
	}

	var code string
	if err := timed(stageGenerate, func() (err error) {
		code, err = r.generateCode(ctx, log, registers, pins, params.Instruction)
		return err
	}); err != nil {
		return nil, stageFailure(stageGenerate, err, timings, extracted(registers, pins))
	}

	progress(stageWrite.step, stageWrite.status, stageWrite.percentage)
	if err := WriteArtifact(params.OutputPath, code); err != nil {
		return nil, stageFailure(stageWrite, err, timings, extracted(registers, pins))
	}

	data := extracted(registers, pins)
	result := &task.Result{
		OutputPath:    params.OutputPath,
		GeneratedCode: code,
		CodeLines:     countLines(code),
		CodeSize:      len(code),
		ExtractedData: *data,
		StepTimings:   timings,
		ElapsedMS:     time.Since(start).Milliseconds(),
	}

	log.Info("pipeline completed",
		"code_lines", result.CodeLines,
		"code_size", result.CodeSize,
		"registers", len(data.Registers),
		"pin_mappings", len(data.PinMappings),
		"elapsed_ms", result.ElapsedMS)
	return result, nil
}

// extracted collects the structured data produced so far. A nil pins value
// means the schematic stage has not completed.
func extracted(registers, pins map[string]any) *task.ExtractedData {
	data := &task.ExtractedData{Registers: list(registers, "registers")}
	if pins != nil {
		data.PinMappings = list(pins, "pin_mappings")
	}
	return data
}
