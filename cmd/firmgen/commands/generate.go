package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/phrazzld/firmgen/internal/pipeline"
	"github.com/phrazzld/firmgen/internal/platform/logger"
	"github.com/phrazzld/firmgen/internal/task"
	"github.com/spf13/cobra"
)

func newGenerateCommand(load configLoader) *cobra.Command {
	var params task.Params

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the generation pipeline once and write the C file",
		Long: `Extract registers from a datasheet, parse pin assignments from a schematic and
generate C code that follows the instruction. At least one of --datasheet or
--schematic is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := params.Validate(); err != nil {
				return err
			}

			cfg, err := load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log, _, err := logger.New(cmd.ErrOrStderr(), cfg.Server)
			if err != nil {
				return err
			}
			for _, dir := range []string{cfg.Pipeline.DebugDir, cfg.Pipeline.TempDir} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", dir, err)
				}
			}

			runner, _, err := pipeline.Build(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			result, err := runner.Run(cmd.Context(), params, func(step int, name string, pct int) {
				fmt.Fprintf(out, "[%d/%d] %s (%d%%)\n", step, task.TotalSteps, name, pct)
			})
			if err != nil {
				var failure *task.Failure
				if errors.As(err, &failure) {
					fmt.Fprintf(out, "failed at step %d (%s): %s [%s]\n",
						failure.Step, failure.StepName, failure.Message, failure.Kind)
				}
				return err
			}

			fmt.Fprintf(out, "wrote %s: %d lines, %d bytes\n", result.OutputPath, result.CodeLines, result.CodeSize)
			fmt.Fprintf(out, "registers: %d, pin mappings: %d\n",
				len(result.ExtractedData.Registers), len(result.ExtractedData.PinMappings))
			timings := make([]string, 0, len(result.StepTimings))
			for _, st := range result.StepTimings {
				timings = append(timings, fmt.Sprintf("%s %dms", st.Step, st.ElapsedMS))
			}
			fmt.Fprintf(out, "timings: %s (total %dms)\n", strings.Join(timings, ", "), result.ElapsedMS)
			return nil
		},
	}

	cmd.Flags().StringVarP(&params.SpecDoc, "datasheet", "d", "", "datasheet or technical specification (.pdf, .txt, .md, image)")
	cmd.Flags().StringVarP(&params.DiagramDoc, "schematic", "s", "", "schematic or circuit diagram (.pdf, image, .txt, .md)")
	cmd.Flags().StringVarP(&params.Instruction, "instruction", "i", "", "what the generated code should do")
	cmd.Flags().StringVarP(&params.OutputPath, "output", "o", "generated_code.c", "output C file")
	return cmd
}
