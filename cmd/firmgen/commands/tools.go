package commands

import (
	"fmt"

	"github.com/phrazzld/firmgen/internal/docs"
	"github.com/spf13/cobra"
)

func newToolsCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Show which document conversion tools are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			st := docs.NewChecker(cfg.Tools, nil).Available()
			out := cmd.OutOrStdout()
			for _, row := range []struct {
				name, bin string
				ok        bool
			}{
				{"imagemagick", cfg.Tools.Magick, st.Magick},
				{"ghostscript", cfg.Tools.Ghostscript, st.Ghostscript},
				{"pdftoppm", cfg.Tools.Pdftoppm, st.Pdftoppm},
				{"pdftotext", cfg.Tools.Pdftotext, st.Pdftotext},
				{"tesseract", cfg.Tools.Tesseract, st.Tesseract},
			} {
				mark := "missing"
				if row.ok {
					mark = "ok"
				}
				fmt.Fprintf(out, "%-12s %-10s %s\n", row.name, row.bin, mark)
			}

			if !st.CanConvert {
				fmt.Fprintln(out, "\nNo PDF converter found. PDF schematics will fall back to text extraction.")
				for _, r := range docs.InstallRemedies {
					fmt.Fprintf(out, "  - %s\n", r)
				}
			}
			return nil
		},
	}
}
