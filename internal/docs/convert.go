package docs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/firmgen/internal/config"
)

// Converter renders documents as images for the vision model.
type Converter struct {
	tools   config.ToolsConfig
	dpi     int
	tempDir string
	runner  Runner
	logger  *slog.Logger
}

// NewConverter creates a Converter writing images into tempDir. A nil runner uses ExecRunner.
func NewConverter(tools config.ToolsConfig, dpi int, tempDir string, runner Runner, logger *slog.Logger) *Converter {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Converter{tools: tools, dpi: dpi, tempDir: tempDir, runner: runner, logger: logger}
}

// converterTool renders the first page of in to out.
type converterTool struct {
	name string
	bin  string
	// args returns the command line and the file the tool will write
	args func(in, out string, dpi int) ([]string, string)
}

func (c *Converter) chain() []converterTool {
	return []converterTool{
		{
			name: "ImageMagick",
			bin:  c.tools.Magick,
			args: func(in, out string, dpi int) ([]string, string) {
				return []string{"-density", strconv.Itoa(dpi), in + "[0]", out}, out
			},
		},
		{
			name: "Ghostscript",
			bin:  c.tools.Ghostscript,
			args: func(in, out string, dpi int) ([]string, string) {
				return []string{
					"-dSAFER", "-dBATCH", "-dNOPAUSE", "-sDEVICE=png16m",
					"-r" + strconv.Itoa(dpi), "-dFirstPage=1", "-dLastPage=1",
					"-sOutputFile=" + out, in,
				}, out
			},
		},
		{
			name: "pdftoppm",
			bin:  c.tools.Pdftoppm,
			args: func(in, out string, dpi int) ([]string, string) {
				prefix := strings.TrimSuffix(out, ".png")
				return []string{"-png", "-r", strconv.Itoa(dpi), "-f", "1", "-l", "1", "-singlefile", in, prefix}, prefix + ".png"
			},
		},
	}
}

// ToImage returns an image path for path. Images are returned unchanged; PDFs are
// rendered to a PNG of their first page by the first converter that works, in the
// order ImageMagick, Ghostscript, pdftoppm. The caller owns and removes any image
// ToImage creates, which is the case whenever the returned path differs from path.
//
// When no converter works the error is a *ToolUnavailableError listing every attempt.
func (c *Converter) ToImage(ctx context.Context, path string) (string, error) {
	switch DetectKind(path) {
	case KindImage:
		return path, nil
	case KindPDF:
	default:
		return "", fmt.Errorf("%w: cannot convert %s to image", ErrUnsupportedType, path)
	}

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("document not readable: %w", err)
	}
	if err := os.MkdirAll(c.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(c.tempDir, base+"_"+uuid.NewString()+".png")
	log := c.logger.With("path", path, "dpi", c.dpi)

	var tried []ToolAttempt
	for _, tool := range c.chain() {
		if _, err := c.runner.LookPath(tool.bin); err != nil {
			log.Info("converter not installed", "tool", tool.name)
			tried = append(tried, ToolAttempt{Tool: tool.name, Reason: "not installed"})
			continue
		}

		start := time.Now()
		args, written := tool.args(path, out, c.dpi)
		_, errb, err := c.runner.Run(ctx, log, tool.bin, args...)
		if err != nil {
			_ = os.Remove(written)
			reason := err.Error()
			if msg := strings.TrimSpace(string(errb)); msg != "" {
				reason += ": " + truncate(msg, 256)
			}
			log.Warn("converter failed, trying next", "tool", tool.name, "error", reason)
			tried = append(tried, ToolAttempt{Tool: tool.name, Reason: reason})
			continue
		}
		if st, err := os.Stat(written); err != nil || st.Size() == 0 {
			_ = os.Remove(written)
			tried = append(tried, ToolAttempt{Tool: tool.name, Reason: "produced no output"})
			continue
		}

		log.Info("converted PDF to image",
			"tool", tool.name,
			"output", written,
			"elapsed_ms", time.Since(start).Milliseconds())
		return written, nil
	}

	return "", &ToolUnavailableError{
		Operation: "convert PDF to image",
		Tried:     tried,
		Remedies:  InstallRemedies,
	}
}
