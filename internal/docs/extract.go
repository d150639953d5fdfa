package docs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/phrazzld/firmgen/internal/config"
)

// Extractor pulls plain text out of text files, PDFs and images.
type Extractor struct {
	tools  config.ToolsConfig
	runner Runner
	logger *slog.Logger
}

// NewExtractor creates an Extractor. A nil runner uses ExecRunner.
func NewExtractor(tools config.ToolsConfig, runner Runner, logger *slog.Logger) *Extractor {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Extractor{tools: tools, runner: runner, logger: logger}
}

// ExtractText returns the text content of path, picking the method from its extension.
//
// Text and Markdown files are read directly, PDFs go through pdftotext and images
// through tesseract OCR. OCR failure is not an error: it yields empty text. Other
// extensions fail with ErrUnsupportedType.
func (e *Extractor) ExtractText(ctx context.Context, path string) (string, error) {
	log := e.logger.With("path", path)

	kind := DetectKind(path)
	if kind == KindUnknown {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, path)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("document not readable: %w", err)
	}

	log.Debug("extracting text", "kind", kind)

	switch kind {
	case KindText:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read text document: %w", err)
		}
		return string(data), nil
	case KindPDF:
		return e.pdfToText(ctx, log, path)
	default:
		return e.imageOCR(ctx, log, path), nil
	}
}

func (e *Extractor) pdfToText(ctx context.Context, log *slog.Logger, path string) (string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, log, e.tools.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", &ToolUnavailableError{
				Operation: "extract text from PDF",
				Tried:     []ToolAttempt{{Tool: e.tools.Pdftotext, Reason: "not installed"}},
				Remedies: []string{
					"Debian/Ubuntu: sudo apt-get install poppler-utils",
					"macOS: brew install poppler",
				},
			}
		}
		return "", fmt.Errorf("pdftotext failed: %w: %s", err, strings.TrimSpace(truncate(string(errb), 512)))
	}

	text := string(out)
	log.Info("extracted text from PDF", "chars", len(text))
	return text, nil
}

func (e *Extractor) imageOCR(ctx context.Context, log *slog.Logger, path string) string {
	// tesseract <path> stdout -l eng
	out, _, err := e.runner.Run(ctx, log, e.tools.Tesseract, path, "stdout", "-l", "eng")
	if err != nil {
		log.Warn("OCR failed, continuing with empty text", "error", err)
		return ""
	}
	text := strings.TrimSpace(string(out))
	log.Info("extracted text from image", "chars", len(text))
	return text
}
