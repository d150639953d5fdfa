package docs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/phrazzld/firmgen/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runCall struct {
	name string
	args []string
}

// fakeRunner records commands and answers them with RunFn.
type fakeRunner struct {
	mu        sync.Mutex
	calls     []runCall
	installed map[string]bool
	RunFn     func(name string, args []string) ([]byte, []byte, error)
}

func (f *fakeRunner) Run(ctx context.Context, logger *slog.Logger, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, runCall{name: name, args: args})
	f.mu.Unlock()
	if f.RunFn == nil {
		return nil, nil, nil
	}
	return f.RunFn(name, args)
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.installed[name] {
		return "/usr/bin/" + name, nil
	}
	return "", exec.ErrNotFound
}

func (f *fakeRunner) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		names = append(names, c.name)
	}
	return names
}

func testTools() config.ToolsConfig {
	return config.ToolsConfig{
		Magick:      "magick",
		Ghostscript: "gs",
		Pdftoppm:    "pdftoppm",
		Pdftotext:   "pdftotext",
		Tesseract:   "tesseract",
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// writeOutput emulates a converter by creating the file named in its arguments.
func writeOutput(name string, args []string) error {
	var out string
	switch name {
	case "magick":
		out = args[len(args)-1]
	case "gs":
		for _, a := range args {
			if strings.HasPrefix(a, "-sOutputFile=") {
				out = strings.TrimPrefix(a, "-sOutputFile=")
			}
		}
	case "pdftoppm":
		out = args[len(args)-1] + ".png"
	}
	return os.WriteFile(out, []byte("\x89PNG"), 0o600)
}

func TestDetectKind(t *testing.T) {
	t.Parallel()

	tests := map[string]Kind{
		"notes.txt":      KindText,
		"README.MD":      KindText,
		"sheet.PDF":      KindPDF,
		"board.png":      KindImage,
		"board.JPG":      KindImage,
		"board.jpeg":     KindImage,
		"scan.bmp":       KindImage,
		"design.docx":    KindUnknown,
		"no_extension":   KindUnknown,
		"archive.pdf.gz": KindUnknown,
	}
	for path, want := range tests {
		assert.Equal(t, want, DetectKind(path), path)
	}

	assert.Equal(t, "image/jpeg", ImageMIME("x.JPEG"))
	assert.Equal(t, "image/png", ImageMIME("x.pdf"))
}

func TestExtractText(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	t.Run("text file is read directly", func(t *testing.T) {
		runner := &fakeRunner{}
		path := writeFile(t, dir, "regs.md", "# GPIOA_MODER at 0x48000000")

		text, err := NewExtractor(testTools(), runner, testLogger()).ExtractText(context.Background(), path)

		require.NoError(t, err)
		assert.Equal(t, "# GPIOA_MODER at 0x48000000", text)
		assert.Empty(t, runner.commands())
	})

	t.Run("pdf goes through pdftotext", func(t *testing.T) {
		path := writeFile(t, dir, "sheet.pdf", "%PDF-1.4")
		runner := &fakeRunner{RunFn: func(name string, args []string) ([]byte, []byte, error) {
			return []byte("RCC_AHB1ENR"), nil, nil
		}}

		text, err := NewExtractor(testTools(), runner, testLogger()).ExtractText(context.Background(), path)

		require.NoError(t, err)
		assert.Equal(t, "RCC_AHB1ENR", text)
		require.Len(t, runner.calls, 1)
		assert.Equal(t, "pdftotext", runner.calls[0].name)
		assert.Equal(t, []string{"-layout", "-enc", "UTF-8", "-eol", "unix", path, "-"}, runner.calls[0].args)
	})

	t.Run("missing pdftotext is a tool error", func(t *testing.T) {
		path := writeFile(t, dir, "sheet2.pdf", "%PDF-1.4")
		runner := &fakeRunner{RunFn: func(name string, args []string) ([]byte, []byte, error) {
			return nil, nil, &exec.Error{Name: name, Err: exec.ErrNotFound}
		}}

		_, err := NewExtractor(testTools(), runner, testLogger()).ExtractText(context.Background(), path)

		assert.ErrorIs(t, err, ErrToolUnavailable)
	})

	t.Run("pdftotext failure", func(t *testing.T) {
		path := writeFile(t, dir, "broken.pdf", "garbage")
		runner := &fakeRunner{RunFn: func(name string, args []string) ([]byte, []byte, error) {
			return nil, []byte("Syntax Error: Couldn't find trailer dictionary"), errors.New("exit status 1")
		}}

		_, err := NewExtractor(testTools(), runner, testLogger()).ExtractText(context.Background(), path)

		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrToolUnavailable)
		assert.Contains(t, err.Error(), "trailer dictionary")
	})

	t.Run("image goes through tesseract", func(t *testing.T) {
		path := writeFile(t, dir, "board.png", "\x89PNG")
		runner := &fakeRunner{RunFn: func(name string, args []string) ([]byte, []byte, error) {
			return []byte("  PA5 -> LED1\n"), nil, nil
		}}

		text, err := NewExtractor(testTools(), runner, testLogger()).ExtractText(context.Background(), path)

		require.NoError(t, err)
		assert.Equal(t, "PA5 -> LED1", text)
		assert.Equal(t, []string{path, "stdout", "-l", "eng"}, runner.calls[0].args)
	})

	t.Run("ocr failure yields empty text", func(t *testing.T) {
		path := writeFile(t, dir, "blurry.jpg", "jpeg")
		runner := &fakeRunner{RunFn: func(name string, args []string) ([]byte, []byte, error) {
			return nil, nil, errors.New("exit status 1")
		}}

		text, err := NewExtractor(testTools(), runner, testLogger()).ExtractText(context.Background(), path)

		require.NoError(t, err)
		assert.Empty(t, text)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := NewExtractor(testTools(), &fakeRunner{}, testLogger()).
			ExtractText(context.Background(), filepath.Join(dir, "design.docx"))
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewExtractor(testTools(), &fakeRunner{}, testLogger()).
			ExtractText(context.Background(), filepath.Join(dir, "absent.txt"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestToImage(t *testing.T) {
	t.Parallel()

	t.Run("images pass through", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "board.png", "\x89PNG")
		runner := &fakeRunner{}

		out, err := NewConverter(testTools(), 300, dir, runner, testLogger()).ToImage(context.Background(), path)

		require.NoError(t, err)
		assert.Equal(t, path, out)
		assert.Empty(t, runner.commands())
	})

	t.Run("imagemagick first", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "schematic.pdf", "%PDF")
		runner := &fakeRunner{
			installed: map[string]bool{"magick": true, "gs": true},
			RunFn: func(name string, args []string) ([]byte, []byte, error) {
				return nil, nil, writeOutput(name, args)
			},
		}
		tempDir := filepath.Join(dir, "temp")

		out, err := NewConverter(testTools(), 300, tempDir, runner, testLogger()).ToImage(context.Background(), path)

		require.NoError(t, err)
		assert.Equal(t, tempDir, filepath.Dir(out))
		assert.True(t, strings.HasPrefix(filepath.Base(out), "schematic_"))
		assert.FileExists(t, out)
		assert.Equal(t, []string{"magick"}, runner.commands())
		assert.Equal(t, []string{"-density", "300", path + "[0]", out}, runner.calls[0].args)
	})

	t.Run("falls back through the chain", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "schematic.pdf", "%PDF")
		runner := &fakeRunner{
			installed: map[string]bool{"magick": true, "gs": true, "pdftoppm": true},
			RunFn: func(name string, args []string) ([]byte, []byte, error) {
				if name == "pdftoppm" {
					return nil, nil, writeOutput(name, args)
				}
				return nil, []byte("policy denies PDF"), errors.New("exit status 1")
			},
		}

		out, err := NewConverter(testTools(), 150, dir, runner, testLogger()).ToImage(context.Background(), path)

		require.NoError(t, err)
		assert.FileExists(t, out)
		assert.Equal(t, []string{"magick", "gs", "pdftoppm"}, runner.commands())
		assert.Contains(t, runner.calls[1].args, "-r150")
		assert.Contains(t, runner.calls[1].args, "-dFirstPage=1")
	})

	t.Run("no converter installed", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "schematic.pdf", "%PDF")
		runner := &fakeRunner{}

		_, err := NewConverter(testTools(), 300, dir, runner, testLogger()).ToImage(context.Background(), path)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrToolUnavailable)

		var toolErr *ToolUnavailableError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, "convert PDF to image", toolErr.Operation)
		require.Len(t, toolErr.Tried, 3)
		assert.Equal(t, "not installed", toolErr.Tried[0].Reason)
		assert.Contains(t, err.Error(), "https://imagemagick.org/script/download.php")
		assert.Contains(t, err.Error(), "https://www.ghostscript.com/download/gsdnld.html")
		assert.Empty(t, runner.commands())
	})

	t.Run("tool that writes nothing", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "schematic.pdf", "%PDF")
		runner := &fakeRunner{installed: map[string]bool{"gs": true}}

		_, err := NewConverter(testTools(), 300, dir, runner, testLogger()).ToImage(context.Background(), path)

		var toolErr *ToolUnavailableError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, ToolAttempt{Tool: "Ghostscript", Reason: "produced no output"}, toolErr.Tried[1])
	})

	t.Run("unsupported document", func(t *testing.T) {
		_, err := NewConverter(testTools(), 300, t.TempDir(), &fakeRunner{}, testLogger()).
			ToImage(context.Background(), "notes.txt")
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})
}

func TestChecker(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{installed: map[string]bool{"gs": true, "tesseract": true}}
	st := NewChecker(testTools(), runner).Available()

	assert.Equal(t, ToolStatus{Ghostscript: true, Tesseract: true, CanConvert: true}, st)

	none := NewChecker(testTools(), &fakeRunner{}).Available()
	assert.False(t, none.CanConvert)
}
