package docs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrToolUnavailable is returned when no installed tool could perform an operation
	ErrToolUnavailable = errors.New("required external tool unavailable")

	// ErrUnsupportedType is returned for documents whose extension is not recognized
	ErrUnsupportedType = errors.New("unsupported document type")
)

// InstallRemedies lists ways to get a working PDF converter.
var InstallRemedies = []string{
	"ImageMagick: https://imagemagick.org/script/download.php",
	"Ghostscript: https://www.ghostscript.com/download/gsdnld.html",
	"Debian/Ubuntu: sudo apt-get install imagemagick ghostscript poppler-utils",
	"macOS: brew install imagemagick ghostscript poppler",
}

// ToolAttempt records why one tool could not be used.
type ToolAttempt struct {
	Tool   string
	Reason string
}

// ToolUnavailableError reports an operation no installed tool could perform.
type ToolUnavailableError struct {
	// Operation names what was being attempted, e.g. "convert PDF to image"
	Operation string

	// Tried lists each tool in the order it was attempted
	Tried []ToolAttempt

	// Remedies are installation hints for the user
	Remedies []string
}

// Error implements the error interface.
func (e *ToolUnavailableError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cannot %s", e.Operation)
	if len(e.Tried) > 0 {
		parts := make([]string, 0, len(e.Tried))
		for _, t := range e.Tried {
			parts = append(parts, t.Tool+": "+t.Reason)
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, "; "))
	}
	if len(e.Remedies) > 0 {
		b.WriteString(". Install one of the following tools:")
		for i, r := range e.Remedies {
			fmt.Fprintf(&b, "\n%d. %s", i+1, r)
		}
	}
	return b.String()
}

// Unwrap lets errors.Is match ErrToolUnavailable.
func (e *ToolUnavailableError) Unwrap() error {
	return ErrToolUnavailable
}
