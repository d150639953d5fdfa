// Package repair recovers JSON objects from free-form model output.
//
// Model answers often wrap the payload in prose or code fences, get cut off
// mid-string, or carry trailing commas. Repairer applies a fixed sequence of
// textual fixups and falls back to a caller-supplied default, so a bad answer
// lowers data quality without aborting the pipeline.
package repair

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Outcome describes how a value was obtained.
type Outcome string

const (
	// OutcomeParsed means the extracted span was valid JSON as-is.
	OutcomeParsed Outcome = "parsed"

	// OutcomeFixed means the span parsed after fixups.
	OutcomeFixed Outcome = "fixed"

	// OutcomeNoJSON means no object span was found and the default was used.
	OutcomeNoJSON Outcome = "no_json"

	// OutcomeDefaulted means recovery was exhausted and the default was used.
	OutcomeDefaulted Outcome = "defaulted"
)

// Default builds a fresh default value for one expected shape.
type Default func() map[string]any

var (
	newlineInString = regexp.MustCompile(`"[^"]*(?:\r\n|\n|\r)[^"]*"`)
	lineBreak       = regexp.MustCompile(`\r\n|\n|\r`)
	trailingComma   = regexp.MustCompile(`,(\s*[}\]])`)
)

// Repairer recovers JSON objects and records unrecoverable answers for inspection.
type Repairer struct {
	debugDir string
	logger   *slog.Logger
}

// New creates a Repairer. When debugDir is empty no diagnostic files are written.
func New(debugDir string, logger *slog.Logger) *Repairer {
	return &Repairer{debugDir: debugDir, logger: logger}
}

// Repair returns the JSON object embedded in raw, or def() when it cannot be recovered.
// It never fails. The stage name labels log lines and diagnostic file names.
func (r *Repairer) Repair(stage, raw string, def Default) (map[string]any, Outcome) {
	log := r.logger.With("stage", stage, "response_length", len(raw))

	span, ok := objectSpan(raw)
	if !ok {
		log.Warn("no JSON object found in model response", "preview", preview(raw, 200))
		return def(), OutcomeNoJSON
	}

	v, err := parseObject(span)
	if err == nil {
		return v, OutcomeParsed
	}
	log.Warn("model response is not valid JSON, attempting fixups", "error", err)

	fixed := Fix(span)
	v, err = parseObject(fixed)
	if err == nil {
		log.Info("recovered JSON after fixups")
		return v, OutcomeFixed
	}

	log.Error("unable to recover JSON after fixups", "error", err)
	r.writeDebug(log, stage, raw, fixed)
	return def(), OutcomeDefaulted
}

// Fix applies the textual fixups in order: newlines inside strings become spaces,
// trailing commas are dropped, a trailing unterminated string is cut back together
// with its dangling key, colon or comma, and missing ']' then '}' are appended.
//
// Brackets are counted over the whole text, including any inside string literals.
func Fix(span string) string {
	s := newlineInString.ReplaceAllStringFunc(span, func(m string) string {
		return lineBreak.ReplaceAllString(m, " ")
	})
	s = trailingComma.ReplaceAllString(s, "$1")
	s = strings.TrimSpace(s)
	s = dropUnterminatedString(s)

	if n := strings.Count(s, "[") - strings.Count(s, "]"); n > 0 {
		s += strings.Repeat("]", n)
	}
	if n := strings.Count(s, "{") - strings.Count(s, "}"); n > 0 {
		s += strings.Repeat("}", n)
	}
	return s
}

// objectSpan returns the text from the first '{' to the last '}'.
func objectSpan(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

func parseObject(s string) (map[string]any, error) {
	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	if v == nil {
		v = map[string]any{}
	}
	return v, nil
}

// dropUnterminatedString removes an open string at the end of s, then any
// dangling key, colon or comma left in front of it.
func dropUnterminatedString(s string) string {
	open := unterminatedStringStart(s)
	if open < 0 {
		return s
	}
	s = strings.TrimRightFunc(s[:open], isSpace)

	if strings.HasSuffix(s, ":") {
		s = strings.TrimRightFunc(s[:len(s)-1], isSpace)
		// the key that went with the colon
		if strings.HasSuffix(s, `"`) {
			if keyStart := strings.LastIndexByte(s[:len(s)-1], '"'); keyStart >= 0 {
				s = strings.TrimRightFunc(s[:keyStart], isSpace)
			}
		}
	}
	return strings.TrimSuffix(s, ",")
}

// unterminatedStringStart returns the index of the quote opening a string that
// runs to the end of s, or -1 when every string is closed.
func unterminatedStringStart(s string) int {
	inString := false
	escaped := false
	start := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
			if inString {
				start = i
			}
		}
	}
	if inString {
		return start
	}
	return -1
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func (r *Repairer) writeDebug(log *slog.Logger, stage, raw, fixed string) {
	if r.debugDir == "" {
		return
	}
	if err := os.MkdirAll(r.debugDir, 0o755); err != nil {
		log.Warn("failed to create debug directory", "dir", r.debugDir, "error", err)
		return
	}

	files := map[string]string{
		"debug_" + stage + "_response.txt": raw,
		"debug_" + stage + "_fixed.txt":    fixed,
	}
	for name, body := range files {
		path := filepath.Join(r.debugDir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			log.Warn("failed to write debug file", "path", path, "error", err)
		}
	}
	log.Info("saved debug files", "dir", r.debugDir)
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
