package pipeline

import (
	"regexp"
	"strings"
)

// TruncationMarker separates the retained head and tail of capped text.
const TruncationMarker = "\n\n[... truncated ...]\n\n"

// codeFence matches a fenced block with an optional language tag such as c, cpp or c++.
var codeFence = regexp.MustCompile("```(?:[A-Za-z0-9_+#-]*\\n)?([\\s\\S]*?)\\n?```")

// Truncate caps text at limit characters. Longer text keeps its first 70% and
// last 30% of the budget with TruncationMarker between them. A limit <= 0
// disables the cap.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	head := limit * 7 / 10
	tail := limit * 3 / 10
	return string(runes[:head]) + TruncationMarker + string(runes[len(runes)-tail:])
}

// StripCodeFence returns the body of the first fenced block in text, or text
// unchanged when there is none.
func StripCodeFence(text string) string {
	m := codeFence.FindStringSubmatch(text)
	if m == nil {
		return text
	}
	return m[1]
}

// countLines counts lines the way an editor does: a trailing newline does not
// start a new line.
func countLines(code string) int {
	if code == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(code, "\n"), "\n") + 1
}
