package docs

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner runs external commands. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, logger *slog.Logger, name string, args ...string) (stdout, stderr []byte, err error)
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args and returns its captured output.
func (ExecRunner) Run(ctx context.Context, logger *slog.Logger, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	logger.Debug("running command", "cmd_line", strings.Join(append([]string{name}, args...), " "))

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		logger.Warn("command failed",
			"cmd", name,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10))
	} else {
		logger.Debug("command ok",
			"cmd", name,
			"duration_ms", elapsed.Milliseconds(),
			"stdout_bytes", out.Len(),
			"stderr_bytes", errb.Len())
	}

	return out.Bytes(), errb.Bytes(), err
}

// LookPath reports where name is installed.
func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
