package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/phrazzld/firmgen/internal/config"
)

// ParseLevel converts a configured level name (case-insensitive) to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// Setup initializes the application's logging system from the server
// configuration. It builds a JSON handler on stdout (a text handler when
// log_format is "text"), sets it as the slog default and returns it together
// with the LevelVar that controls it, so the level can change at runtime.
//
// An unknown level falls back to info with a warning on stderr.
func Setup(cfg config.ServerConfig) (*slog.Logger, *slog.LevelVar, error) {
	logger, level, err := New(os.Stdout, cfg)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return logger, level, nil
}

// New builds a logger writing to w without touching the slog default.
func New(w io.Writer, cfg config.ServerConfig) (*slog.Logger, *slog.LevelVar, error) {
	level := new(slog.LevelVar)
	parsed, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		// Create a temporary logger to output the warning
		tmpLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmpLogger.Warn("invalid log level configured, using default level",
			"configured_level", cfg.LogLevel,
			"default_level", "info")
	}
	level.Set(parsed)

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.LogFormat) {
	case "", "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}

	return slog.New(handler), level, nil
}

// ApplyLevel updates level from a configured name, leaving it unchanged when the
// name is not a known level.
func ApplyLevel(level *slog.LevelVar, name string) error {
	parsed, err := ParseLevel(name)
	if err != nil {
		return err
	}
	level.Set(parsed)
	return nil
}
