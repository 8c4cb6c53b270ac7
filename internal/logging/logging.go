// Package logging configures the process-wide structured logger: slog with
// a JSON handler writing to a file under the tool home, optionally teeing
// to stderr for foreground runs.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/codeintel/codeintel/internal/config"
)

// Config selects level and destinations.
type Config struct {
	// Level is debug, info, warn, or error.
	Level string

	// FilePath overrides the default log file. Empty uses DefaultLogPath.
	FilePath string

	// WriteToStderr tees log lines to stderr as well.
	WriteToStderr bool
}

// DefaultConfig logs at info to the default file only.
func DefaultConfig() Config {
	return Config{Level: "info"}
}

// DefaultLogDir is the tool home's logs directory.
func DefaultLogDir() string {
	return config.LogsDir()
}

// DefaultLogPath is where the CLI and daemon log by default.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "codeintel.log")
}

// Setup opens the log destination and returns the configured logger plus a
// cleanup function closing the file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	path := cfg.FilePath
	if path == "" {
		path = DefaultLogPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	var w io.Writer = file
	if cfg.WriteToStderr {
		w = io.MultiWriter(file, os.Stderr)
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}))
	cleanup := func() { _ = file.Close() }
	return logger, cleanup, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
