// Package logging routes slog through charmbracelet/log.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// NewLogger returns a charmbracelet logger writing to w at level.
func NewLogger(w io.Writer, level string) (*charmlog.Logger, error) {
	lvl := charmlog.InfoLevel
	if strings.TrimSpace(level) != "" {
		parsed, err := charmlog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}
	return charmlog.NewWithOptions(w, charmlog.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          "aaflow",
	}), nil
}

// Setup sends the default slog logger to the file at path. The terminal UI
// owns stdout, so logs never go there. The returned closer closes the file.
func Setup(path, level string) (io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger, err := NewLogger(f, level)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	charmlog.SetDefault(logger)
	slog.SetDefault(slog.New(logger))
	return f, nil
}
