package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// ParseLevel maps a configured level name to a slog level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// New creates a logger writing to w. The "json" format emits one JSON object
// per line; "text" is meant for a terminal.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
	case "text", "":
		handler := log.NewWithOptions(w, log.Options{
			Level:           log.Level(lvl),
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
		})
		return slog.New(handler), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
