package app

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the application logger: JSON in production-style
// deployments, text otherwise, filtered to the configured level.
func NewLogger(cfg *Config) *slog.Logger {
	return newLoggerTo(os.Stdout, cfg)
}

func newLoggerTo(w io.Writer, cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: logLevel(cfg)}
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// logLevel maps the LOG_LEVEL setting onto a slog level; unknown values
// fall back to info rather than failing startup.
func logLevel(cfg *Config) slog.Level {
	if cfg == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
