// ABOUTME: Structured logger construction on zerolog
// ABOUTME: Maps the logging config section onto level, output format and service tags

package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexdesk/chat-gateway/internal/config"
)

// Setup builds the process logger from cfg, writing to stderr.
func Setup(cfg config.LoggingConfig) zerolog.Logger {
	return New(cfg, os.Stderr)
}

// New builds a logger writing to out. Format "json" emits one JSON object per
// line; anything else uses the human-readable console writer.
func New(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if !strings.EqualFold(cfg.Format, "json") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "chat-gateway").
		Logger()
}

// ParseLevel converts a config level name, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with the component name.
// A nil parent yields a disabled logger.
func Component(parent *zerolog.Logger, name string) zerolog.Logger {
	if parent == nil {
		return zerolog.Nop()
	}
	return parent.With().Str("component", name).Logger()
}
