// File: internal/monitoring/logger.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Structured logger construction.

package monitoring

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggerConfig selects level ("debug", "info", "warn", "error") and format
// ("json" or "pretty").
type LoggerConfig struct {
	Level  string
	Format string
	Output io.Writer // defaults to os.Stdout
}

// NewLogger builds a zerolog logger with timestamp and service fields.
//
// Example:
//
//	logger := monitoring.NewLogger(monitoring.LoggerConfig{Level: "info", Format: "json"})
//	logger.Info().Str("addr", ":9000").Msg("server started")
func NewLogger(cfg LoggerConfig) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(cfg.Format, "pretty") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "hioload-reactor").
		Logger()
}
