package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig selects the logger's level, encoding and destination.
type LoggingConfig struct {
	// Level is a zerolog level name; "warning" is accepted for warn.
	Level string
	// Format is json, or console/pretty for human-readable lines.
	Format string
	// Output is stdout or stderr.
	Output string
	// AddSource annotates each entry with the calling file and line.
	AddSource bool
	// TimeFormat overrides the timestamp layout, RFC 3339 when empty.
	TimeFormat string
}

// DefaultLoggingConfig is JSON at info level on stdout.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}
}

// NewLogger builds the process logger and sets the global zerolog level to match.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = cfg.TimeFormat
	if zerolog.TimeFieldFormat == "" {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	switch strings.ToLower(cfg.Format) {
	case "console", "pretty":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: zerolog.TimeFieldFormat}
	}

	lc := zerolog.New(w).With().Timestamp()
	if cfg.AddSource {
		lc = lc.Caller()
	}

	level := levelFromString(cfg.Level)
	zerolog.SetGlobalLevel(level)
	return lc.Logger().Level(level)
}

// levelFromString falls back to info for empty or unknown names.
func levelFromString(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		return zerolog.WarnLevel
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// WithPaperContext tags logger with the record a message is about.
func WithPaperContext(logger zerolog.Logger, source, externalID string) zerolog.Logger {
	return logger.With().
		Str("source", source).
		Str("external_id", externalID).
		Logger()
}

// FromContext returns logger with request_id and correlation_id taken from
// ctx. Missing values are left out rather than logged empty.
func FromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	lc := logger.With()
	if id := RequestIDFromContext(ctx); id != "" {
		lc = lc.Str("request_id", id)
	}
	if id := CorrelationIDFromContext(ctx); id != "" {
		lc = lc.Str("correlation_id", id)
	}
	return lc.Logger()
}
