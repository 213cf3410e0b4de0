package core

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger provides debug logging for the SeaTable SDK.
type Logger struct {
	enabled bool
	zl      zerolog.Logger
}

// NewLogger creates a new logger writing to stderr.
func NewLogger(enabled bool) *Logger {
	return NewLoggerWithWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, enabled)
}

// NewLoggerWithWriter creates a logger writing to w.
func NewLoggerWithWriter(w io.Writer, enabled bool) *Logger {
	level := zerolog.WarnLevel
	if enabled {
		level = zerolog.DebugLevel
	}
	return &Logger{
		enabled: enabled,
		zl: zerolog.New(w).Level(level).With().
			Timestamp().
			Str("component", "seatable-go").
			Logger(),
	}
}

// NopLogger returns a logger that discards everything.
func NopLogger() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func formatMessage(message string, args []any) string {
	if len(args) > 0 {
		return fmt.Sprintf(message, args...)
	}
	return message
}

// Debug logs a debug message (only if debug is enabled).
func (l *Logger) Debug(message string, args ...any) {
	l.zl.Debug().Msg(formatMessage(message, args))
}

// Info logs an info message (only if debug is enabled).
func (l *Logger) Info(message string, args ...any) {
	l.zl.Info().Msg(formatMessage(message, args))
}

// Warn logs a warning message (always logged).
func (l *Logger) Warn(message string, args ...any) {
	l.zl.Warn().Msg(formatMessage(message, args))
}

// Error logs an error message (always logged).
func (l *Logger) Error(message string, args ...any) {
	l.zl.Error().Msg(formatMessage(message, args))
}

// RateLimit logs rate limit information.
func (l *Logger) RateLimit(info RateLimitInfo) {
	l.zl.Debug().
		Int("attempt", info.Attempt).
		Str("url", info.RequestURL).
		Int("status", info.HTTPStatus).
		Int("retry_after", info.RetryAfter).
		Int("remaining", info.Remaining).
		Msg("rate limited")
}

// Timing logs request timing information.
func (l *Logger) Timing(method, url string, duration time.Duration) {
	l.zl.Debug().
		Str("method", method).
		Str("url", url).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("request completed")
}

// Retry logs retry attempt information.
func (l *Logger) Retry(attempt, maxAttempts int, delay time.Duration, reason string) {
	l.zl.Debug().
		Int("attempt", attempt).
		Int("max_attempts", maxAttempts).
		Int64("delay_ms", delay.Milliseconds()).
		Msg("retrying: " + reason)
}

// Token logs token operations (without exposing the actual token).
func (l *Logger) Token(operation string, dtableUUID string) {
	event := l.zl.Debug()
	if dtableUUID != "" {
		event = event.Str("dtable_uuid", dtableUUID)
	}
	event.Msg("token " + operation)
}

// Enabled returns whether debug logging is enabled.
func (l *Logger) Enabled() bool {
	return l.enabled
}
