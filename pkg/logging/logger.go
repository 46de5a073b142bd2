// Package logging configures the zerolog logger shared by the fetch pipeline.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Format selects the encoder used for log output.
type Format string

const (
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"

	// FormatConsole writes colored, human-readable lines.
	FormatConsole Format = "console"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Format is json (default) or console.
	Format Format

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if Format(strings.ToLower(string(cfg.Format))) == FormatConsole {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level, defaulting to info.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a child of the global logger tagged with a component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-identifier detail
//   - Individual fetch attempts and their status
//   - Backoff waits between attempts
//   - Worker start/stop
//
// Info: run and batch lifecycle
//   - Run start, resume point, final summary
//   - Batch start and batch commit (success/failed counts, progress)
//   - Checkpoint loaded / marked completed
//
// Warn: degraded but continuing
//   - Identifier exhausted its retries
//   - Unreadable checkpoint (fresh start)
//   - Batch interrupted by cancellation
//
// Error: batch-level failures
//   - Batch result or checkpoint write failed (batch left uncommitted)
//   - Failed-id export could not be written
//
// Context Fields:
//   - id: identifier being fetched
//   - attempt: attempt number (1-based)
//   - batch: zero-based batch index
//   - status: HTTP status code
//   - error_class: network, timeout, server, client, rate_limit, decode
//   - success / failed: counters for a batch or run
//   - progress_pct: processed identifiers over total identifiers
