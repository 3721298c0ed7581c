// Package logging provides structured logging configuration using zerolog.
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
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()

	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
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

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Rate limit waits (duration, window occupancy)
//   - Per-token index resolution (token, id, memo hit)
//   - Cache file writes (path)
//
// Info: Normal operation events
//   - Run start/finish (mode, result)
//   - Resume position (last_id / last_token, processed count)
//   - Batch progress (processed, rate, ETA)
//
// Warn: Warning conditions that don't prevent operation
//   - 429 responses and backoff retries
//   - Skipped movies (not found, retry exhausted, transport error)
//   - Corrupt checkpoint (restarting from the beginning)
//   - Redis memo unavailable (falling back to direct fetch)
//
// Error: Error conditions requiring attention
//   - Index listing failures (run terminates)
//   - Cache write failures (run terminates)
//   - Checkpoint save failures
//
// Context Fields:
//   - movie_id: TMDB numeric id
//   - token: index token (repository path)
//   - last_id / last_token: checkpoint cursor
//   - processed: absolute processed count
//   - attempt: retry attempt number
//   - wait: rate limit or backoff wait duration
