// Package logging configures structured zerolog output for the offline layer.
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
	// LevelDebug logs cache hits/misses and routing decisions.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs lifecycle transitions and sync dispatches.
	LevelInfo LogLevel = "info"

	// LevelWarn logs swallowed storage faults and failed purges.
	LevelWarn LogLevel = "warn"

	// LevelError logs failed installs and delivery failures only.
	LevelError LogLevel = "error"

	// LevelDisabled silences all output.
	LevelDisabled LogLevel = "disabled"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Service is added to every entry when set.
	Service string

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Pretty:  false,
		Service: "paradigm-offline",
		Output:  os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

// ParseLevel converts a LogLevel to a zerolog.Level. Unknown levels map to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a logger for a component from the global logger.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-request detail
//   - Routing decision and cache hit/miss per partition
//   - Detached store completion
//   - Lifecycle state transitions
//
// Info: normal operation events
//   - Install/activate start and finish, purged partitions
//   - Sync dispatch and completion
//   - Connectivity restored
//   - Server startup/shutdown
//
// Warn: faults the offline layer absorbs
//   - Partition get/put failures (treated as miss / not stored)
//   - Failed stale partition deletes
//   - Install retries, failed sync routines (tag stays pending)
//   - Connectivity lost
//
// Error: conditions requiring attention
//   - Failed installs (previous version keeps serving)
//   - Push delivery failures
//   - Configuration errors
//
// Context Fields:
//   - component: interceptor, lifecycle, sync-queue, notify, worker, ...
//   - version: deployed version tag
//   - partition: partition name
//   - key / url: request identity
//   - route: network-first, cache-first, passthrough
//   - error_class: client, server, network
//   - tag: sync tag
