// Package logging builds the process-wide zerolog logger with the defaults
// the rest of the service expects.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the root logger
type Options struct {
	// Debug lowers the level from info to debug
	Debug bool
	// Console switches from JSON lines to human-readable output
	Console bool
	// Writer defaults to stdout
	Writer io.Writer
}

// New builds the root logger. Component loggers hang off it via
// log.With().Str("component", ...).
func New(opt Options) zerolog.Logger {
	var w io.Writer = os.Stdout
	if opt.Writer != nil {
		w = opt.Writer
	}
	if opt.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level := zerolog.InfoLevel
	if opt.Debug {
		level = zerolog.DebugLevel
	}

	return zerolog.New(w).Level(level).With().
		Timestamp().
		Str("service", "votegate").
		Logger()
}
