// Package log configures the process-wide zerolog logger.
//
// Core components never reach for this package directly: they accept a
// zerolog.Logger option and default to a no-op logger. Commands configure the
// base logger once and hand component loggers down.
package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Canonical field names.
const (
	FieldComponent   = "component"
	FieldSessionID   = "session_id"
	FieldTick        = "tick"
	FieldCommandType = "command_type"
	FieldRole        = "role"
	FieldStableID    = "stable_id"
	FieldPhase       = "phase"
)

// Config captures options for configuring the base logger.
type Config struct {
	Level   string    // optional level ("debug", "info", ...)
	Output  io.Writer // defaults to os.Stderr
	Service string    // attached to every entry
	// Console switches to human-readable output.
	Console bool
}

var (
	mu   sync.RWMutex
	base = zerolog.Nop()
)

// Configure replaces the base logger.
func Configure(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level))); err == nil {
			level = parsed
		}
	}
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}
	if cfg.Console {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.Kitchen, NoColor: true}
	}
	service := strings.TrimSpace(cfg.Service)
	if service == "" {
		service = "roundtable"
	}

	logger := zerolog.New(writer).Level(level).With().
		Timestamp().
		Str("service", service).
		Logger()

	mu.Lock()
	base = logger
	mu.Unlock()
	return logger
}

// Base returns the configured base logger. It is a no-op logger until
// Configure is called.
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent returns a child of the base logger annotated with component.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str(FieldComponent, component).Logger()
}

// Nop returns a disabled logger.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
