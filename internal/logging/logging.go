// Package logging configures the structured zerolog logger shared by the
// gallery daemon and CLI.
//
// Components take a *zerolog.Logger and derive a sub-logger with
// Component, so every line carries a "component" field:
//
//	log := logging.Component(base, "discovery")
//	log.Warn().Int("status", 429).Msg("rate limited, retrying")
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration options
type Config struct {
	// Level is the minimum level to output (trace, debug, info, warn, error, off)
	Level string `yaml:"level"`

	// Format is console, json, or auto (console when writing to a terminal)
	Format string `yaml:"format"`

	// Output is stderr, stdout, discard, or a file path
	Output string `yaml:"output"`

	// NoColor disables colors in console mode
	NoColor bool `yaml:"no_color"`
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Format:  "auto",
		Output:  "stderr",
		NoColor: os.Getenv("NO_COLOR") != "",
	}
}

// New builds a logger from configuration
func New(cfg Config) zerolog.Logger {
	level := ParseLevel(cfg.Level)

	logger := zerolog.New(writer(cfg)).
		Level(level).
		With().
		Timestamp().
		Logger()

	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

// Component returns a sub-logger tagged with the component name
func Component(base *zerolog.Logger, name string) *zerolog.Logger {
	if base == nil {
		nop := zerolog.Nop()
		return &nop
	}
	l := base.With().Str("component", name).Logger()
	return &l
}

// Nop returns a logger that discards everything; used by tests and optional wiring
func Nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func writer(cfg Config) io.Writer {
	var out io.Writer
	var file *os.File
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		file = os.Stderr
		out = file
	case "stdout":
		file = os.Stdout
		out = file
	case "discard", "none":
		return io.Discard
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			file = os.Stderr
		} else {
			file = f
		}
		out = file
	}

	format := strings.ToLower(cfg.Format)
	if format == "" || format == "auto" {
		format = "json"
		if file != nil && isTerminal(file) {
			format = "console"
		}
	}

	if format == "console" || format == "pretty" {
		return zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
			NoColor:    cfg.NoColor,
		}
	}
	return out
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "", "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "none", "off":
		return zerolog.Disabled
	}
	if l, err := zerolog.ParseLevel(level); err == nil {
		return l
	}
	return zerolog.InfoLevel
}
