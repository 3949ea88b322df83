// Package logger builds the slog loggers used by the CLI and the web server.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level   slog.Level
	format  string
	writers []io.Writer
}

// Option configures a logger created with New.
type Option func(*config)

// WithLevel parses a level name (debug, info, warn, error). Unknown names keep info.
func WithLevel(name string) Option {
	return func(c *config) {
		c.level = ParseLevel(name)
	}
}

// WithDebug forces the debug level when true.
func WithDebug(debug bool) Option {
	return func(c *config) {
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithFormat selects text, json or pretty (charmbracelet/log) output.
func WithFormat(format string) Option {
	return func(c *config) {
		c.format = strings.ToLower(format)
	}
}

// WithWriter overrides the output writer. Defaults to os.Stderr.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		c.writers = []io.Writer{w}
	}
}

// New creates a logger from options.
func New(opts ...Option) *slog.Logger {
	c := &config{level: slog.LevelInfo, format: "text"}
	for _, opt := range opts {
		opt(c)
	}

	var w io.Writer = os.Stderr
	if len(c.writers) == 1 {
		w = c.writers[0]
	} else if len(c.writers) > 1 {
		w = io.MultiWriter(c.writers...)
	}

	switch c.format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.level}))
	case "pretty":
		handler := charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			Level:           charmlog.Level(c.level),
		})
		return slog.New(handler)
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.level}))
	}
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
