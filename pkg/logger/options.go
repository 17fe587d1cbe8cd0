package logger

import (
	"io"
	"log/slog"
)

// Option configures a logger built by New.
type Option func(*config)

// WithDebug lowers the level to Debug when debug is set.
func WithDebug(debug bool) Option {
	return func(c *config) {
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithLevel sets the minimum level.
func WithLevel(level slog.Level) Option {
	return func(c *config) { c.level = level }
}

// WithPretty selects the charmbracelet/log handler for terminal output.
func WithPretty(pretty bool) Option {
	return func(c *config) { c.pretty = pretty }
}

// WithJSON selects slog's JSON handler. It wins over WithPretty.
func WithJSON(json bool) Option {
	return func(c *config) { c.json = json }
}

// WithWriter adds an output. Repeated options write to every output.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.writers = append(c.writers, w)
		}
	}
}

// WithPrefix sets the prefix printed before each pretty line.
func WithPrefix(prefix string) Option {
	return func(c *config) { c.prefix = prefix }
}

// WithSource includes the caller's file and line.
func WithSource(source bool) Option {
	return func(c *config) { c.source = source }
}
