// Package logger builds the slog loggers used across presence. Commands log
// human readable lines to stderr and, for scheduled passes, JSON lines to a
// pass log file. Components tag their records with a component attribute.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// ComponentKey is the attribute naming the pipeline stage that logged.
const ComponentKey = "component"

type config struct {
	level   slog.Level
	pretty  bool
	json    bool
	source  bool
	prefix  string
	writers []io.Writer
}

// New builds a *slog.Logger writing to stderr at Info level with slog's text
// handler. WithPretty switches to charmbracelet/log, WithJSON to slog's JSON
// handler.
func New(opts ...Option) *slog.Logger {
	c := &config{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(c)
	}

	var w io.Writer
	switch len(c.writers) {
	case 0:
		w = os.Stderr
	case 1:
		w = c.writers[0]
	default:
		w = io.MultiWriter(c.writers...)
	}

	if c.json {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.level, AddSource: c.source}))
	}
	if !c.pretty {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.level, AddSource: c.source}))
	}

	h := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmlog.Level(c.level),
		Prefix:          c.prefix,
		ReportTimestamp: true,
		ReportCaller:    c.source,
	})
	return slog.New(h)
}

// OpenFile opens path for appending and returns a JSON logger over it. The
// caller closes the returned file when the pass is done.
func OpenFile(path string, opts ...Option) (*slog.Logger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	opts = append(opts, WithJSON(true), WithWriter(f))
	return New(opts...), f, nil
}

// Component returns log tagged with the component name.
func Component(log *slog.Logger, name string) *slog.Logger {
	if log == nil {
		log = Nop()
	}
	return log.With(ComponentKey, name)
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
