package logger

import (
	"context"
	"errors"
	"log/slog"
)

// fanout sends each record to every handler that accepts its level. A
// failing handler does not stop the others; their errors are joined.
type fanout []slog.Handler

// Multi returns a logger writing every record to each of loggers. Nil
// loggers are skipped and nested Multi loggers are flattened.
func Multi(loggers ...*slog.Logger) *slog.Logger {
	var f fanout
	for _, l := range loggers {
		if l == nil {
			continue
		}
		if inner, ok := l.Handler().(fanout); ok {
			f = append(f, inner...)
			continue
		}
		f = append(f, l.Handler())
	}
	return slog.New(f)
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
