package logging

import (
	"context"
	"errors"
	"log/slog"
	"slices"
)

// ContextProvider returns attributes stamped onto every record, such as the
// current simulation tick.
type ContextProvider func(ctx context.Context) []slog.Attr

// WithContext wraps next so every record carries the provider's attributes.
// A nil provider returns next unchanged.
func WithContext(next slog.Handler, provider ContextProvider) slog.Handler {
	if provider == nil {
		return next
	}
	return &stamped{next: next, provider: provider}
}

type stamped struct {
	next     slog.Handler
	provider ContextProvider
}

func (h *stamped) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *stamped) Handle(ctx context.Context, r slog.Record) error {
	if attrs := h.provider(ctx); len(attrs) > 0 {
		r.AddAttrs(attrs...)
	}
	return h.next.Handle(ctx, r)
}

func (h *stamped) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &stamped{next: h.next.WithAttrs(attrs), provider: h.provider}
}

func (h *stamped) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &stamped{next: h.next.WithGroup(name), provider: h.provider}
}

// Fanout sends each record to every handler that accepts its level. Nil
// handlers are dropped and a lone handler is returned as is.
func Fanout(handlers ...slog.Handler) slog.Handler {
	var f fanout
	for _, h := range handlers {
		if h != nil {
			f = append(f, h)
		}
	}
	if len(f) == 1 {
		return f[0]
	}
	return f
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	return slices.ContainsFunc(f, func(h slog.Handler) bool {
		return h.Enabled(ctx, level)
	})
}

// Handle keeps going past a failing handler and returns the errors joined.
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(fn func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}
