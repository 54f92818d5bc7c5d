package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns the attributes to stamp on a record at handle
// time. The recorder uses it to ride the session id and uptime on every
// log line without threading them through call sites.
type ContextProvider func() []slog.Attr

// ContextHandler wraps another handler and appends the provider's
// attributes to each record as it passes through.
type ContextHandler struct {
	inner    slog.Handler
	provider ContextProvider
}

// NewContextHandler wraps inner so every record handled picks up the
// provider's attributes.
func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{
		inner:    inner,
		provider: provider,
	}
}

// Enabled delegates to the inner handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle stamps the provider's attributes on the record, then delegates.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		attrs := h.provider()
		r.AddAttrs(attrs...)
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs pushes the static attributes down to the inner handler and
// keeps the provider in front of it.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{
		inner:    h.inner.WithAttrs(attrs),
		provider: h.provider,
	}
}

// WithGroup opens the group on the inner handler; provider attributes
// added later land inside it, matching slog's grouping rules.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{
		inner:    h.inner.WithGroup(name),
		provider: h.provider,
	}
}
