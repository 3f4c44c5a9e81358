package logging

import (
	"context"
	"log/slog"
)

// TickSource reports the current simulated tick.
type TickSource interface {
	Now() uint64
}

// tickHandler stamps every record with the simulated tick.
type tickHandler struct {
	slog.Handler
	src TickSource
}

// WithTicks wraps h so every record carries a "tick" attribute read from src.
func WithTicks(h slog.Handler, src TickSource) slog.Handler {
	return &tickHandler{Handler: h, src: src}
}

func (h *tickHandler) Handle(ctx context.Context, r slog.Record) error {
	r = r.Clone()
	r.AddAttrs(slog.Uint64("tick", h.src.Now()))
	return h.Handler.Handle(ctx, r)
}

func (h *tickHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &tickHandler{Handler: h.Handler.WithAttrs(attrs), src: h.src}
}

func (h *tickHandler) WithGroup(name string) slog.Handler {
	return &tickHandler{Handler: h.Handler.WithGroup(name), src: h.src}
}
