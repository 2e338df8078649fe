package ygggo_pool

import (
	"context"
	"log/slog"

	ggl "github.com/yggai/ygggo_log"
)

// ygggoHandler bridges slog records to ygggo_log package-level logging so
// the pool's structured events land in the same sink as the rest of the
// ygggo family.
type ygggoHandler struct {
	group string
	attrs []slog.Attr
}

func newYgggoHandler() slog.Handler {
	// Safe to call repeatedly; ygggo_log initializes once.
	ggl.InitLogEnv()
	return &ygggoHandler{}
}

func (h *ygggoHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *ygggoHandler) Handle(_ context.Context, r slog.Record) error {
	kvs := make([]any, 0, len(h.attrs)*2+8)
	appendAttr := func(a slog.Attr) {
		kvs = append(kvs, a.Key, a.Value.Any())
	}
	for _, a := range h.attrs {
		appendAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool { appendAttr(a); return true })
	if h.group != "" {
		kvs = append(kvs, "group", h.group)
	}

	switch {
	case r.Level >= slog.LevelError:
		ggl.Error(r.Message, kvs...)
	case r.Level >= slog.LevelWarn:
		ggl.Warning(r.Message, kvs...)
	case r.Level >= slog.LevelInfo:
		ggl.Info(r.Message, kvs...)
	default:
		ggl.Debug(r.Message, kvs...)
	}
	return nil
}

func (h *ygggoHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &nh
}

func (h *ygggoHandler) WithGroup(name string) slog.Handler {
	nh := *h
	nh.group = name
	return &nh
}
