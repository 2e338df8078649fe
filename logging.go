package ygggo_pool

import (
	"context"
	"log/slog"
	"os"
)

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Enabled bool
	Level   slog.Level
	// UseYgggoLog routes records through the ygggo_log bridge instead of the
	// default JSON handler.
	UseYgggoLog bool
}

var defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

func (p *Pool) initLogging(cfg LoggingConfig) {
	if !cfg.Enabled {
		return
	}
	p.loggingEnabled = true
	if cfg.UseYgggoLog {
		p.logger = slog.New(newYgggoHandler())
		return
	}
	p.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level}))
}

// EnableLogging enables or disables structured logging for this pool.
func (p *Pool) EnableLogging(enabled bool) {
	if p == nil {
		return
	}
	p.loggingEnabled = enabled
	if enabled && p.logger == nil {
		p.logger = defaultLogger
	}
	p.factory.logger = p.logger
}

// SetLogger sets a custom logger for this pool.
func (p *Pool) SetLogger(logger *slog.Logger) {
	if p == nil {
		return
	}
	p.logger = logger
	p.factory.logger = logger
}

// logPoolEvent logs a pool lifecycle event with structured fields.
func (p *Pool) logPoolEvent(ctx context.Context, event string, err error) {
	if p == nil || !p.loggingEnabled || p.logger == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("event", event),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("status", "error"),
			slog.String("error", err.Error()),
		)
		p.logger.LogAttrs(ctx, slog.LevelError, "pool event", attrs...)
		return
	}
	attrs = append(attrs, slog.String("status", "success"))
	p.logger.LogAttrs(ctx, slog.LevelDebug, "pool event", attrs...)
}
