// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/agis/pkg/core"
)

// Keys added to every record logged with a context that carries them.
const (
	LogKeyTraceID = "trace_id"
	LogKeySpanID  = "span_id"
	LogKeyRunID   = "run_id"
	LogKeyRole    = "role"
)

// ConfigureSlog installs a default logger that tags records with the trace,
// run and role found in the logging context.
func ConfigureSlog(output io.Writer, level, format string) *slog.Logger {
	logger := slog.New(NewHandler(output, level, format))
	slog.SetDefault(logger)
	return logger
}

// NewHandler builds the context-aware handler without installing it.
func NewHandler(output io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return &contextHandler{next: slog.NewJSONHandler(output, opts)}
	}
	return &contextHandler{next: slog.NewTextHandler(output, opts)}
}

type contextHandler struct {
	next slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle adds context attributes unless the call site already set them.
func (h *contextHandler) Handle(ctx context.Context, record slog.Record) error {
	if ctx == nil {
		return h.next.Handle(ctx, record)
	}
	present := map[string]bool{}
	record.Attrs(func(a slog.Attr) bool {
		present[a.Key] = true
		return true
	})
	add := func(key, value string) {
		if value != "" && !present[key] {
			record.AddAttrs(slog.String(key, value))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		add(LogKeyTraceID, sc.TraceID().String())
		add(LogKeySpanID, sc.SpanID().String())
	}
	if id, ok := core.RunID(ctx); ok {
		add(LogKeyRunID, id)
	}
	if alias, ok := core.Actor(ctx); ok {
		add(LogKeyRole, alias)
	}
	return h.next.Handle(ctx, record)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}

// ParseLevel maps a config level name to a slog level; unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
