// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jllopis/agis/pkg/core"
)

func TestConfigureSlogJSONWithContext(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "debug", "json")

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx := core.WithActor(core.WithRunID(context.Background(), "run-1"), "analyst")
	ctx, span := tp.Tracer("test").Start(ctx, "cycle")
	logger.InfoContext(ctx, "orchestrator.cycle.start", slog.Int("cycle", 1))
	span.End()

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if record[LogKeyTraceID] == nil || record[LogKeySpanID] == nil {
		t.Errorf("expected trace ids in record: %v", record)
	}
	if record[LogKeyRunID] != "run-1" || record[LogKeyRole] != "analyst" {
		t.Errorf("expected run and role in record: %v", record)
	}
}

func TestHandlerKeepsExplicitAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "info", "json"))
	ctx := core.WithActor(context.Background(), "analyst")
	logger.InfoContext(ctx, "gateway.retry", slog.String(LogKeyRole, "cfo"))

	if strings.Count(buf.String(), `"role"`) != 1 || !strings.Contains(buf.String(), `"role":"cfo"`) {
		t.Errorf("explicit role must win: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "warn", "text"))
	logger.Info("hidden")
	logger.Warn("shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output %q", out)
	}
}
