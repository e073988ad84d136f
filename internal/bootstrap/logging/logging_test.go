package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestWithAttrsOverridesSameKey(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "json", "debug")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	ctx := WithLogger(context.Background(), logger)
	ctx = WithAttrs(ctx, slog.String("component", "usecase.claims"), slog.String("claim", "CLM-1"))
	ctx = WithAttrs(ctx, slog.String("claim", "CLM-2"))
	Info(ctx, "claim submitted", slog.String("op", "submit_claim"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line["claim"] != "CLM-2" || line["component"] != "usecase.claims" || line["op"] != "submit_claim" {
		t.Fatalf("log line = %v", line)
	}
}

func TestNewLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "text", "warn")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	ctx := WithLogger(context.Background(), logger)

	Info(ctx, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %q", buf.String())
	}
	Warn(ctx, "shown")
	if buf.Len() == 0 {
		t.Fatalf("warn not written")
	}
}

func TestNewLoggerRejectsUnknownSettings(t *testing.T) {
	if _, err := NewLogger(&bytes.Buffer{}, "xml", "info"); err == nil {
		t.Fatalf("NewLogger(xml) error = nil")
	}
	if _, err := NewLogger(&bytes.Buffer{}, "text", "loud"); err == nil {
		t.Fatalf("NewLogger(loud) error = nil")
	}
}
