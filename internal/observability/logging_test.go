package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{"debug", "debug", slog.LevelDebug},
		{"info", "info", slog.LevelInfo},
		{"warn", "warn", slog.LevelWarn},
		{"warning alias", "warning", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"mixed case", "DEBUG", slog.LevelDebug},
		{"whitespace", "  info ", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
		{"unknown defaults to info", "verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestContextHandler_AddsContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-123")
	ctx = context.WithValue(ctx, CardIDKey, "card-456")

	logger.InfoContext(ctx, "hello")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if record["request_id"] != "req-123" {
		t.Errorf("request_id = %v, want req-123", record["request_id"])
	}
	if record["card_id"] != "card-456" {
		t.Errorf("card_id = %v, want card-456", record["card_id"])
	}
}

func TestContextHandler_NoContextValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newContextHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "hello")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if _, ok := record["request_id"]; ok {
		t.Error("request_id should be absent without context value")
	}
	if _, ok := record["trace_id"]; ok {
		t.Error("trace_id should be absent without span context")
	}
}
