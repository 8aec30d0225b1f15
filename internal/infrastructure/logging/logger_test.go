package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/tuya-ir-bridge/internal/infrastructure/config"
)

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", ""} {
		logger := New(config.LoggingConfig{Level: "info", Format: format}, "1.0.0")
		if logger == nil {
			t.Fatalf("New(format=%q) returned nil", format)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestForDevice_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "test")

	logger.ForDevice("dev-1", "Living room").Info("subscribed", "topic", "home/dev-1/ir/command")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}

	if entry["service"] != "tuyair" {
		t.Errorf("service = %v, want tuyair", entry["service"])
	}
	if entry["device_id"] != "dev-1" {
		t.Errorf("device_id = %v, want dev-1", entry["device_id"])
	}
	if entry["topic"] != "home/dev-1/ir/command" {
		t.Errorf("topic = %v", entry["topic"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, config.LoggingConfig{Level: "warn", Format: "text"}, "test")

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn record should be written at warn level")
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("dropped")
}
