package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithWriter(&buf))
	l.Info("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "hello") || !strings.Contains(out, "key=value") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestNew_DebugFiltered(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithWriter(&buf))
	l.Debug("hidden")

	if buf.Len() != 0 {
		t.Errorf("expected debug to be filtered, got %s", buf.String())
	}
}

func TestNew_DebugEnabled(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithWriter(&buf), WithDebug(true))
	l.Debug("visible")

	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("expected debug output, got %s", buf.String())
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithWriter(&buf), WithFormat("json"))
	l.Info("structured", "count", 42)

	var parsed map[string]any
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if parsed["msg"] != "structured" {
		t.Errorf("expected msg 'structured', got %v", parsed["msg"])
	}
	if parsed["count"] != float64(42) {
		t.Errorf("expected count 42, got %v", parsed["count"])
	}
}

func TestNew_Pretty(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithWriter(&buf), WithFormat("pretty"))
	l.Info("pretty output")

	if !strings.Contains(buf.String(), "pretty output") {
		t.Errorf("expected pretty output, got %s", buf.String())
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	if l.Handler().Enabled(context.Background(), slog.LevelError) {
		t.Error("expected nop handler to be disabled")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
