package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"farmsentry/internal/config"
)

func TestNewWithWriter_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Info("camera %s opened", "0")
	l.Warning("queue %d full", 3)
	l.Error("boom")

	out := buf.String()
	for _, want := range []string{"INFO", "camera 0 opened", "WARNING", "queue 3 full", "ERROR", "boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got: %s", want, out)
		}
	}
	if !strings.Contains(out, "logger_test.go") {
		t.Errorf("Expected caller file in output, got: %s", out)
	}
}

func TestNewLogger_WritesAndCleansFiles(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(&config.Config{LogDirectory: dir})

	l.Error("disk failure")

	errorFile := filepath.Join(dir, "error.log")
	data, err := os.ReadFile(errorFile)
	if err != nil {
		t.Fatalf("Failed to read error log: %v", err)
	}
	if !strings.Contains(string(data), "disk failure") {
		t.Errorf("Expected error log to contain message, got: %s", data)
	}

	if err := l.CleanLogs(LevelError); err != nil {
		t.Fatalf("CleanLogs failed: %v", err)
	}
	data, _ = os.ReadFile(errorFile)
	if len(data) != 0 {
		t.Errorf("Expected error log to be empty after clean, got %d bytes", len(data))
	}
}

func TestNewLogger_SeparatesLevels(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(&config.Config{LogDirectory: dir})

	l.Info("camera opened")
	l.Warning("frame dropped")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	info, _ := os.ReadFile(l.Path(LevelInfo))
	warning, _ := os.ReadFile(l.Path(LevelWarning))
	if !strings.Contains(string(info), "camera opened") || strings.Contains(string(info), "frame dropped") {
		t.Errorf("Unexpected info log: %s", info)
	}
	if !strings.Contains(string(warning), "frame dropped") {
		t.Errorf("Unexpected warning log: %s", warning)
	}
	if l.Path(LevelError) != filepath.Join(dir, "error.log") {
		t.Errorf("Unexpected error log path %q", l.Path(LevelError))
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want Level
		ok   bool
	}{
		{"info", LevelInfo, true},
		{"warning", LevelWarning, true},
		{"error", LevelError, true},
		{"debug", "", false},
		{"../info", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseLevel(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNewWithWriter_HasNoFiles(t *testing.T) {
	l := NewWithWriter(&bytes.Buffer{})
	if l.Path(LevelInfo) != "" {
		t.Errorf("Expected no log path, got %q", l.Path(LevelInfo))
	}
	if err := l.CleanLogs(LevelInfo); err != nil {
		t.Errorf("Expected CleanLogs to be a no-op, got %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Expected Close to succeed, got %v", err)
	}
}
