package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ajz007/ai-voice-planner/internal/config"
)

func TestParseTime(t *testing.T) {
	local := time.Date(2026, 3, 14, 9, 30, 0, 0, time.Local)
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"2026-03-14T09:30:00Z", time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC).UnixMilli(), true},
		{"2026-03-14 09:30", local.UnixMilli(), true},
		{"2026-03-14T09:30", local.UnixMilli(), true},
		{"2026-03-14", time.Date(2026, 3, 14, 0, 0, 0, 0, time.Local).UnixMilli(), true},
		{"tomorrow", 0, false},
	}
	for _, tt := range tests {
		got, err := parseTime(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("parseTime(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseTime(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseID(t *testing.T) {
	if id, err := parseID("42"); err != nil || id != 42 {
		t.Errorf("parseID(42) = %d, %v", id, err)
	}
	for _, bad := range []string{"0", "-1", "abc", ""} {
		if _, err := parseID(bad); err == nil {
			t.Errorf("parseID(%q) accepted", bad)
		}
	}
}

func TestTail(t *testing.T) {
	if got := tail("short", 10); got != "short" {
		t.Errorf("tail = %q", got)
	}
	if got := tail("abcdefghij", 5); got != "…ghij" {
		t.Errorf("tail = %q", got)
	}
}

func TestInitLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		logger := initLogger(config.LoggingConfig{Level: tt.level, Format: "json", Output: "stderr"})
		if !logger.Enabled(context.Background(), tt.want) {
			t.Errorf("level %q: %v disabled", tt.level, tt.want)
		}
		if tt.want > slog.LevelDebug && logger.Enabled(context.Background(), tt.want-1) {
			t.Errorf("level %q: below %v enabled", tt.level, tt.want)
		}
	}
}

func TestQuietLogger(t *testing.T) {
	if quietLogger(config.LoggingConfig{Output: "stderr"}).Enabled(context.Background(), slog.LevelError) {
		t.Error("terminal output should be discarded")
	}
	file := filepath.Join(t.TempDir(), "voiceplanner.log")
	if !quietLogger(config.LoggingConfig{Output: file}).Enabled(context.Background(), slog.LevelError) {
		t.Error("file output should be kept")
	}
}
