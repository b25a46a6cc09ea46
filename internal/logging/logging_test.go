package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"", zapcore.InfoLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{" warning ", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
			}
		})
	}
}

func TestJSONOutputWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatal(err)
	}

	ctx := WithRequestID(context.Background(), "req-123")
	FromContext(ctx, logger).Info("search done", zap.Int("rows", 3))
	logger.Debug("filtered out")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1:\n%s", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["message"] != "search done" || entry["level"] != "info" || entry[RequestIDKey] != "req-123" || entry["rows"] != float64(3) {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("entry has no timestamp")
	}
}

func TestFromContextWithoutRequestID(t *testing.T) {
	base := zap.NewNop()
	if got := FromContext(context.Background(), base); got != base {
		t.Error("FromContext() should return base unchanged")
	}
	if FromContext(context.Background(), nil) == nil {
		t.Error("FromContext(nil) returned nil")
	}
	if RequestID(context.Background()) != "" {
		t.Error("RequestID() of an empty context should be empty")
	}
}

func TestFileOutput(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  Config
		path string
	}{
		{"configured file", Config{Output: "file", Format: "json", File: FileConfig{Dir: filepath.Join(dir, "a"), Filename: "svc"}}, filepath.Join(dir, "a", "svc.log")},
		{"rotated file", Config{Output: "file", Format: "json", File: FileConfig{Dir: filepath.Join(dir, "b"), Filename: "svc"}, Rotate: RotateConfig{Enabled: true, MaxSizeMB: 1}}, filepath.Join(dir, "b", "svc.log")},
		{"explicit path", Config{Output: filepath.Join(dir, "direct.log")}, filepath.Join(dir, "direct.log")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			logger.Info("written")
			_ = logger.Sync()

			data, err := os.ReadFile(tt.path)
			if err != nil {
				t.Fatalf("read log: %v", err)
			}
			if !strings.Contains(string(data), "written") {
				t.Errorf("log file = %q", data)
			}
		})
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Error("New() accepted an unknown level")
	}
	if _, err := New(Config{Output: "file"}); err == nil {
		t.Error("New() accepted file output without a file name")
	}
}
