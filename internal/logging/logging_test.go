package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nixlim/vf-top/internal/config"
)

func TestNew_NoFileIsNop(t *testing.T) {
	l, err := New(config.LogConfig{Level: "debug"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.Core().Enabled(-1) {
		t.Error("nop logger should not enable any level")
	}
}

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "vf-top.log")
	l, err := New(config.LogConfig{Level: "warn", File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("dropped below level")
	l.Warn("resubscribe failed")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("log lines: want 1, got %d (%q)", len(lines), string(data))
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "resubscribe failed" {
		t.Errorf("msg: want %q, got %v", "resubscribe failed", entry["msg"])
	}
	if entry["level"] != "warn" {
		t.Errorf("level: want warn, got %v", entry["level"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Error("missing ts key")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
}
