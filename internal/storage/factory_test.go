package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nixlim/vf-top/internal/config"
)

func TestFallback_SQLiteSuccess(t *testing.T) {
	cfg := config.StorageConfig{
		Backend:       "sqlite",
		DBPath:        filepath.Join(t.TempDir(), "test.db"),
		RetentionDays: 30,
	}

	store, isPersistent, err := NewStore(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	if !isPersistent {
		t.Error("expected isPersistent=true for valid DB path")
	}
	if _, ok := store.(*SQLiteStore); !ok {
		t.Errorf("expected *SQLiteStore, got %T", store)
	}
}

func TestFallback_UnwritablePath(t *testing.T) {
	cfg := config.StorageConfig{
		Backend:       "sqlite",
		DBPath:        "/nonexistent/deeply/nested/unwritable/path/test.db",
		RetentionDays: 30,
	}

	store, isPersistent, err := NewStore(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewStore should not return error on fallback: %v", err)
	}
	defer func() { _ = store.Close() }()

	if isPersistent {
		t.Error("expected isPersistent=false for unwritable path")
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore fallback, got %T", store)
	}
}

func TestFallback_ExplicitMemory(t *testing.T) {
	store, isPersistent, err := NewStore(context.Background(), config.StorageConfig{Backend: "memory"}, nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if isPersistent {
		t.Error("memory backend should not report persistence")
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", store)
	}
}

func TestFallback_UnreachableRedis(t *testing.T) {
	cfg := config.StorageConfig{Backend: "redis", RedisAddr: "127.0.0.1:1", RetentionDays: 30}
	store, isPersistent, err := NewStore(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewStore should not return error on fallback: %v", err)
	}
	if isPersistent {
		t.Error("expected isPersistent=false for unreachable redis")
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore fallback, got %T", store)
	}
}

func TestExpandTilde(t *testing.T) {
	if got := expandTilde("/abs/path.db"); got != "/abs/path.db" {
		t.Errorf("absolute path changed: got %s", got)
	}
	if got := expandTilde("~/x.db"); got == "~/x.db" {
		t.Error("tilde path was not expanded")
	}
}
