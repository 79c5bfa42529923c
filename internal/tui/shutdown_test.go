package tui

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestShutdownManager_Order(t *testing.T) {
	var order []string
	sm := NewShutdownManager()
	sm.StopSource = func(context.Context) error {
		order = append(order, "source")
		return nil
	}
	sm.StopEngine = func() { order = append(order, "engine") }
	sm.Cleanup = func() { order = append(order, "cleanup") }

	if err := sm.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	want := []string{"source", "engine", "cleanup"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("step %d = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestShutdownManager_Idempotent(t *testing.T) {
	calls := 0
	sm := NewShutdownManager()
	sm.StopSource = func(context.Context) error {
		calls++
		return errors.New("already closed")
	}

	first := sm.Shutdown()
	second := sm.Shutdown()
	if calls != 1 {
		t.Errorf("StopSource called %d times, want 1", calls)
	}
	if first == nil || first != second {
		t.Errorf("later calls should return the first result: %v, %v", first, second)
	}
}

func TestShutdownManager_EngineTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	cleaned := false
	sm := &ShutdownManager{
		DrainTimeout: 20 * time.Millisecond,
		StopEngine:   func() { <-release },
		Cleanup:      func() { cleaned = true },
	}

	if err := sm.Shutdown(); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("want deadline exceeded, got %v", err)
	}
	if !cleaned {
		t.Error("cleanup should run even when the engine hangs")
	}
}

func TestShutdownManager_NoHooks(t *testing.T) {
	if err := NewShutdownManager().Shutdown(); err != nil {
		t.Errorf("empty manager should shut down cleanly: %v", err)
	}
}
