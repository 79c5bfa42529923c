package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/vf-top/internal/config"
	"github.com/nixlim/vf-top/internal/engine"
	"github.com/nixlim/vf-top/internal/storage"
	"github.com/nixlim/vf-top/internal/vehicle"
)

// slowLister blocks until its context is cancelled, then holds on until
// release is closed.
type slowLister struct {
	entered  chan struct{}
	release  chan struct{}
	returned atomic.Bool
}

func (l *slowLister) ListVehicles(ctx context.Context) ([]vehicle.Identity, error) {
	close(l.entered)
	<-ctx.Done()
	<-l.release
	l.returned.Store(true)
	return nil, ctx.Err()
}

func newBootstrapEngine(t *testing.T, lister engine.VehicleLister) *engine.Engine {
	t.Helper()
	eng := engine.New(engine.Deps{
		Config:   config.DefaultConfig(),
		Store:    storage.NewMemoryStore(),
		Vehicles: lister,
		Logger:   zap.NewNop(),
	})
	t.Cleanup(eng.Close)
	return eng
}

func TestStartBootstrap_StopWaitsForReturn(t *testing.T) {
	l := &slowLister{entered: make(chan struct{}), release: make(chan struct{})}
	eng := newBootstrapEngine(t, l)

	stop := startBootstrap(context.Background(), eng, "V1", zap.NewNop())
	<-l.entered

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(l.release)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !l.returned.Load() {
		t.Error("stop returned before bootstrap finished")
	}
	if got := eng.Active().VIN; got != "" {
		t.Errorf("cancelled bootstrap should not activate a vehicle, got %q", got)
	}
}

func TestStartBootstrap_StopHonoursDeadline(t *testing.T) {
	l := &slowLister{entered: make(chan struct{}), release: make(chan struct{})}
	eng := newBootstrapEngine(t, l)

	stop := startBootstrap(context.Background(), eng, "", zap.NewNop())
	<-l.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("stop: want deadline exceeded, got %v", err)
	}
	close(l.release)
}

func TestStartBootstrap_ActivatesRequestedVIN(t *testing.T) {
	eng := newBootstrapEngine(t, nil)

	stop := startBootstrap(context.Background(), eng, " V9 ", zap.NewNop())
	deadline := time.Now().Add(5 * time.Second)
	for eng.Active().VIN != "V9" {
		if time.Now().After(deadline) {
			t.Fatal("bootstrap never activated V9")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := stop(context.Background()); err != nil {
		t.Errorf("stop after completion: %v", err)
	}
}
