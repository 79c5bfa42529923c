package tui

import (
	"context"
	"sync"
	"time"
)

// ShutdownManager coordinates graceful shutdown of the vf-top components.
type ShutdownManager struct {
	// DrainTimeout bounds how long StopSource may take.
	DrainTimeout time.Duration

	// StopSource cancels the live feed and background fetches.
	StopSource func(ctx context.Context) error

	// StopEngine waits for the engine's background work.
	StopEngine func()

	// Cleanup releases anything else, e.g. the storage backend.
	Cleanup func()

	once sync.Once
	err  error
}

// NewShutdownManager creates a ShutdownManager with a 5-second drain timeout.
func NewShutdownManager() *ShutdownManager {
	return &ShutdownManager{
		DrainTimeout: 5 * time.Second,
	}
}

// Shutdown stops the source, then the engine, then runs Cleanup. Later
// calls return the first call's result.
func (sm *ShutdownManager) Shutdown() error {
	sm.once.Do(func() { sm.err = sm.shutdown() })
	return sm.err
}

func (sm *ShutdownManager) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.DrainTimeout)
	defer cancel()

	var err error
	if sm.StopSource != nil {
		err = sm.StopSource(ctx)
	}

	if sm.StopEngine != nil {
		stopped := make(chan struct{})
		go func() {
			sm.StopEngine()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			if err == nil {
				err = ctx.Err()
			}
		}
	}

	if sm.Cleanup != nil {
		sm.Cleanup()
	}

	return err
}
