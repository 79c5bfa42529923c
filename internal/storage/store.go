package storage

import (
	"context"
	"errors"
)

// ErrClosed is returned by writes issued after Close.
var ErrClosed = errors.New("storage: store is closed")

// Store is durable key/value persistence for the telemetry key catalog and
// the charging session cache. Callers own the value encoding.
type Store interface {
	// Get returns the value for key. A missing key is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
