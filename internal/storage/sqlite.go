package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/vf-top/internal/logging"
)

const (
	writeQueueSize = 1000
	maxBatch       = 50
	flushEvery     = 100 * time.Millisecond

	housekeepStopWait = 30 * time.Second
	drainWait         = 10 * time.Second
)

// pendingWrite is one queued mutation.
type pendingWrite struct {
	key    string
	value  []byte
	at     time.Time
	delete bool
}

// SQLiteStore answers reads from its MemoryStore mirror and persists
// writes in batches on a background goroutine. A full queue drops the
// write rather than block the caller.
type SQLiteStore struct {
	*MemoryStore
	db     *sql.DB
	logger *zap.Logger

	queue   chan pendingWrite
	dropped atomic.Int64

	closeOnce       sync.Once
	closed          atomic.Bool
	stopHousekeep   context.CancelFunc
	maintenanceDone chan struct{}
	writerDone      chan struct{}
}

func NewSQLiteStore(dbPath string, retentionDays int, logger *zap.Logger) (*SQLiteStore, error) {
	return newSQLiteStoreWithChannelSize(dbPath, writeQueueSize, retentionDays, logger)
}

func newSQLiteStoreWithChannelSize(dbPath string, queueSize, retentionDays int, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{
		MemoryStore:     NewMemoryStore(),
		db:              db,
		logger:          logging.OrNop(logger),
		queue:           make(chan pendingWrite, queueSize),
		maintenanceDone: make(chan struct{}),
		writerDone:      make(chan struct{}),
	}
	if err := s.loadRetained(retentionDays); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recovering entries: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopHousekeep = cancel
	go s.writeLoop()
	go s.housekeep(ctx, retentionDays)
	return s, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.MemoryStore.Set(ctx, key, value); err != nil {
		return err
	}
	s.enqueue(pendingWrite{key: key, value: append([]byte{}, value...), at: time.Now()})
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.MemoryStore.Delete(ctx, key); err != nil {
		return err
	}
	s.enqueue(pendingWrite{key: key, delete: true})
	return nil
}

func (s *SQLiteStore) enqueue(w pendingWrite) {
	// Close may race a writer past the closed check.
	defer func() { _ = recover() }()
	select {
	case s.queue <- w:
	default:
		s.dropped.Add(1)
		s.logger.Warn("sqlite write queue full, dropped write",
			zap.String("key", w.key), zap.Bool("delete", w.delete))
	}
}

// DroppedWrites counts writes lost to a full queue. The memory mirror
// still holds them until restart.
func (s *SQLiteStore) DroppedWrites() int64 {
	return s.dropped.Load()
}

// Close stops housekeeping, drains the queue and closes the database.
// Later calls return nil.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		s.stopHousekeep()
		if !waitFor(s.maintenanceDone, housekeepStopWait) {
			s.logger.Warn("housekeeping did not stop in time")
		}

		close(s.queue)
		if !waitFor(s.writerDone, drainWait) {
			s.logger.Error("write queue not drained in time, data may be lost")
		}

		_ = s.MemoryStore.Close()
		err = s.db.Close()
	})
	return err
}

func waitFor(done <-chan struct{}, limit time.Duration) bool {
	select {
	case <-done:
		return true
	case <-time.After(limit):
		return false
	}
}
