package storage

import (
	"database/sql"
	"time"

	"go.uber.org/zap"
)

const (
	upsertSQL = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	deleteSQL = `DELETE FROM kv WHERE key = ?`
)

// writeLoop commits queued writes once maxBatch accumulate or every
// flushEvery, and drains what is left when the queue closes.
func (s *SQLiteStore) writeLoop() {
	defer close(s.writerDone)

	pending := make([]pendingWrite, 0, maxBatch)
	tick := time.NewTicker(flushEvery)
	defer tick.Stop()

	for {
		select {
		case w, ok := <-s.queue:
			if !ok {
				s.commit(pending)
				return
			}
			pending = append(pending, w)
			if len(pending) < maxBatch {
				continue
			}
		case <-tick.C:
		}
		s.commit(pending)
		pending = pending[:0]
	}
}

// commit applies a batch in one transaction. Only the last write per key
// reaches the database.
func (s *SQLiteStore) commit(batch []pendingWrite) {
	if len(batch) == 0 {
		return
	}

	last := make(map[string]int, len(batch))
	for i, w := range batch {
		last[w.key] = i
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error("begin write batch", zap.Error(err))
		return
	}
	defer func() { _ = tx.Rollback() }()

	for i, w := range batch {
		if last[w.key] != i {
			continue
		}
		if err := apply(tx, w); err != nil {
			s.logger.Error("write failed", zap.String("key", w.key), zap.Error(err))
		}
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("commit write batch", zap.Error(err), zap.Int("writes", len(batch)))
	}
}

func apply(tx *sql.Tx, w pendingWrite) error {
	if w.delete {
		_, err := tx.Exec(deleteSQL, w.key)
		return err
	}
	_, err := tx.Exec(upsertSQL, w.key, w.value, w.at.UTC().Format(time.RFC3339Nano))
	return err
}
