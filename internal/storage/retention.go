package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	pruneEvery  = time.Hour
	vacuumEvery = 7 * 24 * time.Hour
)

// retentionCutoff is the SQLite datetime modifier for "retentionDays ago".
func retentionCutoff(retentionDays int) string {
	return fmt.Sprintf("-%d days", retentionDays)
}

// loadRetained copies every row still inside the retention window into
// the memory mirror. Unreadable rows are skipped and counted.
func (s *SQLiteStore) loadRetained(retentionDays int) error {
	rows, err := s.db.Query(
		"SELECT key, value FROM kv WHERE datetime(updated_at) > datetime('now', ?)",
		retentionCutoff(retentionDays))
	if err != nil {
		return fmt.Errorf("querying entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	skipped := 0
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			skipped++
			continue
		}
		s.restore(key, value)
	}
	if skipped > 0 {
		s.logger.Warn("skipped unreadable cache rows", zap.Int("count", skipped))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating entries: %w", err)
	}
	return nil
}

// prune deletes rows untouched for longer than the retention window and
// reports how many went. The memory mirror keeps them until restart.
func (s *SQLiteStore) prune(retentionDays int) (int64, error) {
	res, err := s.db.Exec(
		"DELETE FROM kv WHERE datetime(updated_at) < datetime('now', ?)",
		retentionCutoff(retentionDays))
	if err != nil {
		return 0, fmt.Errorf("pruning old entries: %w", err)
	}
	return res.RowsAffected()
}

// housekeep prunes hourly and vacuums weekly until ctx ends.
func (s *SQLiteStore) housekeep(ctx context.Context, retentionDays int) {
	defer close(s.maintenanceDone)

	tick := time.NewTicker(pruneEvery)
	defer tick.Stop()
	nextVacuum := time.Now().Add(vacuumEvery)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			if n, err := s.prune(retentionDays); err != nil {
				s.logger.Error("prune failed", zap.Error(err))
			} else if n > 0 {
				s.logger.Debug("pruned cache rows", zap.Int64("rows", n))
			}
			if now.Before(nextVacuum) {
				continue
			}
			if _, err := s.db.Exec("VACUUM"); err != nil {
				s.logger.Error("vacuum failed", zap.Error(err))
				continue
			}
			nextVacuum = now.Add(vacuumEvery)
		}
	}
}
