package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/vf-top/internal/config"
	"github.com/nixlim/vf-top/internal/logging"
)

// NewStore opens the configured backend. When the backend is unreachable it
// logs a warning and falls back to a MemoryStore; the returned bool reports
// whether the store is durable.
func NewStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Store, bool, error) {
	logger = logging.OrNop(logger)
	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour

	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), false, nil

	case "redis":
		store, err := NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisDB, retention)
		if err != nil {
			logger.Warn("redis storage unavailable, falling back to in-memory store", zap.Error(err))
			return NewMemoryStore(), false, nil
		}
		return store, true, nil

	case "postgres":
		store, err := NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Warn("postgres storage unavailable, falling back to in-memory store", zap.Error(err))
			return NewMemoryStore(), false, nil
		}
		if n, err := store.Prune(ctx, cfg.RetentionDays); err != nil {
			logger.Warn("postgres prune failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("pruned expired entries", zap.Int64("rows", n))
		}
		return store, true, nil
	}

	if cfg.DBPath == "" {
		return NewMemoryStore(), false, nil
	}

	store, err := NewSQLiteStore(expandTilde(cfg.DBPath), cfg.RetentionDays, logger)
	if err != nil {
		logger.Warn("sqlite storage unavailable, falling back to in-memory store", zap.Error(err))
		return NewMemoryStore(), false, nil
	}
	return store, true, nil
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
