// Package store selects and opens the configured job store.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"scholarsource/internal/config"
	"scholarsource/internal/job"
	"scholarsource/internal/store/memory"
	"scholarsource/internal/store/postgres"
	"scholarsource/internal/store/redisstore"
	"scholarsource/internal/store/sqlite"
)

// Open returns the store named by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (job.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		logger.Warn("Using in-memory job store; jobs are lost on restart")
		return memory.New(), nil
	case config.StorePostgres:
		return postgres.Open(ctx, cfg.Postgres, logger)
	case config.StoreSQLite:
		return sqlite.Open(ctx, cfg.SQLite.Path, logger)
	case config.StoreRedis:
		return redisstore.Open(ctx, cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
