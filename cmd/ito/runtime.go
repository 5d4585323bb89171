package main

import (
	"context"
	"fmt"
	rand "math/rand/v2"

	"github.com/charmbracelet/log"

	"github.com/lox/ito/internal/config"
	"github.com/lox/ito/internal/store"
	"github.com/lox/ito/internal/store/memory"
	"github.com/lox/ito/internal/store/sqlstore"
	"github.com/lox/ito/internal/topic"
)

// openStore connects the storage driver named in cfg.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *log.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		logger.Info("Using in-memory storage")
		return memory.New(), nil
	case config.DriverSQLite:
		logger.Info("Opening SQLite database", "path", cfg.DSN)
		return sqlstore.OpenSQLite(cfg.DSN)
	case config.DriverPostgres:
		logger.Info("Connecting to Postgres")
		return sqlstore.OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// loadTopics reads the configured catalog or falls back to the built-in one.
func loadTopics(cfg config.TopicsConfig, rng *rand.Rand) (*topic.Catalog, error) {
	if cfg.File == "" {
		return topic.Builtin(rng), nil
	}
	catalog, err := topic.LoadFile(cfg.File, rng)
	if err != nil {
		return nil, fmt.Errorf("load topics: %w", err)
	}
	return catalog, nil
}
