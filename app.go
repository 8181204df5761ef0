package main

import (
	"context"
	"fmt"

	"github.com/complyhq/issues-backend/v2/config"
	"github.com/complyhq/issues-backend/v2/database"
	"github.com/complyhq/issues-backend/v2/internal/lifecycle"
	"github.com/complyhq/issues-backend/v2/internal/store"
	"go.uber.org/zap"
)

// openStore connects the configured backend.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.IssueStore, error) {
	switch cfg.Store.Backend {
	case config.BackendArango:
		db, err := database.InitializeDatabase(ctx, cfg.DatabaseConfig(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return store.NewArangoStore(db), nil
	case config.BackendSQLite:
		s, err := store.NewSQLiteStore(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		logger.Info("Using SQLite issue store", zap.String("path", cfg.SQLite.Path))
		return s, nil
	case config.BackendMemory:
		logger.Warn("Using in-memory issue store, data is lost on exit")
		return store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func lifecycleConfig(cfg *config.Config) lifecycle.Config {
	return lifecycle.Config{
		Workers:    cfg.Reconcile.Workers,
		MaxRetries: cfg.Reconcile.MaxRetries,
		Algorithm:  cfg.Fingerprint.Algorithm,
	}
}

// loadRuntime reads the configuration and builds the logger.
func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, database.InitLogger(cfg.Log.Level), nil
}
