package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/studyshelf/catalogbot/internal/catalog"
	"github.com/studyshelf/catalogbot/internal/catalog/postgres"
	"github.com/studyshelf/catalogbot/internal/catalog/sqlite"
	"github.com/studyshelf/catalogbot/internal/config"
	"github.com/studyshelf/catalogbot/internal/db"
	"github.com/studyshelf/catalogbot/internal/logger"
)

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openStore connects the configured backend and optionally migrates it.
// The returned func releases the connection.
func openStore(ctx context.Context, log *slog.Logger, cfg config.DatabaseConfig, dir db.Direction, migrate bool) (catalog.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := db.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		if migrate {
			if err := db.MigratePostgres(pool, dir); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		log.Info("database ready", slog.String("driver", cfg.Driver))
		return postgres.New(pool), pool.Close, nil
	case config.DriverSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("db open: %w", err)
		}
		if migrate {
			if err := db.MigrateSQLite(conn, dir); err != nil {
				_ = conn.Close()
				return nil, nil, err
			}
		}
		log.Info("database ready", slog.String("driver", cfg.Driver), slog.String("path", cfg.SQLitePath))
		return sqlite.New(conn), func() { _ = conn.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// withStore runs fn against a migrated store for one-shot commands.
func withStore(ctx context.Context, fn func(cfg config.Config, log *slog.Logger, store catalog.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	store, closeStore, err := openStore(ctx, logger.L, cfg.Database, db.Up, true)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(cfg, logger.L, store)
}
