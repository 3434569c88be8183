package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/soaringjerry/synapirt/internal/config"
	"github.com/soaringjerry/synapirt/internal/db"
)

// openStore opens the configured database and applies pending migrations.
func openStore(cfg *config.Config, logger *slog.Logger) (*sql.DB, *db.SQLiteStore, error) {
	conn, err := db.Open(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	applied, err := db.RunMigrations(conn, cfg.Storage.MigrationsDir)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("database migrated", "path", cfg.Storage.SQLitePath, "applied", applied)
	}
	store, err := db.NewSQLiteStore(conn, logger)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("init sqlite store: %w", err)
	}
	return conn, store, nil
}

func closeDB(conn *sql.DB, logger *slog.Logger) {
	if err := conn.Close(); err != nil {
		logger.Warn("failed to close sqlite db", "error", err)
	}
}
