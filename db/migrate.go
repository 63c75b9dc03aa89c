// Package db provides database connection helpers, schema migration, and small data access helpers.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// getMigrationsPath returns the path to the migrations directory.
// It looks for the migrations in several locations to handle different execution contexts.
func getMigrationsPath() (string, error) {
	possiblePaths := []string{
		"db/migrations",
		"migrations",
		"./db/migrations",
		"./migrations",
	}

	for _, path := range possiblePaths {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(path)
			if err != nil {
				return "", fmt.Errorf("failed to get absolute path for %s: %w", path, err)
			}
			return "file://" + absPath, nil
		}
	}

	return "", fmt.Errorf("migrations directory not found in any of the expected locations: %v", possiblePaths)
}

// RunMigrations runs versioned database migrations using golang-migrate.
// Migrations are located in db/migrations/ and follow the
// 000001_description.up.sql / .down.sql naming convention.
// This function is idempotent and safe to run multiple times.
func RunMigrations(db *sql.DB) error {
	migrationsPath, err := getMigrationsPath()
	if err != nil {
		return err
	}
	return RunMigrationsFromPath(db, migrationsPath)
}

// RunMigrationsFromPath runs migrations from a custom path.
// This is useful for testing with different migration directories.
func RunMigrationsFromPath(db *sql.DB, migrationsPath string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("database schema is up to date", slog.String("component", "db_migrate"))
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		slog.Warn("could not determine migration version", slog.Any("error", err), slog.String("component", "db_migrate"))
		return nil
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d - manual intervention required", version)
	}

	slog.Info("migrations applied successfully",
		slog.Uint64("version", uint64(version)),
		slog.String("component", "db_migrate"))
	return nil
}

// Migrate applies idempotent schema changes for all required tables and indices.
// It is the embedded fallback for deployments that don't ship the migrations directory.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			platform TEXT,
			stream_ref TEXT,
			title TEXT,
			game TEXT,
			started_at TIMESTAMPTZ DEFAULT NOW(),
			ended_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id SERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			message_id TEXT UNIQUE,
			author TEXT,
			author_ref TEXT,
			message TEXT,
			is_command BOOLEAN DEFAULT FALSE,
			command_name TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS command_stats (
			session_id TEXT NOT NULL REFERENCES sessions(id),
			command TEXT NOT NULL,
			executions INTEGER DEFAULT 0,
			failures INTEGER DEFAULT 0,
			total_ms DOUBLE PRECISION DEFAULT 0,
			PRIMARY KEY (session_id, command)
		)`,
		`CREATE TABLE IF NOT EXISTS viewer_snapshots (
			id SERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			viewers INTEGER,
			likes INTEGER,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS oauth_tokens (
			provider TEXT PRIMARY KEY,
			access_token TEXT,
			refresh_token TEXT,
			expires_at TIMESTAMPTZ,
			scope TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_session ON chat_messages(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_author ON chat_messages(session_id, author)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_created ON chat_messages(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_session ON viewer_snapshots(session_id)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}
