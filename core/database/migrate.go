package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"homeschool-api/core/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// Migrate applies embedded migrations in file name order. Each file runs
// once; applied versions are recorded in schema_migrations.
func Migrate(ctx context.Context, db IDatabase) (int, error) {
	if err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		logger.Error("Database:Migrate:CreateTable:Error", "error", err)
		return 0, err
	}

	var applied []string
	if err := db.SelectContext(ctx, &applied, `SELECT version FROM schema_migrations`); err != nil {
		logger.Error("Database:Migrate:ListApplied:Error", "error", err)
		return 0, err
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return 0, err
	}
	sort.Strings(names)

	count := 0
	for _, name := range names {
		version := strings.TrimSuffix(strings.TrimPrefix(name, "migrations/"), ".sql")
		if done[version] {
			continue
		}

		body, err := migrationFiles.ReadFile(name)
		if err != nil {
			return count, err
		}

		tx, err := db.SQLx().BeginTxx(ctx, nil)
		if err != nil {
			return count, err
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			logger.Error("Database:Migrate:Apply:Error", "version", version, "error", err)
			return count, fmt.Errorf("migration %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			_ = tx.Rollback()
			return count, fmt.Errorf("record migration %s: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return count, err
		}

		logger.Info("Database:Migrate:Applied", "version", version)
		count++
	}
	return count, nil
}
