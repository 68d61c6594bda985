package database

import (
	"context"
	"fmt"
)

// Instants are stored as unix milliseconds in both dialects so range predicates
// compare numerically regardless of driver time formatting.
var schemaStatements = map[Dialect][]string{
	DialectPostgres: {
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT UNIQUE,
			name TEXT,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS todos (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			topic TEXT NOT NULL,
			subtasks JSONB NOT NULL DEFAULT '[]'::jsonb,
			date BIGINT NOT NULL,
			day TEXT NOT NULL DEFAULT '',
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_todos_date ON todos (date)`,
		`CREATE TABLE IF NOT EXISTS timers (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			target_time BIGINT NOT NULL,
			is_notified BOOLEAN NOT NULL DEFAULT FALSE,
			notified_at BIGINT,
			claimed_until BIGINT,
			created_at BIGINT NOT NULL
		)`,
		`ALTER TABLE timers ADD COLUMN IF NOT EXISTS claimed_until BIGINT`,
		`CREATE INDEX IF NOT EXISTS idx_timers_pending ON timers (is_notified, target_time)`,
	},
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE,
			name TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS todos (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			topic TEXT NOT NULL,
			subtasks TEXT NOT NULL DEFAULT '[]',
			date INTEGER NOT NULL,
			day TEXT NOT NULL DEFAULT '',
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_todos_date ON todos (date)`,
		`CREATE TABLE IF NOT EXISTS timers (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			target_time INTEGER NOT NULL,
			is_notified BOOLEAN NOT NULL DEFAULT FALSE,
			notified_at INTEGER,
			claimed_until INTEGER,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_timers_pending ON timers (is_notified, target_time)`,
	},
}

// Migrate creates the tables the reminder engine reads and writes.
// Statements are idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	statements, ok := schemaStatements[db.dialect]
	if !ok {
		return fmt.Errorf("no schema for dialect %q", db.dialect)
	}
	for _, stmt := range statements {
		if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	if db.dialect == DialectSQLite {
		// SQLite has no ADD COLUMN IF NOT EXISTS
		if err := db.addSQLiteColumn(ctx, "timers", "claimed_until", "INTEGER"); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) addSQLiteColumn(ctx context.Context, table, column, columnType string) error {
	var count int
	query := `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`
	if err := db.DB.QueryRowContext(ctx, query, table, column).Scan(&count); err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	if count > 0 {
		return nil
	}
	stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, columnType)
	if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	return nil
}
