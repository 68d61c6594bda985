package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Dialect identifies the SQL engine behind a DB
type Dialect string

const (
	// DialectPostgres is served by github.com/lib/pq
	DialectPostgres Dialect = "postgres"
	// DialectSQLite is served by modernc.org/sqlite
	DialectSQLite Dialect = "sqlite"
)

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// DB wraps a database connection pool. Queries are written with $N placeholders
// and rebound for the active dialect.
type DB struct {
	*sql.DB
	dialect Dialect
}

// New opens a database from a URL. postgres:// and postgresql:// URLs use lib/pq;
// sqlite://<path> and file:<path> use the embedded SQLite driver.
func New(databaseURL string) (*DB, error) {
	dialect, dsn, err := parseDatabaseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{DB: sqlDB, dialect: dialect}

	switch dialect {
	case DialectSQLite:
		// A single connection serializes writers and keeps :memory: databases alive.
		sqlDB.SetMaxOpenConns(1)
		if _, err := sqlDB.ExecContext(context.Background(), "PRAGMA foreign_keys=ON"); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		// the scheduler and remindctl may share one file
		if _, err := sqlDB.ExecContext(context.Background(), "PRAGMA busy_timeout=5000"); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
	case DialectPostgres:
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Dialect returns the SQL dialect of the connection
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// ExecContext executes a query after rebinding its placeholders
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.DB.ExecContext(ctx, db.rebind(query), args...)
}

// QueryContext runs a query after rebinding its placeholders
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.DB.QueryContext(ctx, db.rebind(query), args...)
}

// QueryRowContext runs a single-row query after rebinding its placeholders
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.DB.QueryRowContext(ctx, db.rebind(query), args...)
}

func (db *DB) rebind(query string) string {
	if db.dialect != DialectSQLite {
		return query
	}
	// SQLite binds ?NNN by index, which keeps repeated placeholders working.
	return placeholderPattern.ReplaceAllString(query, "?$1")
}

func parseDatabaseURL(databaseURL string) (Dialect, string, error) {
	switch {
	case databaseURL == "":
		return "", "", fmt.Errorf("database URL is empty")
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return DialectPostgres, databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite URL has no path")
		}
		return DialectSQLite, path, nil
	case strings.HasPrefix(databaseURL, "file:"):
		return DialectSQLite, databaseURL, nil
	default:
		return "", "", fmt.Errorf("unsupported database URL scheme: %q", databaseURL)
	}
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timeFromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		// Rows may already be closed after iteration
		_ = err
	}
}
