package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	_ "modernc.org/sqlite"             // sqlite driver
)

// sqlBackend implements Backend over database/sql. SQLite and Postgres share
// the schema; only the driver, DSN and placeholder style differ.
type sqlBackend struct {
	db          *sql.DB
	name        string
	placeholder func(n int) string
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS llmspell_state (
	storage_key TEXT PRIMARY KEY,
	value       BLOB NOT NULL
)`

const pgSchema = `
CREATE TABLE IF NOT EXISTS llmspell_state (
	storage_key TEXT PRIMARY KEY,
	value       BYTEA NOT NULL
)`

// NewSQLiteBackend opens (creating if needed) a SQLite database at path.
func NewSQLiteBackend(path string) (Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqlSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &sqlBackend{
		db:          db,
		name:        "sqlite",
		placeholder: func(int) string { return "?" },
	}, nil
}

// NewPostgresBackend connects to the Postgres database named by dsn.
func NewPostgresBackend(dsn string) (Backend, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	if _, err := db.Exec(pgSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &sqlBackend{
		db:          db,
		name:        "postgres",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}, nil
}

// Set stores value under key using an upsert.
func (b *sqlBackend) Set(ctx context.Context, key string, value []byte) error {
	q := fmt.Sprintf(
		`INSERT INTO llmspell_state (storage_key, value) VALUES (%s, %s)
		 ON CONFLICT (storage_key) DO UPDATE SET value = excluded.value`,
		b.placeholder(1), b.placeholder(2))
	if _, err := b.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("%s set: %w", b.name, err)
	}
	return nil
}

// Get retrieves the value under key.
func (b *sqlBackend) Get(ctx context.Context, key string) ([]byte, error) {
	q := fmt.Sprintf(`SELECT value FROM llmspell_state WHERE storage_key = %s`, b.placeholder(1))
	var value []byte
	err := b.db.QueryRowContext(ctx, q, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s get: %w", b.name, err)
	}
	return value, nil
}

// Delete removes the value under key.
func (b *sqlBackend) Delete(ctx context.Context, key string) (bool, error) {
	q := fmt.Sprintf(`DELETE FROM llmspell_state WHERE storage_key = %s`, b.placeholder(1))
	res, err := b.db.ExecContext(ctx, q, key)
	if err != nil {
		return false, fmt.Errorf("%s delete: %w", b.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s delete count: %w", b.name, err)
	}
	return n > 0, nil
}

// ListKeys returns every key starting with prefix, sorted.
func (b *sqlBackend) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	q := fmt.Sprintf(
		`SELECT storage_key FROM llmspell_state WHERE storage_key LIKE %s ESCAPE '\' ORDER BY storage_key`,
		b.placeholder(1))
	rows, err := b.db.QueryContext(ctx, q, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("%s list keys: %w", b.name, err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("%s scan key: %w", b.name, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// DeletePrefix removes every key starting with prefix.
func (b *sqlBackend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	q := fmt.Sprintf(`DELETE FROM llmspell_state WHERE storage_key LIKE %s ESCAPE '\'`, b.placeholder(1))
	res, err := b.db.ExecContext(ctx, q, escapeLike(prefix)+"%")
	if err != nil {
		return 0, fmt.Errorf("%s delete prefix: %w", b.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s delete prefix count: %w", b.name, err)
	}
	return int(n), nil
}

// Stats reports key and byte counts.
func (b *sqlBackend) Stats(ctx context.Context) (BackendStats, error) {
	var stats BackendStats
	stats.Name = b.name
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(value)), 0) FROM llmspell_state`,
	).Scan(&stats.Keys, &stats.Bytes)
	if err != nil {
		return BackendStats{}, fmt.Errorf("%s stats: %w", b.name, err)
	}
	return stats, nil
}

// Close closes the connection pool.
func (b *sqlBackend) Close() error { return b.db.Close() }

// escapeLike escapes LIKE metacharacters in a literal prefix. Storage keys
// may contain '_' (common in user keys), which LIKE would treat as a
// single-character wildcard.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
