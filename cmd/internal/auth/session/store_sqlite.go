package session

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);`

// SQLiteStore persists tokens as two rows of a key/value table.
// Both rows are replaced inside one transaction.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path and ensures the schema.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty sqlite path", ErrConfig)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("token db: open: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("token db: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("token db: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (Tokens, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE key IN (?, ?)`,
		KeyAccessToken, KeyRefreshToken,
	)
	if err != nil {
		return Tokens{}, fmt.Errorf("token db: load: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var t Tokens
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Tokens{}, fmt.Errorf("token db: scan: %w", err)
		}
		switch k {
		case KeyAccessToken:
			t.AccessToken = v
		case KeyRefreshToken:
			t.RefreshToken = v
		}
	}
	if err := rows.Err(); err != nil {
		return Tokens{}, fmt.Errorf("token db: rows: %w", err)
	}
	return t.trimmed(), nil
}

func (s *SQLiteStore) Save(ctx context.Context, t Tokens) error {
	t = t.trimmed()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("token db: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, kv := range [][2]string{
		{KeyAccessToken, t.AccessToken},
		{KeyRefreshToken, t.RefreshToken},
	} {
		if kv[1] == "" {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, kv[0]); err != nil {
				return fmt.Errorf("token db: delete %s: %w", kv[0], err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, datetime('now'))
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, kv[0], kv[1]); err != nil {
			return fmt.Errorf("token db: upsert %s: %w", kv[0], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("token db: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE key IN (?, ?)`,
		KeyAccessToken, KeyRefreshToken,
	); err != nil {
		return fmt.Errorf("token db: clear: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
