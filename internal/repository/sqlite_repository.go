package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type sqliteKV struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteKV returns a KV backed by the kv_store table. The schema is
// created by database.InitDB.
func NewSQLiteKV(db *sql.DB) KV {
	return &sqliteKV{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *sqliteKV) Get(ctx context.Context, key string) (string, error) {
	query := "SELECT value FROM kv_store WHERE key = ?"
	var value string
	if err := r.db.QueryRowContext(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("could not read key %s: %w", key, err)
	}
	return value, nil
}

func (r *sqliteKV) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, key, value, r.now()); err != nil {
		return fmt.Errorf("could not write key %s: %w", key, err)
	}
	return nil
}

func (r *sqliteKV) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM kv_store WHERE key = ?", key); err != nil {
		return fmt.Errorf("could not delete key %s: %w", key, err)
	}
	return nil
}
