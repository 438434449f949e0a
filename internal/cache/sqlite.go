package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLiteStore keeps entries in the cache_entries table of the agent database.
// The connection is owned by the caller.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM cache_entries
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
	`, key, now()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache exists %s: %w", key, err)
	}
	return true, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM cache_entries
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
	`, key, now()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	return json.RawMessage(value), nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	if err := validate(value); err != nil {
		return err
	}

	var expiresAt sql.NullString
	if exp := expiry(ttl); !exp.IsZero() {
		expiresAt = sql.NullString{String: formatTime(exp), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, key, string(value), expiresAt, now())
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		args = append(args, k)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("cache delete: %w", err)
	}
	defer tx.Rollback()

	// Expired rows are not counted.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key IN (`+placeholders+`) AND expires_at IS NOT NULL AND expires_at <= ?`,
		append(args, now())...); err != nil {
		return 0, fmt.Errorf("cache delete: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("cache delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache delete: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("cache delete: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error { return nil }

// Sweep removes expired rows.
func (s *SQLiteStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`, now())
	if err != nil {
		return 0, fmt.Errorf("cache sweep: %w", err)
	}
	return res.RowsAffected()
}

// Timestamps are stored as fixed-width UTC strings so they compare lexically.
const timeLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func now() string {
	return formatTime(time.Now())
}
