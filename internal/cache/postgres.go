package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS veritube_cache (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    expires_at TIMESTAMPTZ,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_veritube_cache_expires_at ON veritube_cache(expires_at);
`

// PostgresStore keeps entries in a Postgres table shared by every agent
// pointing at the same database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool for dsn and creates the cache table.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres DSN is required")
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create cache table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM veritube_cache
			WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())
		)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("cache exists %s: %w", key, err)
	}
	return exists, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var value string
	err := s.pool.QueryRow(ctx, `
		SELECT value FROM veritube_cache
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	return json.RawMessage(value), nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	if err := validate(value); err != nil {
		return err
	}

	var expiresAt *time.Time
	if exp := expiry(ttl); !exp.IsZero() {
		expiresAt = &exp
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO veritube_cache (key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()`, key, string(value), expiresAt)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	var n int
	err := s.pool.QueryRow(ctx, `
		WITH removed AS (
			DELETE FROM veritube_cache WHERE key = ANY($1)
			RETURNING expires_at
		)
		SELECT count(*) FROM removed WHERE expires_at IS NULL OR expires_at > now()`, keys).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("cache delete: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Sweep removes expired rows.
func (s *PostgresStore) Sweep(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM veritube_cache WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("cache sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}
