package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/veritube/veritube-agent/internal/metrics"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string // sqlite, redis, postgres or memory
	SQLite      *sql.DB
	RedisURL    string
	PostgresDSN string
	Logger      *slog.Logger
}

// Open builds the configured backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "sqlite":
		if opts.SQLite == nil {
			return nil, errors.New("sqlite cache requires a database handle")
		}
		return NewSQLiteStore(opts.SQLite), nil
	case "redis":
		if opts.RedisURL == "" {
			return nil, errors.New("redis cache requires a URL")
		}
		s, err := NewRedisStore(ctx, opts.RedisURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgresStore(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		if opts.Logger != nil {
			opts.Logger.Warn("using in-memory cache, artifacts will not survive a restart")
		}
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

// Instrumented counts reads of the wrapped store as hits and misses.
type Instrumented struct {
	Store
	metrics *metrics.Metrics
}

func NewInstrumented(s Store, m *metrics.Metrics) *Instrumented {
	return &Instrumented{Store: s, metrics: m}
}

func (i *Instrumented) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := i.Store.Exists(ctx, key)
	i.observe(ok, err)
	return ok, err
}

func (i *Instrumented) Get(ctx context.Context, key string) (json.RawMessage, error) {
	raw, err := i.Store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		i.observe(false, nil)
	} else {
		i.observe(err == nil, err)
	}
	return raw, err
}

// Sweep forwards to the wrapped store when it supports sweeping.
func (i *Instrumented) Sweep(ctx context.Context) (int64, error) {
	if s, ok := i.Store.(Sweeper); ok {
		return s.Sweep(ctx)
	}
	return 0, nil
}

func (i *Instrumented) observe(hit bool, err error) {
	switch {
	case err != nil:
		i.metrics.ObserveCache("error")
	case hit:
		i.metrics.ObserveCache("hit")
	default:
		i.metrics.ObserveCache("miss")
	}
}
