// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package store

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
)

// pgPool is the subset of *pgxpool.Pool used by PostgresStore, kept narrow so
// pgxmock can stand in for it.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store on the credentials table. The migrations in
// this package create it.
type PostgresStore struct {
	pool    pgPool
	prefix  string
	timeout time.Duration
	closed  atomic.Bool
}

// NewPostgresStore opens a pgx pool with at most opts.PoolSize connections.
// Each operation, including waiting for a pooled connection, is bounded by
// opts.AcquireTimeout.
func NewPostgresStore(ctx context.Context, opts Options) (*PostgresStore, error) {
	opts = opts.withDefaults()

	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, oops.Code("STORE_URL_INVALID").With("operation", "parse postgres url").Wrap(err)
	}
	cfg.MaxConns = int32(opts.PoolSize) //nolint:gosec // pool sizes are small

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, wrapError("open pool", "", err, true)
	}
	return newPostgresStore(pool, opts), nil
}

func newPostgresStore(pool pgPool, opts Options) *PostgresStore {
	opts = opts.withDefaults()
	return &PostgresStore{pool: pool, prefix: opts.KeyPrefix, timeout: opts.AcquireTimeout}
}

func (s *PostgresStore) key(k string) string {
	return s.prefix + k
}

// Exists implements Store.
func (s *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM credentials WHERE key = $1)`,
		s.key(key)).Scan(&exists)
	if err != nil {
		return false, wrapError("exists", key, err, s.unavailable(err))
	}
	return exists, nil
}

// Set implements Store.
func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO credentials (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		s.key(key), value)
	if err != nil {
		return wrapError("set", key, err, s.unavailable(err))
	}
	return nil
}

// SetIfAbsent implements Store.
func (s *PostgresStore) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO credentials (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO NOTHING`,
		s.key(key), value)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return false, nil
		}
		return false, wrapError("set if absent", key, err, s.unavailable(err))
	}
	return tag.RowsAffected() == 1, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM credentials WHERE key = $1`,
		s.key(key)).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapError("get", key, err, s.unavailable(err))
	}
	return value, true, nil
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return wrapError("ping", "", err, s.unavailable(err))
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.pool.Close()
	}
	return nil
}

// unavailable treats every failure after Close as unavailable; pgxpool
// reports a closed pool with an untyped error.
func (s *PostgresStore) unavailable(err error) bool {
	return s.closed.Load() || pgUnavailable(err)
}

// pgUnavailable classifies connection, resource and shutdown failures.
func pgUnavailable(err error) bool {
	if isContextError(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) ||
			pgerrcode.IsInsufficientResources(pgErr.Code) ||
			pgerrcode.IsOperatorIntervention(pgErr.Code)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
