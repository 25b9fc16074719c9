// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

// Package store provides the key/value adapters that hold credential records.
//
// Every backend is safe for concurrent use by many request handlers and owns a
// bounded connection pool. Pool exhaustion and connectivity failures are
// reported with ErrUnavailable in the error chain so callers can answer with a
// service-unavailable status instead of failing the process.
package store

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ErrUnavailable marks failures caused by the store being unreachable or its
// pool being exhausted.
var ErrUnavailable = errors.New("store unavailable")

// Store is a pooled key/value store.
type Store interface {
	// Exists reports whether key holds a value.
	Exists(ctx context.Context, key string) (bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// SetIfAbsent stores value only when key holds nothing. It reports whether
	// the write happened.
	SetIfAbsent(ctx context.Context, key, value string) (bool, error)

	// Get returns the value under key. found is false when the key is absent,
	// which is distinct from a present empty value.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the pool.
	Close() error
}

// Options configure Open.
type Options struct {
	URL            string
	PoolSize       int
	AcquireTimeout time.Duration
	KeyPrefix      string
	ConnectRetries uint64
	ConnectBackoff time.Duration
	Logger         *slog.Logger
}

// Default pool settings.
const (
	DefaultPoolSize       = 16
	DefaultAcquireTimeout = 2 * time.Second
)

func (o Options) withDefaults() Options {
	if o.PoolSize <= 0 {
		o.PoolSize = DefaultPoolSize
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = DefaultAcquireTimeout
	}
	if o.ConnectBackoff <= 0 {
		o.ConnectBackoff = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Open connects to the store named by opts.URL and waits until it answers a
// ping. The scheme selects the backend: redis, rediss, postgres, postgresql
// or memory.
func Open(ctx context.Context, opts Options) (Store, error) {
	opts = opts.withDefaults()

	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, oops.Code("STORE_URL_INVALID").With("operation", "parse store url").Wrap(err)
	}

	var s Store
	switch u.Scheme {
	case "redis", "rediss":
		s, err = NewRedisStore(opts)
	case "postgres", "postgresql":
		s, err = NewPostgresStore(ctx, opts)
	case "memory":
		s = NewMemoryStore()
	default:
		return nil, oops.Code("STORE_UNSUPPORTED_SCHEME").
			With("scheme", u.Scheme).
			Errorf("unsupported store scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, err
	}

	if err := pingWithRetry(ctx, s, opts); err != nil {
		_ = s.Close() //nolint:errcheck // ping error takes precedence
		return nil, err
	}

	opts.Logger.Info("store connected",
		"scheme", u.Scheme,
		"host", u.Host,
		"pool_size", opts.PoolSize,
	)
	return s, nil
}

// pingWithRetry pings s with a constant backoff until it answers or the retry
// budget is spent.
func pingWithRetry(ctx context.Context, s Store, opts Options) error {
	backoff := retry.WithMaxRetries(opts.ConnectRetries, retry.NewConstant(opts.ConnectBackoff))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, opts.AcquireTimeout)
		defer cancel()

		if err := s.Ping(pingCtx); err != nil {
			opts.Logger.Warn("store ping failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("STORE_UNAVAILABLE").
			With("operation", "connect").
			With("attempts", attempt).
			Wrap(errors.Join(ErrUnavailable, err))
	}
	return nil
}

// IsUnavailable reports whether err was caused by an unreachable store.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
