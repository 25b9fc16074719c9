// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package store

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// RedisStore implements Store on a pooled redis client using EXISTS, SET,
// SETNX and GET.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore builds a client from a redis:// or rediss:// URL. The pool is
// sized by opts.PoolSize and waits at most opts.AcquireTimeout for a free
// connection.
func NewRedisStore(opts Options) (*RedisStore, error) {
	opts = opts.withDefaults()

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, oops.Code("STORE_URL_INVALID").With("operation", "parse redis url").Wrap(err)
	}
	redisOpts.PoolSize = opts.PoolSize
	redisOpts.PoolTimeout = opts.AcquireTimeout

	return &RedisStore{client: redis.NewClient(redisOpts), prefix: opts.KeyPrefix}, nil
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

// Exists implements Store.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, wrapError("exists", key, err, redisUnavailable(err))
	}
	return n > 0, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return wrapError("set", key, err, redisUnavailable(err))
	}
	return nil
}

// SetIfAbsent implements Store.
func (s *RedisStore) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(key), value, 0).Result()
	if err != nil {
		return false, wrapError("set if absent", key, err, redisUnavailable(err))
	}
	return ok, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapError("get", key, err, redisUnavailable(err))
	}
	return value, true, nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return wrapError("ping", "", err, redisUnavailable(err))
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		return oops.Code("STORE_CLOSE_FAILED").With("backend", "redis").Wrap(err)
	}
	return nil
}

// redisUnavailable classifies pool and transport failures. Server replies
// such as WRONGTYPE are not availability problems.
func redisUnavailable(err error) bool {
	if errors.Is(err, redis.ErrPoolTimeout) ||
		errors.Is(err, redis.ErrPoolExhausted) ||
		errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		isContextError(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
