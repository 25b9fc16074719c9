// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/authkv/authkv/internal/store"
)

// setupPostgres starts a PostgreSQL container and applies the migrations.
func setupPostgres() (string, func(), error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("authkv_test"),
		postgres.WithUsername("authkv"),
		postgres.WithPassword("authkv"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return "", nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return "", nil, err
	}

	m, err := store.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return "", nil, err
	}
	defer m.Close() //nolint:errcheck // best effort
	if err := m.Up(); err != nil {
		_ = container.Terminate(ctx)
		return "", nil, err
	}

	return connStr, func() { _ = container.Terminate(ctx) }, nil
}

// setupRedis starts a Redis container.
func setupRedis() (string, func(), error) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, err
	}
	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return "", nil, err
	}
	return connStr, func() { _ = container.Terminate(ctx) }, nil
}

// storeContract runs the behavior every backend must share.
func storeContract(name string, setup func() (string, func(), error)) {
	Describe(name, Ordered, func() {
		var (
			s       store.Store
			cleanup func()
			ctx     context.Context
		)

		BeforeAll(func() {
			ctx = context.Background()
			url, done, err := setup()
			Expect(err).NotTo(HaveOccurred())
			cleanup = done

			s, err = store.Open(ctx, store.Options{
				URL:            url,
				PoolSize:       4,
				ConnectRetries: 5,
			})
			Expect(err).NotTo(HaveOccurred())
		})

		AfterAll(func() {
			if s != nil {
				Expect(s.Close()).To(Succeed())
			}
			if cleanup != nil {
				cleanup()
			}
		})

		It("distinguishes absent keys from empty values", func() {
			_, found, err := s.Get(ctx, "absent")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())

			Expect(s.Set(ctx, "empty", "")).To(Succeed())
			value, found, err := s.Get(ctx, "empty")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(value).To(BeEmpty())
		})

		It("overwrites with Set", func() {
			Expect(s.Set(ctx, "tcross", "first")).To(Succeed())
			Expect(s.Set(ctx, "tcross", "second")).To(Succeed())

			value, _, err := s.Get(ctx, "tcross")
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal("second"))

			exists, err := s.Exists(ctx, "tcross")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue())
		})

		It("lets exactly one concurrent SetIfAbsent win", func() {
			var (
				wg   sync.WaitGroup
				wins atomic.Int32
			)
			for range 16 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					ok, err := s.SetIfAbsent(ctx, "race", "hash")
					Expect(err).NotTo(HaveOccurred())
					if ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			Expect(wins.Load()).To(Equal(int32(1)))
		})

		It("answers pings", func() {
			Expect(s.Ping(ctx)).To(Succeed())
		})
	})
}

var _ = Describe("Store backends", func() {
	storeContract("PostgresStore", setupPostgres)
	storeContract("RedisStore", setupRedis)
})
