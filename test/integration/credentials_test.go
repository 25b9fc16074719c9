// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

//go:build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/authkv/authkv/internal/auth"
	"github.com/authkv/authkv/internal/observability"
	"github.com/authkv/authkv/internal/store"
	"github.com/authkv/authkv/internal/web"
)

// testEnv holds a running API backed by one store container.
type testEnv struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container testcontainers.Container
	store     store.Store
	api       *web.Server
	obs       *observability.Server
	baseURL   string
}

type containerStarter func(ctx context.Context) (testcontainers.Container, string, error)

func startPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("authkv_test"),
		postgres.WithUsername("authkv"),
		postgres.WithPassword("authkv"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return container, "", err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return container, "", err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return container, "", err
	}
	defer func() { _ = migrator.Close() }()
	if err := migrator.Up(); err != nil {
		return container, "", err
	}
	return container, connStr, nil
}

func startRedis(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return container, "", err
	}
	connStr, err := container.ConnectionString(ctx)
	return container, connStr, err
}

func setupTestEnv(start containerStarter) (*testEnv, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	env := &testEnv{ctx: ctx, cancel: cancel}
	logger := slog.New(slog.NewTextHandler(GinkgoWriter, &slog.HandlerOptions{Level: slog.LevelWarn}))

	container, url, err := start(ctx)
	env.container = container
	if err != nil {
		env.cleanup()
		return nil, err
	}

	env.store, err = store.Open(ctx, store.Options{
		URL:            url,
		PoolSize:       8,
		ConnectRetries: 10,
		ConnectBackoff: 250 * time.Millisecond,
		Logger:         logger,
	})
	if err != nil {
		env.cleanup()
		return nil, err
	}

	hasher, err := auth.NewArgon2idHasher(auth.Params{Memory: 1024, Iterations: 1, Threads: 1})
	if err != nil {
		env.cleanup()
		return nil, err
	}

	env.obs = observability.NewServer("127.0.0.1:0", env.store.Ping, logger)
	if _, err := env.obs.Start(); err != nil {
		env.cleanup()
		return nil, err
	}

	svc, err := auth.NewService(env.store, hasher,
		auth.WithLogger(logger),
		auth.WithRecorder(env.obs.Metrics()),
	)
	if err != nil {
		env.cleanup()
		return nil, err
	}

	env.api, err = web.NewServer(web.Config{Addr: "127.0.0.1:0"}, svc,
		web.WithLogger(logger),
		web.WithRecorder(env.obs.Metrics()),
	)
	if err != nil {
		env.cleanup()
		return nil, err
	}
	if _, err := env.api.Start(); err != nil {
		env.cleanup()
		return nil, err
	}
	env.baseURL = "http://" + env.api.Addr()
	return env, nil
}

func (e *testEnv) cleanup() {
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if e.api != nil {
		_ = e.api.Stop(stopCtx)
	}
	if e.obs != nil {
		_ = e.obs.Stop(stopCtx)
	}
	if e.store != nil {
		_ = e.store.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(stopCtx)
	}
	e.cancel()
}

func (e *testEnv) post(path, body string) int {
	resp, err := http.Post(e.baseURL+path, "application/json", strings.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func (e *testEnv) readiness() int {
	resp, err := http.Get("http://" + e.obs.Addr() + "/healthz/readiness")
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode
}

func credentialScenario(backend string, start containerStarter) {
	Describe(backend+" backend", Ordered, func() {
		var env *testEnv

		BeforeAll(func() {
			var err error
			env, err = setupTestEnv(start)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterAll(func() {
			if env != nil {
				env.cleanup()
			}
		})

		It("reports ready once the store answers", func() {
			Expect(env.readiness()).To(Equal(http.StatusOK))
		})

		It("registers tcross", func() {
			Expect(env.post("/register", `{"username":"tcross","password":"s3cret"}`)).To(Equal(http.StatusCreated))
		})

		It("rejects a repeated registration", func() {
			Expect(env.post("/register", `{"username":"tcross","password":"s3cret"}`)).To(Equal(http.StatusBadRequest))
		})

		It("logs tcross in with the right password", func() {
			Expect(env.post("/login", `{"username":"tcross","password":"s3cret"}`)).To(Equal(http.StatusOK))
		})

		It("refuses the wrong password", func() {
			Expect(env.post("/login", `{"username":"tcross","password":"wrong"}`)).To(Equal(http.StatusUnauthorized))
		})

		It("reports an unknown user", func() {
			Expect(env.post("/login", `{"username":"nouser","password":"x"}`)).To(Equal(http.StatusBadRequest))
		})

		It("rejects malformed bodies", func() {
			Expect(env.post("/login", `{"username":"tcross"}`)).To(Equal(http.StatusBadRequest))
			Expect(env.post("/register", `not json`)).To(Equal(http.StatusBadRequest))
		})

		It("lets exactly one concurrent registration win", func() {
			const attempts = 12
			statuses := make(chan int, attempts)
			var wg sync.WaitGroup
			for range attempts {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					statuses <- env.post("/register", `{"username":"racer","password":"pw"}`)
				}()
			}
			wg.Wait()
			close(statuses)

			created := 0
			for status := range statuses {
				if status == http.StatusCreated {
					created++
				} else {
					Expect(status).To(Equal(http.StatusBadRequest))
				}
			}
			Expect(created).To(Equal(1))
			Expect(env.post("/login", `{"username":"racer","password":"pw"}`)).To(Equal(http.StatusOK))
		})

		It("answers 503 once the store is gone", func() {
			Expect(env.store.Close()).To(Succeed())
			Expect(env.post("/login", `{"username":"tcross","password":"s3cret"}`)).To(Equal(http.StatusServiceUnavailable))
			Expect(env.readiness()).To(Equal(http.StatusServiceUnavailable))
			env.store = nil
		})
	})
}

var _ = Describe("Credential API", func() {
	credentialScenario("redis", startRedis)
	credentialScenario("postgres", startPostgres)
})
