// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authkv/authkv/internal/auth"
	"github.com/authkv/authkv/internal/config"
	"github.com/authkv/authkv/internal/logging"
	"github.com/authkv/authkv/internal/store"
	"github.com/authkv/authkv/internal/web"
)

// serviceName labels every log line.
const serviceName = "authkv"

// NewServeCmd creates the serve subcommand with all flags configured.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the credential API",
		Long: `Start the credential API. POST /register stores a new username and
password, POST /login checks one. Metrics and health probes are served on
a separate listener unless --metrics-addr is empty.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)
			return runServeWithDeps(cmd.Context(), cfg, cmd, ServeDeps{})
		},
	}

	addConfigFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps runs the service until a signal, a server failure or ctx
// cancellation, then drains both listeners.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps = deps.withDefaults()
	logger := slog.Default()

	if cfg.Store.AutoMigrate && cfg.IsPostgres() {
		if err := autoMigrate(cfg.Store.URL, deps.MigratorFactory, logger); err != nil {
			return err
		}
	}

	st, err := deps.StoreOpener(ctx, store.Options{
		URL:            cfg.Store.URL,
		PoolSize:       cfg.Store.PoolSize,
		AcquireTimeout: cfg.Store.AcquireTimeout,
		KeyPrefix:      cfg.Store.KeyPrefix,
		ConnectRetries: cfg.Store.ConnectAttempts - 1,
		ConnectBackoff: cfg.Store.ConnectBackoff,
		Logger:         logger,
	})
	if err != nil {
		return oops.With("operation", "open store").Wrap(err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Warn("error closing store", "error", closeErr)
		}
	}()

	hasher, err := auth.NewArgon2idHasher(cfg.Hasher)
	if err != nil {
		return oops.With("operation", "create hasher").Wrap(err)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	svcOpts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithConcealUnknownUsers(cfg.Auth.ConcealUnknownUsers),
	}
	apiOpts := []web.Option{web.WithLogger(logger)}

	// Start observability server if configured
	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, st.Ping, logger)
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			return oops.With("operation", "start observability server").Wrap(startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")

		if m := obsServer.Metrics(); m != nil {
			svcOpts = append(svcOpts, auth.WithRecorder(m))
			apiOpts = append(apiOpts, web.WithRecorder(m))
		}
	}

	shutdown := func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if obsServer != nil {
			if stopErr := obsServer.Stop(shutdownCtx); stopErr != nil {
				logger.Warn("error stopping observability server", "error", stopErr)
			}
		}
	}

	svc, err := auth.NewService(st, hasher, svcOpts...)
	if err != nil {
		shutdown()
		return oops.With("operation", "create credential service").Wrap(err)
	}

	apiServer, err := deps.APIServerFactory(web.Config{
		Addr:      cfg.Server.Addr,
		BodyLimit: cfg.Server.BodyLimit,
	}, svc, apiOpts...)
	if err != nil {
		shutdown()
		return oops.With("operation", "create api server").Wrap(err)
	}

	apiErrChan, err := apiServer.Start()
	if err != nil {
		shutdown()
		return oops.With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Printf("authkv listening on %s\n", apiServer.Addr())
	logger.Info("authkv ready",
		"addr", apiServer.Addr(),
		"store", cfg.Redacted().Store.URL,
	)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	// Stop accepting requests before closing the store.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	shutdown()

	logger.Info("shutdown complete")
	if cause := context.Cause(ctx); errors.Is(cause, errServerFailed) {
		return cause
	}
	return nil
}

// autoMigrate applies pending postgres migrations before the store opens.
func autoMigrate(databaseURL string, factory func(string) (Migrator, error), logger *slog.Logger) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
	}()

	pending, err := migrator.PendingMigrations()
	if err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	if len(pending) == 0 {
		logger.Debug("schema up to date")
		return nil
	}

	if err := migrator.Up(); err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	logger.Info("migrations applied", "count", len(pending))
	return nil
}

// errServerFailed marks a shutdown caused by a listener failing.
var errServerFailed = errors.New("server failed")

// monitorServerErrors cancels ctx when a server reports a serve failure.
// A closed channel means the server stopped normally.
func monitorServerErrors(ctx context.Context, cancel context.CancelCauseFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel(oops.Code("SERVER_FAILED").With("server", serverName).Wrap(errors.Join(errServerFailed, err)))
		}
	case <-ctx.Done():
	}
}
