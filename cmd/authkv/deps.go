// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/authkv/authkv/internal/observability"
	"github.com/authkv/authkv/internal/store"
	"github.com/authkv/authkv/internal/web"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreOpener connects to the credential store.
	// Default: store.Open
	StoreOpener func(ctx context.Context, opts store.Options) (store.Store, error)

	// MigratorFactory creates a schema migrator for a postgres URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, checker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// APIServerFactory creates the credential API server.
	// Default: web.NewServer
	APIServerFactory func(cfg web.Config, svc web.CredentialService, opts ...web.Option) (APIServer, error)
}

// withDefaults fills nil factories with the production implementations.
func (d ServeDeps) withDefaults() ServeDeps {
	if d.StoreOpener == nil {
		d.StoreOpener = store.Open
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, checker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, checker, logger)
		}
	}
	if d.APIServerFactory == nil {
		d.APIServerFactory = func(cfg web.Config, svc web.CredentialService, opts ...web.Option) (APIServer, error) {
			return web.NewServer(cfg, svc, opts...)
		}
	}
	return d
}

// Migrator interface wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	PendingMigrations() ([]uint, error)
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// APIServer interface wraps the methods used from web.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
