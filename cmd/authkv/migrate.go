// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authkv/authkv/internal/config"
	"github.com/authkv/authkv/internal/store"
)

// migrateConfig holds configuration for the migrate command.
type migrateConfig struct {
	confirmDown bool
	factory     func(databaseURL string) (Migrator, error)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cfg := &migrateConfig{
		factory: func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		},
	}

	cmd := &cobra.Command{
		Use:   "migrate [up|down|version]",
		Short: "Manage the postgres credential schema",
		Long: `Manage the credential table of the postgres backend.

  up       apply pending migrations (default)
  down     drop the credential table; requires --yes
  version  print the applied schema version

Redis and memory stores have no schema and are rejected.`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			appCfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runMigrate(cmd, appCfg, action, cfg)
		},
	}

	d := config.Default()
	cmd.Flags().String("store", d.Store.URL, "postgres store URL")
	cmd.Flags().BoolVar(&cfg.confirmDown, "yes", false, "confirm dropping the schema with down")

	return cmd
}

func runMigrate(cmd *cobra.Command, appCfg *config.Config, action string, cfg *migrateConfig) error {
	if !appCfg.IsPostgres() {
		return oops.Code("CONFIG_INVALID").
			With("store", appCfg.Redacted().Store.URL).
			Errorf("migrate requires a postgres store url")
	}
	if action == "down" && !cfg.confirmDown {
		return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down deletes every credential; rerun with --yes")
	}

	cmd.Println("Connecting to database...")
	migrator, err := cfg.factory(appCfg.Store.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			cmd.PrintErrf("warning: closing migrator: %v\n", closeErr)
		}
	}()

	switch action {
	case "version":
		v, dirty, err := migrator.Version()
		if err != nil {
			return err
		}
		if dirty {
			cmd.Printf("Schema version: %d (dirty)\n", v)
		} else {
			cmd.Printf("Schema version: %d\n", v)
		}
		return nil

	case "down":
		cmd.Println("Rolling back migrations...")
		if err := migrator.Down(); err != nil {
			return oops.With("operation", "roll back migrations").Wrap(err)
		}
		cmd.Println("Schema dropped")
		return nil

	default:
		pending, err := migrator.PendingMigrations()
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			cmd.Println("Schema is up to date")
			return nil
		}
		cmd.Printf("Applying %d migration(s)...\n", len(pending))
		if err := migrator.Up(); err != nil {
			return oops.With("operation", "run migrations").Wrap(err)
		}
		cmd.Println("Migrations completed successfully")
		return nil
	}
}
