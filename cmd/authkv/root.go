// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/authkv/authkv/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the authkv CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authkv",
		Short: "authkv - username/password credential service",
		Long: `authkv registers and checks username/password credentials over HTTP.
Passwords are stored as argon2id encodings in a pooled redis or postgres
key/value store.`,
		SilenceUsage: true,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewHashCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}

// addConfigFlags registers the flags that override configuration keys.
// Every flag here must have an entry in config.FlagKeys.
func addConfigFlags(fs *pflag.FlagSet) {
	d := config.Default()
	fs.String("addr", d.Server.Addr, "API listen address")
	fs.String("store", d.Store.URL, "store URL (redis://, rediss://, postgres://, memory://)")
	fs.Int("pool-size", d.Store.PoolSize, "store connection pool size")
	fs.Bool("auto-migrate", d.Store.AutoMigrate, "apply postgres migrations on startup")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics and health listen address (empty disables)")
	fs.String("log-format", d.Log.Format, "log format (json, text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
}

// loadConfig reads the configuration for cmd, honoring --config, the
// environment and any changed flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.LoadOptions{
		File:  configFile,
		Flags: cmd.Flags(),
	})
}
