// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

// Package config loads the authkv configuration.
//
// Sources are layered, later ones winning: built-in defaults, a YAML file,
// AUTHKV_* environment variables and command-line flags. In environment
// variable names a double underscore separates nesting levels, so
// AUTHKV_STORE__POOL_SIZE sets store.pool_size.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/labstack/gommon/bytes"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/authkv/authkv/internal/auth"
	"github.com/authkv/authkv/internal/logging"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "AUTHKV_"

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server" yaml:"server"`
	Store   StoreConfig   `koanf:"store" yaml:"store"`
	Hasher  auth.Params   `koanf:"hasher" yaml:"hasher"`
	Auth    AuthConfig    `koanf:"auth" yaml:"auth"`
	Metrics MetricsConfig `koanf:"metrics" yaml:"metrics"`
	Log     LogConfig     `koanf:"log" yaml:"log"`
}

// ServerConfig configures the credential API listener.
type ServerConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr"`
	BodyLimit       string        `koanf:"body_limit" yaml:"body_limit"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StoreConfig configures the credential store and its pool.
type StoreConfig struct {
	URL             string        `koanf:"url" yaml:"url"`
	PoolSize        int           `koanf:"pool_size" yaml:"pool_size"`
	AcquireTimeout  time.Duration `koanf:"acquire_timeout" yaml:"acquire_timeout"`
	KeyPrefix       string        `koanf:"key_prefix" yaml:"key_prefix"`
	ConnectAttempts uint64        `koanf:"connect_attempts" yaml:"connect_attempts"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff" yaml:"connect_backoff"`
	AutoMigrate     bool          `koanf:"auto_migrate" yaml:"auto_migrate"`
}

// AuthConfig configures the credential service.
type AuthConfig struct {
	ConcealUnknownUsers bool `koanf:"conceal_unknown_users" yaml:"conceal_unknown_users"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "0.0.0.0:3030",
			BodyLimit:       "4KiB",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			URL:             "redis://127.0.0.1/",
			PoolSize:        16,
			AcquireTimeout:  2 * time.Second,
			ConnectAttempts: 5,
			ConnectBackoff:  500 * time.Millisecond,
		},
		Hasher: auth.DefaultParams(),
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9100",
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
	}
}

// defaultValues flattens Default into koanf keys.
func defaultValues() map[string]any {
	d := Default()
	return map[string]any{
		"server.addr":                d.Server.Addr,
		"server.body_limit":          d.Server.BodyLimit,
		"server.shutdown_timeout":    d.Server.ShutdownTimeout,
		"store.url":                  d.Store.URL,
		"store.pool_size":            d.Store.PoolSize,
		"store.acquire_timeout":      d.Store.AcquireTimeout,
		"store.key_prefix":           d.Store.KeyPrefix,
		"store.connect_attempts":     d.Store.ConnectAttempts,
		"store.connect_backoff":      d.Store.ConnectBackoff,
		"store.auto_migrate":         d.Store.AutoMigrate,
		"hasher.memory":              d.Hasher.Memory,
		"hasher.iterations":          d.Hasher.Iterations,
		"hasher.threads":             d.Hasher.Threads,
		"hasher.salt_length":         d.Hasher.SaltLength,
		"hasher.key_length":          d.Hasher.KeyLength,
		"auth.conceal_unknown_users": d.Auth.ConcealUnknownUsers,
		"metrics.addr":               d.Metrics.Addr,
		"log.format":                 d.Log.Format,
		"log.level":                  d.Log.Level,
	}
}

// LoadOptions select the sources Load reads beyond the defaults.
type LoadOptions struct {
	// File is a YAML file path. Empty skips the file layer.
	File string

	// Flags are applied last. Flag names map to keys through FlagKeys;
	// flags without a mapping are ignored.
	Flags *pflag.FlagSet

	// Environ supplies environment variables. Defaults to os.Environ.
	Environ func() []string
}

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"addr":         "server.addr",
	"store":        "store.url",
	"pool-size":    "store.pool_size",
	"auto-migrate": "store.auto_migrate",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// Load builds and validates the configuration.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaultValues() {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "load config file").
				With("file", opts.File).
				Wrap(err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
		EnvironFunc:   opts.Environ,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "load environment").Wrap(err)
	}

	if opts.Flags != nil {
		flagProvider := posflag.ProviderWithValue(opts.Flags, ".", k, func(name, value string) (string, any) {
			return FlagKeys[name], value
		})
		if err := k.Load(flagProvider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "load flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode config").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns AUTHKV_STORE__POOL_SIZE into store.pool_size.
func envKey(k, v string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
	return strings.ReplaceAll(key, "__", "."), v
}

func invalid(field string, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf(format, args...)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return invalid("server.addr", "server address is required")
	}
	if _, err := bytes.Parse(c.Server.BodyLimit); err != nil {
		return invalid("server.body_limit", "invalid body limit %q", c.Server.BodyLimit)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return invalid("server.shutdown_timeout", "shutdown timeout must be positive")
	}

	u, err := url.Parse(c.Store.URL)
	if err != nil || u.Scheme == "" {
		return invalid("store.url", "invalid store url")
	}
	switch u.Scheme {
	case "redis", "rediss", "postgres", "postgresql", "memory":
	default:
		return invalid("store.url", "unsupported store scheme %q", u.Scheme)
	}
	if c.Store.PoolSize <= 0 {
		return invalid("store.pool_size", "pool size must be positive")
	}
	if c.Store.AcquireTimeout <= 0 {
		return invalid("store.acquire_timeout", "acquire timeout must be positive")
	}
	if c.Store.ConnectAttempts == 0 {
		return invalid("store.connect_attempts", "at least one connect attempt is required")
	}

	if err := c.Hasher.Validate(); err != nil {
		return invalid("hasher", "invalid hasher parameters: %v", err)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format", "log format must be json or text, got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "%v", err)
	}
	return nil
}

// IsPostgres reports whether the store URL selects the postgres backend.
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.Store.URL, "postgres://") || strings.HasPrefix(c.Store.URL, "postgresql://")
}

// Redacted returns a copy safe to print: the store password is masked.
func (c Config) Redacted() Config {
	if u, err := url.Parse(c.Store.URL); err == nil {
		c.Store.URL = u.Redacted()
	}
	return c
}

// YAML renders the redacted configuration.
func (c Config) YAML() ([]byte, error) {
	out, err := yamlv3.Marshal(c.Redacted())
	if err != nil {
		return nil, oops.Code("CONFIG_MARSHAL_FAILED").Wrap(err)
	}
	return out, nil
}
