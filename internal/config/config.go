// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

// Package config loads and validates CodeWatch configuration from a
// yaml file layered under command-line flags.
package config

import (
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// PlaceholderSecret is the value shipped in example configs. Startup
// refuses to run with it.
const PlaceholderSecret = "change-me-to-a-random-value"

// MinSecretLength is the minimum accepted signing secret length.
const MinSecretLength = 32

// Config is the full CodeWatch configuration tree.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds listen addresses.
type ServerConfig struct {
	HTTPAddr    string `koanf:"http_addr"`
	StreamAddr  string `koanf:"stream_addr"`
	MetricsAddr string `koanf:"metrics_addr"` // empty = disabled
}

// DatabaseConfig holds the credential store connection settings.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// AuthConfig holds token and hashing settings.
type AuthConfig struct {
	SigningSecret        string `koanf:"signing_secret"`
	SigningAlgorithm     string `koanf:"signing_algorithm"`
	TokenLifetimeMinutes int    `koanf:"token_lifetime_minutes"`
	HashWorkers          int    `koanf:"hash_workers"`
}

// TokenLifetime returns the token lifetime as a duration.
func (a AuthConfig) TokenLifetime() time.Duration {
	return time.Duration(a.TokenLifetimeMinutes) * time.Minute
}

// RateLimitConfig holds the per-flow attempt policies.
type RateLimitConfig struct {
	RegisterIPMax           int `koanf:"register_ip_max"`
	RegisterIPWindowMinutes int `koanf:"register_ip_window_minutes"`
	LoginIPMax              int `koanf:"login_ip_max"`
	LoginIPWindowMinutes    int `koanf:"login_ip_window_minutes"`
	LoginUserMax            int `koanf:"login_user_max"`
	LoginUserWindowMinutes  int `koanf:"login_user_window_minutes"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Format string `koanf:"format"` // "json" or "text"
}

// Default returns the built-in configuration. Everything except the
// signing secret and database URL has a usable default.
func Default() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddr:    ":9000",
			StreamAddr:  ":9100",
			MetricsAddr: "127.0.0.1:9101",
		},
		Auth: AuthConfig{
			SigningAlgorithm:     "HS256",
			TokenLifetimeMinutes: 30,
			HashWorkers:          4,
		},
		RateLimit: RateLimitConfig{
			RegisterIPMax:           3,
			RegisterIPWindowMinutes: 60,
			LoginIPMax:              5,
			LoginIPWindowMinutes:    15,
			LoginUserMax:            3,
			LoginUserWindowMinutes:  15,
		},
		Logging: LoggingConfig{
			Format: "json",
		},
	}
}

// Load builds a Config from defaults, then the yaml file at path (if
// non-empty), then any set flags. The result is not validated; call
// Validate before use.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "load flags").
				Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").
			With("operation", "unmarshal").
			Wrap(err)
	}

	return cfg, nil
}

var validAlgorithms = map[string]struct{}{
	"HS256": {},
	"HS384": {},
	"HS512": {},
}

// Validate checks the configuration, failing fast on anything the
// server cannot safely start with. Secret material never appears in
// the returned errors.
func (c Config) Validate() error {
	if c.Auth.SigningSecret == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("auth.signing_secret must be set")
	}
	if c.Auth.SigningSecret == PlaceholderSecret {
		return oops.Code("CONFIG_INVALID").
			Errorf("auth.signing_secret is still the placeholder value; generate a random secret")
	}
	if len(c.Auth.SigningSecret) < MinSecretLength {
		return oops.Code("CONFIG_INVALID").
			With("min_length", MinSecretLength).
			Errorf("auth.signing_secret must be at least %d characters", MinSecretLength)
	}
	if _, ok := validAlgorithms[c.Auth.SigningAlgorithm]; !ok {
		return oops.Code("CONFIG_INVALID").
			With("algorithm", c.Auth.SigningAlgorithm).
			Errorf("auth.signing_algorithm must be one of HS256, HS384, HS512")
	}
	if c.Auth.TokenLifetimeMinutes <= 0 {
		return oops.Code("CONFIG_INVALID").
			Errorf("auth.token_lifetime_minutes must be positive")
	}
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("database.url must be set")
	}
	if c.Server.HTTPAddr == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("server.http_addr must be set")
	}
	if c.Server.StreamAddr == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("server.stream_addr must be set")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return oops.Code("CONFIG_INVALID").
			With("format", c.Logging.Format).
			Errorf("logging.format must be json or text")
	}
	return nil
}
