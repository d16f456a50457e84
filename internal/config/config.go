// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

// Package config loads festreg settings. Sources are applied in order of
// increasing precedence: built-in defaults, the YAML file, the environment,
// and command-line flags.
package config

import (
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/vtufest/festreg/internal/auth"
	"github.com/vtufest/festreg/internal/token"
)

// Attempt store backends.
const (
	AttemptStorePostgres = "postgres"
	AttemptStoreRedis    = "redis"
)

// Environment variables read by Load.
const (
	EnvDatabaseURL          = "DATABASE_URL"
	EnvJWTSecret            = "FESTREG_JWT_SECRET"
	EnvDefaultStaffPassword = "FESTREG_DEFAULT_STAFF_PASSWORD"
	EnvRedisPassword        = "FESTREG_REDIS_PASSWORD"
)

// Config is the complete runtime configuration.
type Config struct {
	HTTP          HTTPConfig          `koanf:"http" json:"http" yaml:"http"`
	Observability ObservabilityConfig `koanf:"observability" json:"observability" yaml:"observability"`
	Database      DatabaseConfig      `koanf:"database" json:"database" yaml:"database"`
	Redis         RedisConfig         `koanf:"redis" json:"redis" yaml:"redis"`
	Auth          AuthConfig          `koanf:"auth" json:"auth" yaml:"auth"`
	Log           LogConfig           `koanf:"log" json:"log" yaml:"log"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" json:"addr" yaml:"addr" jsonschema:"description=API listen address"`
	ReadTimeout     time.Duration `koanf:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" json:"max_body_bytes" yaml:"max_body_bytes" jsonschema:"minimum=1"`
}

// ObservabilityConfig configures the metrics and health listener.
type ObservabilityConfig struct {
	// Addr is the metrics/health address. Empty disables the server.
	Addr string `koanf:"addr" json:"addr" yaml:"addr" jsonschema:"description=metrics and health listen address; empty disables"`
}

// DatabaseConfig configures PostgreSQL access.
type DatabaseConfig struct {
	URL             string        `koanf:"url" json:"url" yaml:"url" jsonschema:"description=PostgreSQL connection URL (or DATABASE_URL)"`
	MaxConns        int32         `koanf:"max_conns" json:"max_conns" yaml:"max_conns" jsonschema:"minimum=1"`
	QueryTimeout    time.Duration `koanf:"query_timeout" json:"query_timeout" yaml:"query_timeout"`
	ConnectAttempts uint64        `koanf:"connect_attempts" json:"connect_attempts" yaml:"connect_attempts" jsonschema:"minimum=1"`
}

// RedisConfig configures the optional Redis attempt store.
type RedisConfig struct {
	Addr     string `koanf:"addr" json:"addr" yaml:"addr"`
	Password string `koanf:"password" json:"password" yaml:"password"`
	DB       int    `koanf:"db" json:"db" yaml:"db" jsonschema:"minimum=0"`
	// Timeout bounds dialing and each read or write.
	Timeout time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout" jsonschema:"description=dial/read/write timeout for each Redis call"`
}

// AuthConfig configures the credential lifecycle.
type AuthConfig struct {
	JWTSecret            string        `koanf:"jwt_secret" json:"jwt_secret" yaml:"jwt_secret" jsonschema:"description=HS256 signing secret (or FESTREG_JWT_SECRET)"`
	SessionTTL           time.Duration `koanf:"session_ttl" json:"session_ttl" yaml:"session_ttl"`
	BcryptCost           int           `koanf:"bcrypt_cost" json:"bcrypt_cost" yaml:"bcrypt_cost" jsonschema:"minimum=10,maximum=12"`
	MinPasswordLength    int           `koanf:"min_password_length" json:"min_password_length" yaml:"min_password_length" jsonschema:"minimum=1,maximum=72"`
	MaxAttempts          int           `koanf:"max_attempts" json:"max_attempts" yaml:"max_attempts" jsonschema:"minimum=1"`
	LockoutCooldown      time.Duration `koanf:"lockout_cooldown" json:"lockout_cooldown" yaml:"lockout_cooldown"`
	AttemptStore         string        `koanf:"attempt_store" json:"attempt_store" yaml:"attempt_store" jsonschema:"enum=postgres,enum=redis"`
	ResetTokenTTL        time.Duration `koanf:"reset_token_ttl" json:"reset_token_ttl" yaml:"reset_token_ttl"`
	ResetRetention       time.Duration `koanf:"reset_retention" json:"reset_retention" yaml:"reset_retention"`
	PurgeInterval        time.Duration `koanf:"purge_interval" json:"purge_interval" yaml:"purge_interval"`
	DefaultStaffPassword string        `koanf:"default_staff_password" json:"default_staff_password" yaml:"default_staff_password" jsonschema:"description=initial password for provisioned staff (or FESTREG_DEFAULT_STAFF_PASSWORD)"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format string `koanf:"format" json:"format" yaml:"format" jsonschema:"enum=json,enum=text"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Observability: ObservabilityConfig{Addr: "127.0.0.1:9100"},
		Database: DatabaseConfig{
			MaxConns:        10,
			QueryTimeout:    5 * time.Second,
			ConnectAttempts: 10,
		},
		Redis: RedisConfig{Addr: "127.0.0.1:6379", Timeout: 5 * time.Second},
		Auth: AuthConfig{
			SessionTTL:        token.DefaultSessionTTL,
			BcryptCost:        auth.DefaultBcryptCost,
			MinPasswordLength: auth.DefaultMinSecretLength,
			MaxAttempts:       auth.DefaultMaxAttempts,
			LockoutCooldown:   auth.DefaultCooldown,
			AttemptStore:      AttemptStorePostgres,
			ResetTokenTTL:     auth.DefaultResetTokenTTL,
			ResetRetention:    auth.DefaultResetRetention,
			PurgeInterval:     time.Hour,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"http-addr":          "http.addr",
	"metrics-addr":       "observability.addr",
	"database-url":       "database.url",
	"attempt-store":      "auth.attempt_store",
	"redis-addr":         "redis.addr",
	"log-level":          "log.level",
	"log-format":         "log.format",
	"bcrypt-cost":        "auth.bcrypt_cost",
	"session-ttl":        "auth.session_ttl",
	"reset-purge-period": "auth.purge_interval",
}

// RegisterFlags defines the flags Load understands on fs. Flag defaults are
// zero values; only flags set explicitly override lower sources.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", "", "API listen address")
	fs.String("metrics-addr", "", "metrics/health listen address")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("attempt-store", "", "login attempt store: postgres or redis")
	fs.String("redis-addr", "", "Redis address for the redis attempt store")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.String("log-format", "", "log format: json or text")
	fs.Int("bcrypt-cost", 0, "bcrypt work factor")
	fs.Duration("session-ttl", 0, "session token lifetime")
	fs.Duration("reset-purge-period", 0, "how often consumed and expired reset tokens are purged")
}

// Options controls Load.
type Options struct {
	// Path is the YAML file. Empty skips the file.
	Path string
	// Flags, when set, are applied last.
	Flags *pflag.FlagSet
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load builds a Config from opts and validates it.
func Load(opts Options) (*Config, error) {
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	k := koanf.New(".")

	if opts.Path != "" {
		data, err := os.ReadFile(opts.Path)
		if err != nil {
			return nil, oops.Code(auth.CodeConfig).With("path", opts.Path).Wrap(err)
		}
		if err := ValidateYAML(data); err != nil {
			return nil, oops.With("path", opts.Path).Wrap(err)
		}
		if err := k.Load(file.Provider(opts.Path), yaml.Parser()); err != nil {
			return nil, oops.Code(auth.CodeConfig).With("path", opts.Path).Wrap(err)
		}
	}

	for env, key := range map[string]string{
		EnvDatabaseURL:          "database.url",
		EnvJWTSecret:            "auth.jwt_secret",
		EnvDefaultStaffPassword: "auth.default_staff_password",
		EnvRedisPassword:        "redis.password",
	} {
		if v, ok := opts.LookupEnv(env); ok && v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, oops.Code(auth.CodeConfig).With("env", env).Wrap(err)
			}
		}
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code(auth.CodeConfig).With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code(auth.CodeConfig).Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that do not depend on external resources and
// reports the first violation. The signing secret and the database URL are
// checked by the commands that need them.
func (c *Config) Validate() error {
	var first error
	check := func(ok bool, field, msg string) {
		if !ok && first == nil {
			first = oops.Code(auth.CodeConfig).With("field", field).Errorf("%s", msg)
		}
	}

	check(c.HTTP.Addr != "", "http.addr", "http.addr is required")
	check(c.HTTP.MaxBodyBytes > 0, "http.max_body_bytes", "http.max_body_bytes must be positive")
	check(c.HTTP.ShutdownTimeout > 0, "http.shutdown_timeout", "http.shutdown_timeout must be positive")
	check(c.Database.MaxConns > 0, "database.max_conns", "database.max_conns must be positive")
	check(c.Database.QueryTimeout > 0, "database.query_timeout", "database.query_timeout must be positive")
	check(c.Auth.BcryptCost >= auth.MinBcryptCost && c.Auth.BcryptCost <= auth.MaxBcryptCost,
		"auth.bcrypt_cost", "auth.bcrypt_cost is out of range")
	check(c.Auth.MaxAttempts > 0, "auth.max_attempts", "auth.max_attempts must be positive")
	check(c.Auth.LockoutCooldown > 0, "auth.lockout_cooldown", "auth.lockout_cooldown must be positive")
	check(c.Auth.ResetTokenTTL > 0, "auth.reset_token_ttl", "auth.reset_token_ttl must be positive")
	check(c.Auth.PurgeInterval > 0, "auth.purge_interval", "auth.purge_interval must be positive")
	check(slices.Contains([]string{AttemptStorePostgres, AttemptStoreRedis}, c.Auth.AttemptStore),
		"auth.attempt_store", "auth.attempt_store must be postgres or redis")
	check(c.Auth.AttemptStore != AttemptStoreRedis || c.Redis.Addr != "",
		"redis.addr", "redis.addr is required for the redis attempt store")
	check(c.Auth.AttemptStore != AttemptStoreRedis || c.Redis.Timeout > 0,
		"redis.timeout", "redis.timeout must be positive for the redis attempt store")
	check(c.Log.Format == "json" || c.Log.Format == "text", "log.format", "log.format must be json or text")

	return first
}

// RateLimitPolicy returns the configured lockout policy.
func (c *Config) RateLimitPolicy() auth.RateLimitPolicy {
	return auth.RateLimitPolicy{MaxAttempts: c.Auth.MaxAttempts, Cooldown: c.Auth.LockoutCooldown}
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	for _, s := range []*string{&out.Auth.JWTSecret, &out.Auth.DefaultStaffPassword, &out.Redis.Password} {
		if *s != "" {
			*s = "[redacted]"
		}
	}
	if out.Database.URL != "" {
		out.Database.URL = redactURL(out.Database.URL)
	}
	return &out
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}
	return u.Redacted()
}
