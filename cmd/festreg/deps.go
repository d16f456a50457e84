// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/redis/go-redis/v9"

	"github.com/vtufest/festreg/internal/auth/postgres"
	"github.com/vtufest/festreg/internal/config"
	"github.com/vtufest/festreg/internal/observability"
	"github.com/vtufest/festreg/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory opens the database pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, cfg store.PoolConfig, logger *slog.Logger) (Pool, error)

	// MigratorFactory opens a migrator for --migrate.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// RedisClientFactory creates the client for the redis attempt store.
	// Default: redis.NewClient
	RedisClientFactory func(cfg config.RedisConfig) redis.UniversalClient

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, checks observability.Checks, logger *slog.Logger) ObservabilityServer

	// ListenerFactory binds the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	// MigratorFactory opens a migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// SeedDeps contains injectable dependencies for the seed command.
type SeedDeps struct {
	// PoolFactory opens the database pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, cfg store.PoolConfig, logger *slog.Logger) (Pool, error)
}

// Pool wraps the methods used from *pgxpool.Pool.
type Pool interface {
	postgres.Pool
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Status() (*store.MigrationStatus, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

func defaultPoolFactory(ctx context.Context, cfg store.PoolConfig, logger *slog.Logger) (Pool, error) {
	pool, err := store.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func defaultMigratorFactory(databaseURL string) (Migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func defaultRedisClientFactory(cfg config.RedisConfig) redis.UniversalClient {
	return redis.NewClient(redisOptions(cfg))
}

// redisOptions applies redis.timeout to every phase of a call so a stalled
// Redis fails a login within the same bound as a stalled database query.
func redisOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
}

func defaultObservabilityServerFactory(addr string, checks observability.Checks, logger *slog.Logger) ObservabilityServer {
	return observability.NewServer(addr, checks, logger)
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = defaultPoolFactory
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = defaultMigratorFactory
	}
	if out.RedisClientFactory == nil {
		out.RedisClientFactory = defaultRedisClientFactory
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = defaultObservabilityServerFactory
	}
	if out.ListenerFactory == nil {
		out.ListenerFactory = net.Listen
	}
	return &out
}

func (d *MigrateDeps) withDefaults() *MigrateDeps {
	out := MigrateDeps{}
	if d != nil {
		out = *d
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = defaultMigratorFactory
	}
	return &out
}

func (d *SeedDeps) withDefaults() *SeedDeps {
	out := SeedDeps{}
	if d != nil {
		out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = defaultPoolFactory
	}
	return &out
}
