// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/vtufest/festreg/internal/auth"
	"github.com/vtufest/festreg/internal/auth/redisstore"
	"github.com/vtufest/festreg/internal/config"
	"github.com/vtufest/festreg/internal/logging"
	"github.com/vtufest/festreg/internal/observability"
	"github.com/vtufest/festreg/internal/store"
	"github.com/vtufest/festreg/pkg/errutil"
)

// readinessTimeout bounds the database ping behind /healthz/readiness.
const readinessTimeout = 2 * time.Second

// serveConfig holds flags specific to the serve command.
type serveConfig struct {
	migrate bool
}

// newServeCmd creates the serve subcommand. A nil deps uses the defaults.
func newServeCmd(deps *ServeDeps) *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API (/login, /register, /forgot-password,
/reset-password, /me), the metrics and health server, and the reset token
purge loop. SIGINT or SIGTERM shuts down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cfg, cmd, deps)
		},
	}

	cmd.Flags().BoolVar(&cfg.migrate, "migrate", false, "apply pending migrations before serving")

	return cmd
}

// shutdownCause remembers the first server failure.
type shutdownCause struct {
	mu     sync.Mutex
	server string
	err    error
}

func (c *shutdownCause) set(server string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.server, c.err = server, err
	}
}

func (c *shutdownCause) get() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return nil
	}
	return oops.Code("SERVER_FAILED").With("server", c.server).Wrap(c.err)
}

// runServeWithDeps runs the server until ctx is cancelled, a signal arrives,
// or a listener fails.
func runServeWithDeps(ctx context.Context, cfg *serveConfig, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps = deps.withDefaults()

	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.Setup(serviceName, version, conf.Log.Format, logging.ParseLevel(conf.Log.Level), cmd.ErrOrStderr())
	slog.SetDefault(logger)
	shutdownTracing := observability.InstallTracing()
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("error stopping tracer provider", "error", err)
		}
	}()

	if _, err := newSigner(conf); err != nil {
		errutil.LogError(ctx, logger, "invalid token signing configuration", err)
		return err
	}
	if conf.Database.URL == "" {
		return oops.Code(auth.CodeConfig).
			With("field", "database.url").
			Errorf("database.url or %s is required", config.EnvDatabaseURL)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.migrate {
		if err := applyMigrations(cmd, deps.MigratorFactory, conf.Database.URL); err != nil {
			return err
		}
	}

	pool, err := deps.PoolFactory(ctx, store.PoolConfig{
		URL:             conf.Database.URL,
		MaxConns:        conf.Database.MaxConns,
		ConnectAttempts: conf.Database.ConnectAttempts,
	}, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	backend, err := newAttemptStore(ctx, conf, deps)
	if err != nil {
		return err
	}
	defer backend.close()

	var (
		obsServer ObservabilityServer
		metrics   *observability.Metrics
	)
	if conf.Observability.Addr != "" {
		checks := observability.Checks{"database": store.PingCheck(pool, readinessTimeout)}
		if backend.ready != nil {
			checks["attempt_store"] = backend.ready
		}
		obsServer = deps.ObservabilityServerFactory(conf.Observability.Addr, checks, logger)
		metrics = obsServer.Metrics()
	}

	application, err := buildApp(conf, pool, backend.store, metrics, logger)
	if err != nil {
		return err
	}

	listener, err := deps.ListenerFactory("tcp", conf.HTTP.Addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", conf.HTTP.Addr).Wrap(err)
	}
	httpServer := &http.Server{
		Handler:           application.web,
		ReadTimeout:       conf.HTTP.ReadTimeout,
		ReadHeaderTimeout: conf.HTTP.ReadTimeout,
		WriteTimeout:      conf.HTTP.WriteTimeout,
	}

	cause := &shutdownCause{}
	apiErrChan := make(chan error, 1)
	go func() {
		defer close(apiErrChan)
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			apiErrChan <- serveErr
		}
	}()
	go monitorServerErrors(ctx, cancel, apiErrChan, "api", cause, logger)

	if obsServer != nil {
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), conf.HTTP.ShutdownTimeout)
			defer shutdownCancel()
			if stopErr := httpServer.Shutdown(shutdownCtx); stopErr != nil {
				logger.Warn("failed to stop API server during cleanup", "error", stopErr)
			}
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", conf.Observability.Addr).Wrap(startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", cause, logger)
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	var observer purgeObserver
	if metrics != nil {
		observer = metrics
	}
	purgeDone := make(chan struct{})
	go func() {
		defer close(purgeDone)
		runPurgeLoop(ctx, application.resets, conf.Auth.PurgeInterval, conf.Auth.ResetRetention, observer, logger)
	}()

	cmd.Printf("festreg listening on %s\n", listener.Addr())
	logger.Info("festreg ready",
		"addr", listener.Addr().String(),
		"attempt_store", conf.Auth.AttemptStore,
		"config", conf.Redacted(),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), conf.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping API server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
	<-purgeDone

	logger.Info("shutdown complete")
	return cause.get()
}

// attemptBackend is the configured lockout store with its readiness check.
// A nil store selects the PostgreSQL table, which the database check covers.
type attemptBackend struct {
	store auth.AttemptStore
	ready observability.Check
	close func()
}

// newAttemptStore connects the configured lockout backend.
func newAttemptStore(ctx context.Context, conf *config.Config, deps *ServeDeps) (*attemptBackend, error) {
	if conf.Auth.AttemptStore != config.AttemptStoreRedis {
		return &attemptBackend{close: func() {}}, nil
	}

	client := deps.RedisClientFactory(conf.Redis)
	closeClient := func() { _ = client.Close() }
	ping := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return oops.Code("REDIS_CONNECT_FAILED").With("addr", conf.Redis.Addr).Wrap(err)
		}
		return nil
	}

	if err := ping(ctx); err != nil {
		closeClient()
		return nil, err
	}

	attempts, err := redisstore.New(client)
	if err != nil {
		closeClient()
		return nil, err
	}
	return &attemptBackend{store: attempts, ready: ping, close: closeClient}, nil
}

// applyMigrations runs pending migrations for serve --migrate.
func applyMigrations(cmd *cobra.Command, factory func(string) (Migrator, error), databaseURL string) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = migrator.Close() }()

	cmd.Println("Running migrations...")
	if err := migrator.Up(); err != nil {
		return err
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

// monitorServerErrors watches a server's error channel and cancels the
// context when it reports a failure. A closed channel means a clean stop.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, cause *shutdownCause, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cause.set(serverName, err)
			cancel()
		}
	case <-ctx.Done():
	}
}
