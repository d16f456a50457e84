// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"

	"github.com/vtufest/festreg/internal/auth"
	"github.com/vtufest/festreg/internal/auth/postgres"
	"github.com/vtufest/festreg/internal/config"
	"github.com/vtufest/festreg/internal/observability"
	"github.com/vtufest/festreg/internal/token"
	"github.com/vtufest/festreg/internal/web"
)

// app is the wired credential stack behind the HTTP API.
type app struct {
	web          *web.Server
	signer       *token.Signer
	login        *auth.Service
	registration *auth.RegistrationService
	passwords    *auth.PasswordResetService
	resets       *auth.ResetTokenManager
}

// newSigner builds the session signer. A missing or short secret is a
// CONFIG_ERROR and aborts startup.
func newSigner(cfg *config.Config) (*token.Signer, error) {
	signer, err := token.NewSigner([]byte(cfg.Auth.JWTSecret), cfg.Auth.SessionTTL)
	if err != nil {
		return nil, oops.With("field", "auth.jwt_secret").Wrap(err)
	}
	return signer, nil
}

// credentialOptions returns common plus the default staff password, shared
// by the login and registration services so that seed and serve agree on
// which staff still hold the placeholder.
func credentialOptions(cfg *config.Config, hasher auth.PasswordHasher, common []auth.Option) ([]auth.Option, error) {
	opts := append([]auth.Option(nil), common...)
	password := cfg.Auth.DefaultStaffPassword
	if password == "" {
		return opts, nil
	}
	if minLength := hasher.MinLength(); len([]rune(password)) < minLength {
		return nil, oops.Code(auth.CodeConfig).
			With("field", "auth.default_staff_password").
			With("min_length", minLength).
			Errorf("default staff password must be at least %d characters", minLength)
	}
	return append(opts, auth.WithDefaultPassword(password)), nil
}

// buildApp wires repositories, services, and the HTTP server over pool.
// attempts selects the lockout backend; metrics may be nil.
func buildApp(
	cfg *config.Config,
	pool postgres.Pool,
	attempts auth.AttemptStore,
	metrics *observability.Metrics,
	logger *slog.Logger,
) (*app, error) {
	signer, err := newSigner(cfg)
	if err != nil {
		return nil, err
	}
	hasher, err := auth.NewBcryptHasher(cfg.Auth.BcryptCost, cfg.Auth.MinPasswordLength)
	if err != nil {
		return nil, oops.With("field", "auth.bcrypt_cost").Wrap(err)
	}

	common := []auth.Option{auth.WithLogger(logger)}
	if metrics != nil {
		common = append(common, auth.WithMetrics(metrics))
	}

	repoOpts := []postgres.Option{postgres.WithQueryTimeout(cfg.Database.QueryTimeout)}
	accounts := postgres.NewAccountRepository(pool, repoOpts...)
	colleges := postgres.NewCollegeRepository(pool, repoOpts...)
	resetRepo := postgres.NewResetTokenRepository(pool, repoOpts...)
	audit := postgres.NewAuditWriter(pool, repoOpts...)
	tx := postgres.NewTransactor(pool)
	if attempts == nil {
		attempts = postgres.NewAttemptStore(pool, repoOpts...)
	}

	limiter, err := auth.NewRateLimiter(attempts, cfg.RateLimitPolicy(), common...)
	if err != nil {
		return nil, err
	}
	resets, err := auth.NewResetTokenManager(resetRepo, hasher, tx, cfg.Auth.ResetTokenTTL, common...)
	if err != nil {
		return nil, err
	}
	credOpts, err := credentialOptions(cfg, hasher, common)
	if err != nil {
		return nil, err
	}
	login, err := auth.NewAuthService(accounts, hasher, limiter, resets, signer, credOpts...)
	if err != nil {
		return nil, err
	}
	registration, err := auth.NewRegistrationService(accounts, colleges, hasher, tx, audit, credOpts...)
	if err != nil {
		return nil, err
	}
	passwords, err := auth.NewPasswordResetService(accounts, resets, hasher, tx, audit,
		auth.NewLogNotifier(logger), append(append([]auth.Option(nil), common...), auth.WithAttemptReset(limiter))...)
	if err != nil {
		return nil, err
	}

	deps := web.Deps{
		Auth:         login,
		Registration: registration,
		Resets:       passwords,
		Verifier:     signer,
		Logger:       logger,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}
	if metrics != nil {
		deps.Metrics = metrics
	}
	server, err := web.NewServer(deps)
	if err != nil {
		return nil, err
	}

	return &app{
		web:          server,
		signer:       signer,
		login:        login,
		registration: registration,
		passwords:    passwords,
		resets:       resets,
	}, nil
}
