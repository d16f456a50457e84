// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vtufest/festreg/internal/auth"
	"github.com/vtufest/festreg/internal/auth/postgres"
	"github.com/vtufest/festreg/internal/config"
	"github.com/vtufest/festreg/internal/logging"
	"github.com/vtufest/festreg/internal/store"
	"github.com/vtufest/festreg/pkg/errutil"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	file    string
	timeout time.Duration
}

// SeedFile is the YAML document read by festreg seed.
type SeedFile struct {
	Colleges []SeedCollege `yaml:"colleges"`
	Staff    []SeedStaff   `yaml:"staff"`
}

// SeedCollege is one tenant. Active defaults to true.
type SeedCollege struct {
	Code   string `yaml:"code"`
	Name   string `yaml:"name"`
	Active *bool  `yaml:"active"`
}

// SeedStaff is one staff account. College is a college code and is required
// for college-bound roles.
type SeedStaff struct {
	Name    string `yaml:"name"`
	Email   string `yaml:"email"`
	Phone   string `yaml:"phone"`
	Role    string `yaml:"role"`
	College string `yaml:"college"`
}

// collegeUpserter is the part of the college repository seeding needs.
type collegeUpserter interface {
	Upsert(ctx context.Context, college *auth.College) error
}

// staffRegistrar creates staff accounts.
type staffRegistrar interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.Account, error)
}

// seedResult counts what a seed run did.
type seedResult struct {
	Colleges     int
	StaffCreated int
	StaffSkipped int
}

// newSeedCmd creates the seed subcommand. A nil deps uses the defaults.
func newSeedCmd(deps *SeedDeps) *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load colleges and staff accounts",
		Long: `Upserts colleges and creates staff accounts from a YAML file.
Staff receive the configured default password and must change it at first
login. This command is idempotent - existing staff accounts are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, cfg, deps.withDefaults())
		},
	}

	cmd.Flags().StringVar(&cfg.file, "file", "seed.yaml", "seed file path")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")

	return cmd
}

// parseSeedFile decodes and checks a seed document. Unknown keys are errors.
func parseSeedFile(r io.Reader) (*SeedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var data SeedFile
	if err := dec.Decode(&data); err != nil && !errors.Is(err, io.EOF) {
		return nil, oops.Code("SEED_INVALID").With("stage", "parse").Wrap(err)
	}

	codes := make(map[string]bool, len(data.Colleges))
	for i, c := range data.Colleges {
		code := strings.TrimSpace(c.Code)
		if code == "" || strings.TrimSpace(c.Name) == "" {
			return nil, oops.Code("SEED_INVALID").With("college", i).Errorf("college code and name are required")
		}
		if codes[code] {
			return nil, oops.Code("SEED_INVALID").With("college", code).Errorf("college code is listed twice")
		}
		codes[code] = true
	}
	for i, s := range data.Staff {
		if !auth.Role(s.Role).IsStaff() {
			return nil, oops.Code("SEED_INVALID").With("staff", i).With("role", s.Role).Errorf("not a staff role")
		}
		if s.College != "" && !codes[s.College] {
			return nil, oops.Code("SEED_INVALID").With("staff", i).With("college", s.College).Errorf("college is not defined in this file")
		}
	}
	return &data, nil
}

func runSeed(cmd *cobra.Command, cfg *seedConfig, deps *SeedDeps) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.Setup(serviceName, version, conf.Log.Format, logging.ParseLevel(conf.Log.Level), cmd.ErrOrStderr())

	raw, err := os.ReadFile(cfg.file)
	if err != nil {
		return oops.Code("SEED_INVALID").With("path", cfg.file).Wrap(err)
	}
	data, err := parseSeedFile(bytes.NewReader(raw))
	if err != nil {
		return oops.With("path", cfg.file).Wrap(err)
	}

	if conf.Database.URL == "" {
		return oops.Code(auth.CodeConfig).
			With("field", "database.url").
			Errorf("database.url or %s is required", config.EnvDatabaseURL)
	}
	if len(data.Staff) > 0 && conf.Auth.DefaultStaffPassword == "" {
		return oops.Code(auth.CodeConfig).
			With("field", "auth.default_staff_password").
			Errorf("auth.default_staff_password or %s is required to seed staff", config.EnvDefaultStaffPassword)
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	cmd.Println("Connecting to database...")
	pool, err := deps.PoolFactory(ctx, store.PoolConfig{
		URL:             conf.Database.URL,
		MaxConns:        conf.Database.MaxConns,
		ConnectAttempts: conf.Database.ConnectAttempts,
	}, logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	repoOpts := []postgres.Option{postgres.WithQueryTimeout(conf.Database.QueryTimeout)}
	colleges := postgres.NewCollegeRepository(pool, repoOpts...)
	registrar, err := newSeedRegistrar(conf, pool, repoOpts, logger)
	if err != nil {
		return err
	}

	result, err := seedDatabase(ctx, cmd, data, colleges, registrar)
	if err != nil {
		return err
	}
	cmd.Printf("Seeding complete: %d colleges, %d staff created, %d staff skipped\n",
		result.Colleges, result.StaffCreated, result.StaffSkipped)
	return nil
}

func newSeedRegistrar(conf *config.Config, pool postgres.Pool, repoOpts []postgres.Option, logger *slog.Logger) (*auth.RegistrationService, error) {
	hasher, err := auth.NewBcryptHasher(conf.Auth.BcryptCost, conf.Auth.MinPasswordLength)
	if err != nil {
		return nil, err
	}
	opts, err := credentialOptions(conf, hasher, []auth.Option{auth.WithLogger(logger)})
	if err != nil {
		return nil, err
	}
	return auth.NewRegistrationService(
		postgres.NewAccountRepository(pool, repoOpts...),
		postgres.NewCollegeRepository(pool, repoOpts...),
		hasher,
		postgres.NewTransactor(pool),
		postgres.NewAuditWriter(pool, repoOpts...),
		opts...,
	)
}

// seedDatabase upserts colleges, then creates staff. Staff that already
// exist are reported and skipped.
func seedDatabase(ctx context.Context, cmd *cobra.Command, data *SeedFile, colleges collegeUpserter, registrar staffRegistrar) (*seedResult, error) {
	result := &seedResult{}
	ids := make(map[string]int64, len(data.Colleges))

	for _, c := range data.Colleges {
		college := &auth.College{
			Code:   strings.TrimSpace(c.Code),
			Name:   strings.TrimSpace(c.Name),
			Active: c.Active == nil || *c.Active,
		}
		if err := colleges.Upsert(ctx, college); err != nil {
			return nil, oops.Code("SEED_FAILED").
				With("operation", "upsert college").
				With("college", college.Code).
				Wrap(err)
		}
		ids[college.Code] = college.ID
		result.Colleges++
		cmd.Printf("College %s: %s\n", college.Code, college.Name)
	}

	for _, s := range data.Staff {
		req := auth.RegisterRequest{
			Kind:  auth.KindStaff,
			Name:  s.Name,
			Email: s.Email,
			Phone: s.Phone,
			Role:  auth.Role(s.Role),
		}
		if s.College != "" {
			id := ids[s.College]
			req.CollegeID = &id
		}

		account, err := registrar.Register(ctx, req)
		switch {
		case err == nil:
			result.StaffCreated++
			cmd.Printf("Created staff account %s (%s)\n", account.Identifier, account.Role)
		case errutil.Code(err) == auth.CodeDuplicateAccount:
			result.StaffSkipped++
			cmd.Printf("Staff account %s already exists, skipping\n", strings.ToLower(strings.TrimSpace(s.Email)))
		default:
			return nil, oops.Code("SEED_FAILED").
				With("operation", "create staff account").
				With("email", s.Email).
				Wrap(err)
		}
	}

	return result, nil
}
