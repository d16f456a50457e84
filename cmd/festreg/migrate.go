// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/vtufest/festreg/internal/auth"
	"github.com/vtufest/festreg/internal/config"
	"github.com/vtufest/festreg/internal/store"
)

// newMigrateCmd creates the migrate command group. A nil deps uses the defaults.
func newMigrateCmd(deps *MigrateDeps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
		Long: `Apply, roll back, and inspect the embedded PostgreSQL schema
migrations. The database URL comes from --database-url, the config file,
or DATABASE_URL.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				cmd.Println("Running migrations...")
				if err := m.Up(); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	})

	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Long:  `Roll back the most recent migration, or every migration with --all.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				var err error
				if all {
					cmd.Println("Rolling back all migrations...")
					err = m.Down()
				} else {
					cmd.Println("Rolling back one migration...")
					err = m.Steps(-1)
				}
				if err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	}
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")
	cmd.AddCommand(down)

	var jsonOutput bool
	status := &cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				st, err := m.Status()
				if err != nil {
					return err
				}
				if jsonOutput {
					data, err := json.MarshalIndent(st, "", "  ")
					if err != nil {
						return oops.Code("MIGRATION_STATUS_FAILED").Wrap(err)
					}
					cmd.Println(string(data))
					return nil
				}
				cmd.Print(formatMigrationStatus(st))
				return nil
			})
		},
	}
	status.Flags().BoolVar(&jsonOutput, "json", false, "output status as JSON")
	cmd.AddCommand(status)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				return printVersion(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Set the recorded schema version and clear the dirty flag. Use
after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").With("version", args[0]).Wrap(err)
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	})

	return cmd
}

// withMigrator opens a migrator for the configured database, runs fn, and
// closes it.
func withMigrator(cmd *cobra.Command, deps *MigrateDeps, fn func(Migrator) error) (err error) {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if conf.Database.URL == "" {
		return oops.Code(auth.CodeConfig).
			With("field", "database.url").
			Errorf("database.url or %s is required", config.EnvDatabaseURL)
	}

	m, err := deps.MigratorFactory(conf.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(m)
}

func printVersion(cmd *cobra.Command, m Migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	cmd.Println(formatVersion(v, dirty))
	return nil
}

func formatVersion(v uint, dirty bool) string {
	if v == 0 {
		return "Schema version: none"
	}
	name, _ := store.MigrationName(v)
	out := fmt.Sprintf("Schema version: %d", v)
	if name != "" {
		out += " (" + name + ")"
	}
	if dirty {
		out += " [dirty]"
	}
	return out
}

// formatMigrationStatus renders st as a table.
func formatMigrationStatus(st *store.MigrationStatus) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "VERSION\tNAME\tSTATE")
	_, _ = fmt.Fprintln(w, "-------\t----\t-----")
	for _, mig := range st.Applied {
		state := "applied"
		if st.Dirty && mig.Version == st.Version {
			state = "dirty"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", mig.Version, mig.Name, state)
	}
	for _, mig := range st.Pending {
		_, _ = fmt.Fprintf(w, "%d\t%s\tpending\n", mig.Version, mig.Name)
	}

	_ = w.Flush()
	return string(buf)
}
