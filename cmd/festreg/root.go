// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package main

import (
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/vtufest/festreg/internal/auth"
	"github.com/vtufest/festreg/internal/config"
	"github.com/vtufest/festreg/internal/xdg"
)

// serviceName labels log records and metrics.
const serviceName = "festreg"

// NewRootCmd creates the root command for the festreg CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "festreg",
		Short: "FestReg - festival registration authentication service",
		Long: `FestReg authenticates students and staff for the festival
registration desk: login with lockout, student registration, password
reset, and session tokens.`,
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	addGlobalFlags(cmd)

	cmd.AddCommand(newServeCmd(nil))
	cmd.AddCommand(newMigrateCmd(nil))
	cmd.AddCommand(newSeedCmd(nil))
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// addGlobalFlags registers --config and the config override flags on cmd
// so every subcommand inherits them.
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "config file path (default $XDG_CONFIG_HOME/festreg/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Printf("festreg %s\n", versionString())
			return nil
		},
	}
}

// loadConfig reads the --config file and any config flags registered on cmd.
// Without --config the XDG config file is used when present.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path == "" {
		if path, err = xdg.FindConfigFile(); err != nil {
			return nil, oops.Code(auth.CodeConfig).With("operation", "locate config file").Wrap(err)
		}
	}
	return config.Load(config.Options{Path: path, Flags: cmd.Flags()})
}
