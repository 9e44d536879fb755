// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the bridgectl command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/authbridge/authbridge/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "bridgectl",
	DisableAutoGenTag: true,
	Short:             "bridgectl inspects and exercises upstream identity provider configurations",
	Long: `bridgectl is the operator tool for the authbridge identity federation engine.

It loads the same source configuration the engine runs with and lets an
operator validate it, fetch and check a provider's OIDC discovery document,
and generate authorization URLs for manual end-to-end testing of a source.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the bridgectl CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the sources configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newDiscoveryCmd())
	rootCmd.AddCommand(newAuthorizeURLCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true

	return rootCmd
}
