// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/codewatch/codewatch/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// resolveConfigFile returns the --config value, or the XDG default
// config file when it exists, or "" for defaults-only.
func resolveConfigFile() string {
	if configFile != "" {
		return configFile
	}
	path := xdg.DefaultConfigFile()
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// NewRootCmd creates the root command for the CodeWatch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codewatch",
		Short: "CodeWatch - coding-session monitoring platform",
		Long: `CodeWatch is the identity and access-control layer of a real-time
coding-session monitoring platform: proctors watch, participants stream
editor events from their sessions.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}
