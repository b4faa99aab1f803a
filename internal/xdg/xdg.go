// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

// Package xdg provides XDG Base Directory paths for CodeWatch.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "codewatch"

// ConfigDir returns the XDG config directory for codewatch.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultConfigFile returns the default config file path inside
// ConfigDir.
func DefaultConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
