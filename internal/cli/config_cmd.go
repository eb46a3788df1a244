// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orphion/orphion/internal/config"
)

func newConfigCommand(flags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long: `View and modify the configuration file (~/.orphion/config.toml).

Keys use dot notation; run "orphion config keys" for the full list.
Environment variables (ORPHION_API_KEY, ORPHION_MODEL, ...) override the
file but are never written to it.

Examples:
  orphion config show
  orphion config set inference.model anthropic/claude-3.5-sonnet
  orphion config set storage.backend sqlite
  orphion config get ui.code_style`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration (keys redacted)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(*flags)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				path, err := configFilePath(flags)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "keys",
			Short: "List settable keys",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				for _, k := range config.Keys() {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one effective value",
			Args:  exactArgs(1, "orphion config get inference.model"),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(*flags)
				if err != nil {
					return err
				}
				v, err := cfg.Redacted().Get(args[0])
				if err != nil {
					return &UsageError{Reason: err.Error(), Example: "orphion config keys"}
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Write one value to the configuration file",
			Args:  exactArgs(2, "orphion config set ui.width 100"),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, path, err := readConfigFile(flags)
				if err != nil {
					return err
				}
				if err := cfg.Set(args[0], args[1]); err != nil {
					return &UsageError{Reason: err.Error(), Example: "orphion config keys"}
				}
				if err := cfg.Validate(); err != nil {
					return err
				}
				if err := writeConfigFile(cfg, path); err != nil {
					return wrapCmd("config set", "save config", err)
				}
				shown := args[1]
				if strings.HasSuffix(args[0], "api_key") {
					shown = "[REDACTED]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], shown)
				return nil
			},
		},
		newConfigInitCommand(flags),
	)
	return cmd
}

func newConfigInitCommand(flags *GlobalFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configFilePath(flags)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return &UsageError{Reason: path + " already exists", Example: "orphion config init --force"}
			}
			if err := writeConfigFile(config.Default(), path); err != nil {
				return wrapCmd("config init", "save config", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configFilePath(flags *GlobalFlags) (string, error) {
	if flags.ConfigPath != "" {
		return flags.ConfigPath, nil
	}
	return config.ConfigPath()
}

// readConfigFile loads only what the file says, without environment
// overrides, so that saving it back never persists secrets from the
// environment.
func readConfigFile(flags *GlobalFlags) (*config.Config, string, error) {
	path, err := configFilePath(flags)
	if err != nil {
		return nil, "", err
	}
	cfg := config.Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, path, nil
	}
	if err := config.LoadTOML(cfg, path); err != nil {
		return nil, "", fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return cfg, path, nil
}

func writeConfigFile(cfg *config.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return config.SaveTOML(cfg, path)
}
