// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// NewRootCommand builds the orphion command tree.
func NewRootCommand() *cobra.Command {
	var flags GlobalFlags

	root := &cobra.Command{
		Use:   "orphion",
		Short: "Terminal chat client with saved, versioned sessions",
		Long: `Orphion is a terminal chat client for OpenAI-compatible APIs.

Responses are rendered with code blocks, tables, math and charts. Sessions
are saved with generated titles, regenerated answers are kept as versions,
and the model may search the web or describe attached images.

Quick Start:
  orphion chat                      Start chatting
  orphion ask "what is a monad?"    One-shot question
  orphion sessions list             Browse saved sessions`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Reason: err.Error()}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "configuration file (default ~/.orphion/config.toml)")
	pf.StringVar(&flags.Backend, "storage", "", "session store: file, sqlite, redis or memory")
	pf.StringVar(&flags.DataDir, "data-dir", "", "directory of the file store")
	pf.StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&flags.Color, "color", "", "colour output: auto, always or never")
	pf.BoolVar(&flags.Ephemeral, "ephemeral", false, "keep sessions in memory only")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newChatCommand(&flags),
		newAskCommand(&flags),
		newRenderCommand(&flags),
		newSessionsCommand(&flags),
		newViewCommand(&flags),
		newMigrateCommand(&flags),
		newModelsCommand(&flags),
		newConfigCommand(&flags),
		newDoctorCommand(&flags),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitCode(err)
	}
	return ExitSuccess
}

// runWithApp wires an App for cmd and runs fn with it.
func runWithApp(cmd *cobra.Command, flags *GlobalFlags, fn func(ctx context.Context, a *App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := NewApp(ctx, *flags, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "orphion %s\n  commit: %s\n  built:  %s\n", Version, GitCommit, BuildDate)
		},
	}
}

// exactArgs is cobra.ExactArgs returning a UsageError with an example.
func exactArgs(n int, example string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return &UsageError{
				Reason:  fmt.Sprintf("%s expects %d argument(s), got %d", cmd.CommandPath(), n, len(args)),
				Example: example,
			}
		}
		return nil
	}
}
