// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newMigrateCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Convert sessions saved in the legacy format",
		Long: `Convert sessions saved under the legacy storage keys into the current
format. Running it again is harmless: nothing happens once the current
collection holds sessions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithApp(cmd, flags, func(ctx context.Context, a *App) error {
				report, err := a.Sessions.MigrateLegacySchema(ctx)
				if err != nil {
					return wrapCmd("migrate", "migrate legacy sessions", err)
				}
				if !report.Migrated {
					fmt.Fprintln(a.Out, a.Styles.Dim.Render("Nothing to migrate"))
					return nil
				}
				fmt.Fprintf(a.Out, "%s %d session(s), %d message(s)\n",
					a.Styles.Success.Render("Migrated"), report.Sessions, report.Messages)
				if len(report.Sources) > 0 {
					fmt.Fprintln(a.Out, a.Styles.field("From:", strings.Join(report.Sources, ", ")))
				}
				return nil
			})
		},
	}
}
