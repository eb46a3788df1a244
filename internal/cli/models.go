// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orphion/orphion/internal/util"
)

func newModelsCommand(flags *GlobalFlags) *cobra.Command {
	var (
		filter string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models the inference API offers",
		Long: `List the models the configured inference API offers.

Examples:
  orphion models
  orphion models --filter claude`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithApp(cmd, flags, func(ctx context.Context, a *App) error {
				models, err := a.Client.ListModels(ctx)
				if err != nil {
					return wrapCmd("models", "list models", err)
				}
				if filter != "" {
					needle := strings.ToLower(filter)
					kept := models[:0]
					for _, m := range models {
						if strings.Contains(strings.ToLower(m.ID), needle) || strings.Contains(strings.ToLower(m.Name), needle) {
							kept = append(kept, m)
						}
					}
					models = kept
				}
				sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

				if asJSON {
					enc := json.NewEncoder(a.Out)
					enc.SetIndent("", "  ")
					return enc.Encode(models)
				}
				current := a.Client.Model()
				for _, m := range models {
					marker := "  "
					if m.ID == current {
						marker = a.Styles.Success.Render("* ")
					}
					line := marker + util.PadRight(m.ID, 48)
					if m.ContextSize > 0 {
						line += a.Styles.Dim.Render(fmt.Sprintf(" %dk ctx", m.ContextSize/1000))
					}
					fmt.Fprintln(a.Out, line)
				}
				fmt.Fprintf(a.Out, "\n%s\n", a.Styles.Dim.Render(fmt.Sprintf("%d model(s)", len(models))))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "only models whose ID or name contains this text")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}
