// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/orphion/orphion/internal/cloud"
	"github.com/orphion/orphion/internal/search"
	"github.com/orphion/orphion/internal/ui/styles"
)

// doctorProbeTimeout bounds each network check.
const doctorProbeTimeout = 10 * time.Second

// =============================================================================
// HEALTH CHECK TYPES
// =============================================================================

// CheckStatus is the outcome of a health check.
type CheckStatus int

const (
	CheckPass CheckStatus = iota
	CheckWarn
	CheckFail
)

func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarn:
		return "warn"
	case CheckFail:
		return "fail"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// HealthCheck is one check result.
type HealthCheck struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"status"`
	Message string      `json:"message"`
	// Fix is a suggested command or instruction.
	Fix string `json:"fix,omitempty"`
}

func (c *HealthCheck) render(st Styles) string {
	var symbol string
	switch c.Status {
	case CheckPass:
		symbol = st.Success.Render("[OK]  ")
	case CheckWarn:
		symbol = st.Warning.Render("[!!]  ")
	default:
		symbol = st.Error.Render("[FAIL]")
	}
	out := symbol + " " + st.Value.Render(c.Message)
	if c.Status != CheckPass && c.Fix != "" {
		out += "\n       " + st.Dim.Render("-> "+c.Fix)
	}
	return out
}

// =============================================================================
// DOCTOR COMMAND
// =============================================================================

func newDoctorCommand(flags *GlobalFlags) *cobra.Command {
	var (
		asJSON  bool
		offline bool
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, storage and API access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadConfig(*flags); err != nil {
				checks := []*HealthCheck{{
					Name:    "config",
					Status:  CheckFail,
					Message: "Configuration is invalid: " + err.Error(),
					Fix:     "Run: orphion config show, or orphion config init --force",
				}}
				return reportChecks(cmd.OutOrStdout(), newStyles(styles.NewPlainTheme()), checks, asJSON)
			}
			return runWithApp(cmd, flags, func(ctx context.Context, a *App) error {
				return reportChecks(a.Out, a.Styles, a.runChecks(ctx, offline), asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "skip checks that need the network")
	return cmd
}

func (a *App) runChecks(ctx context.Context, offline bool) []*HealthCheck {
	checks := []*HealthCheck{
		{Name: "config", Status: CheckPass, Message: "Configuration is valid"},
		a.checkStore(ctx),
		a.checkAPIKey(),
	}
	if !offline && a.Client.IsConfigured() {
		checks = append(checks, a.checkAPIReachable(ctx))
	}
	checks = append(checks, a.checkSearch())
	return checks
}

func (a *App) checkStore(ctx context.Context) *HealthCheck {
	check := &HealthCheck{Name: "storage"}
	sessions, err := a.Sessions.GetAllSessions(ctx)
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Cannot read the %s store: %v", a.Config.Storage.Backend, err)
		check.Fix = "Check storage.backend and its settings: orphion config show"
		return check
	}
	check.Status = CheckPass
	check.Message = fmt.Sprintf("%s store readable (%d sessions)", a.Config.Storage.Backend, len(sessions))
	return check
}

func (a *App) checkAPIKey() *HealthCheck {
	check := &HealthCheck{Name: "api_key"}
	if !a.Client.IsConfigured() {
		check.Status = CheckFail
		check.Message = "No inference API key; chat, titles and image analysis are unavailable"
		check.Fix = "Set ORPHION_API_KEY or run: orphion config set inference.api_key YOUR_KEY"
		return check
	}
	check.Status = CheckPass
	check.Message = fmt.Sprintf("API key configured (%s)", a.Client.APIKeyMasked())
	return check
}

func (a *App) checkAPIReachable(ctx context.Context) *HealthCheck {
	check := &HealthCheck{Name: "api"}
	ctx, cancel := context.WithTimeout(ctx, doctorProbeTimeout)
	defer cancel()

	start := time.Now()
	models, err := a.Client.ListModels(ctx)
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("%s unreachable: %v", a.Client.BaseURL(), err)
		check.Fix = "Check inference.base_url and your network"
		return check
	}
	check.Status = CheckPass
	check.Message = fmt.Sprintf("%s answered in %s", a.Client.BaseURL(), time.Since(start).Round(time.Millisecond))

	if len(models) > 0 && !hasModel(models, a.Client.Model()) {
		check.Status = CheckWarn
		check.Message += fmt.Sprintf(", but model %q is not listed", a.Client.Model())
		check.Fix = "Run: orphion models"
	}
	return check
}

func (a *App) checkSearch() *HealthCheck {
	check := &HealthCheck{Name: "search"}
	sc := a.Config.Search
	if sc.Provider == search.ProviderTavily && strings.TrimSpace(sc.APIKey) == "" {
		check.Status = CheckWarn
		check.Message = "Tavily has no API key; web search falls back to DuckDuckGo"
		check.Fix = "Set ORPHION_SEARCH_KEY or run: orphion config set search.provider duckduckgo"
		return check
	}
	check.Status = CheckPass
	check.Message = fmt.Sprintf("Web search via %s (%s mode by default)", sc.Provider, a.SearchMode())
	return check
}

func hasModel(models []cloud.ModelInfo, id string) bool {
	for _, m := range models {
		if m.ID == id {
			return true
		}
	}
	return false
}

// reportChecks prints the results and fails when any check failed.
func reportChecks(w io.Writer, st Styles, checks []*HealthCheck, asJSON bool) error {
	var passed, warned, failed int
	for _, c := range checks {
		switch c.Status {
		case CheckPass:
			passed++
		case CheckWarn:
			warned++
		default:
			failed++
		}
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Checks  []*HealthCheck `json:"checks"`
			Healthy bool           `json:"healthy"`
		}{checks, failed == 0}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(w, st.Title.Render("Orphion Doctor"))
		fmt.Fprintln(w, st.separator(41))
		for _, c := range checks {
			fmt.Fprintln(w, c.render(st))
		}
		fmt.Fprintln(w, st.separator(41))
		summary := []string{fmt.Sprintf("%d passed", passed)}
		if warned > 0 {
			summary = append(summary, st.Warning.Render(fmt.Sprintf("%d warning", warned)))
		}
		if failed > 0 {
			summary = append(summary, st.Error.Render(fmt.Sprintf("%d failed", failed)))
		}
		fmt.Fprintln(w, strings.Join(summary, ", "))
	}

	if failed > 0 {
		return fmt.Errorf("%d health check(s) failed", failed)
	}
	return nil
}
