// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/orphion/orphion/internal/ui/styles"
)

// =============================================================================
// SHARED STYLES
// =============================================================================

// Styles are the command-output styles, bound to the theme's renderer so
// they honour the resolved colour profile.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Dim     lipgloss.Style
	ID      lipgloss.Style
	Prompt  lipgloss.Style
}

func newStyles(t *styles.Theme) Styles {
	s := t.NewStyle
	return Styles{
		Title:   s().Bold(true).Foreground(styles.Cyan),
		Label:   s().Foreground(styles.TextSecondary).Width(18),
		Value:   s().Foreground(styles.TextPrimary),
		Success: s().Foreground(styles.Emerald).Bold(true),
		Error:   s().Foreground(styles.Rose).Bold(true),
		Warning: s().Foreground(styles.Amber),
		Dim:     s().Foreground(styles.TextMuted),
		ID:      s().Foreground(styles.TextMuted).Italic(true),
		Prompt:  s().Foreground(styles.Cyan).Bold(true),
	}
}

// separator renders a horizontal rule of width columns.
func (s Styles) separator(width int) string {
	if width <= 0 {
		width = 60
	}
	return s.Dim.Render(strings.Repeat("─", width))
}

// field renders an aligned "label value" line.
func (s Styles) field(label, value string) string {
	return s.Label.Render(label) + s.Value.Render(value)
}
