// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the lipgloss styles used to draw formatted blocks and chat
// transcripts.
type Theme struct {
	ColorProfile termenv.Profile
	IsDark       bool
	Renderer     *lipgloss.Renderer

	Headings   [4]lipgloss.Style
	Bold       lipgloss.Style
	InlineCode lipgloss.Style
	InlineMath lipgloss.Style
	Quote      lipgloss.Style
	Bullet     lipgloss.Style
	Rule       lipgloss.Style
	Muted      lipgloss.Style
	Error      lipgloss.Style
	Warning    lipgloss.Style

	MathBlock  lipgloss.Style
	TableHead  lipgloss.Style
	TableCell  lipgloss.Style
	TableFrame lipgloss.Style
	ChartTitle lipgloss.Style

	UserLabel lipgloss.Style
	AILabel   lipgloss.Style
	Reasoning lipgloss.Style
	Source    lipgloss.Style

	// CodeStyle is the chroma style name used for syntax highlighting.
	CodeStyle string
}

// NewTheme detects the terminal's colour support and builds a theme.
func NewTheme() *Theme {
	t := &Theme{
		ColorProfile: termenv.ColorProfile(),
		IsDark:       termenv.HasDarkBackground(),
		CodeStyle:    "monokai",
	}
	t.init()
	return t
}

// NewThemeFor builds a theme for an explicit colour profile. An empty
// codeStyle keeps the default.
func NewThemeFor(profile termenv.Profile, codeStyle string) *Theme {
	if profile == termenv.Ascii {
		return NewPlainTheme()
	}
	t := &Theme{
		ColorProfile: profile,
		IsDark:       termenv.HasDarkBackground(),
		CodeStyle:    "monokai",
	}
	if codeStyle != "" {
		t.CodeStyle = codeStyle
	}
	t.init()
	return t
}

// NewPlainTheme returns a theme that emits no colour codes, for pipes and
// tests.
func NewPlainTheme() *Theme {
	t := &Theme{ColorProfile: termenv.Ascii, IsDark: true, CodeStyle: ""}
	t.init()
	return t
}

// Plain reports whether the theme renders without ANSI colour.
func (t *Theme) Plain() bool {
	return t.ColorProfile == termenv.Ascii
}

func (t *Theme) init() {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(t.ColorProfile)
	r.SetHasDarkBackground(t.IsDark)
	t.Renderer = r
	s := r.NewStyle

	t.Headings = [4]lipgloss.Style{
		s().Bold(true).Foreground(Purple).Underline(true),
		s().Bold(true).Foreground(Purple),
		s().Bold(true).Foreground(Cyan),
		s().Bold(true).Foreground(TextSecondary),
	}
	t.Bold = s().Bold(true)
	t.InlineCode = s().Foreground(Cyan)
	t.InlineMath = s().Foreground(Amber).Italic(true)
	t.Quote = s().Foreground(TextSecondary).Italic(true).
		BorderStyle(lipgloss.ThickBorder()).BorderLeft(true).BorderForeground(OverlayDim).PaddingLeft(1)
	t.Bullet = s().Foreground(Purple)
	t.Rule = s().Foreground(OverlayDim)
	t.Muted = s().Foreground(TextMuted)
	t.Error = s().Foreground(Rose).Bold(true)
	t.Warning = s().Foreground(Amber)

	t.MathBlock = s().Foreground(Amber).PaddingLeft(4)
	t.TableHead = s().Bold(true).Foreground(Purple)
	t.TableCell = s().Foreground(TextPrimary)
	t.TableFrame = s().Foreground(OverlayDim)
	t.ChartTitle = s().Bold(true).Foreground(TextPrimary)

	t.UserLabel = s().Bold(true).Foreground(Cyan)
	t.AILabel = s().Bold(true).Foreground(Purple)
	t.Reasoning = s().Foreground(TextMuted).Italic(true)
	t.Source = s().Foreground(Blue)
}

// NewStyle returns an empty style bound to the theme's renderer.
func (t *Theme) NewStyle() lipgloss.Style {
	return t.Renderer.NewStyle()
}

// Heading returns the style for a heading level, clamped to 1..4.
func (t *Theme) Heading(level int) lipgloss.Style {
	if level < 1 {
		level = 1
	}
	if level > 4 {
		level = 4
	}
	return t.Headings[level-1]
}
