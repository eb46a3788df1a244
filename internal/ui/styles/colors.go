// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the terminal colour palette and block styles.
// All colours are lipgloss AdaptiveColors so light and dark terminals both
// stay readable.
package styles

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// ACCENT COLORS
// =============================================================================

// Purple - AI messages, headings
var Purple = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

// Cyan - user messages, inline code
var Cyan = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

// Emerald - success, chart series 1
var Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

// Rose - errors
var Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// Amber - warnings, math
var Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// Blue - links, chart series 2
var Blue = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"}

// Pink - chart series 3
var Pink = lipgloss.AdaptiveColor{Light: "#EA76CB", Dark: "#F5C2E7"}

// =============================================================================
// SURFACES AND TEXT
// =============================================================================

var (
	SurfaceDim    = lipgloss.AdaptiveColor{Light: "#F5F5F5", Dark: "#181825"}
	Overlay       = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}
	OverlayDim    = lipgloss.AdaptiveColor{Light: "#D4D4D4", Dark: "#45475A"}
	TextPrimary   = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}
	TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}
	TextMuted     = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}
)

// SeriesColors cycles through chart series.
var SeriesColors = []lipgloss.AdaptiveColor{Emerald, Blue, Pink, Amber, Cyan, Purple}

// SeriesColor returns the colour for series i.
func SeriesColor(i int) lipgloss.AdaptiveColor {
	return SeriesColors[i%len(SeriesColors)]
}
