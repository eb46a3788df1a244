// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"os"
	"strings"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// IsTTY reports whether stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// isTerminalWriter reports whether w is a terminal file.
func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// isTerminalReader reports whether r is a terminal file.
func isTerminalReader(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// =============================================================================
// TERMINAL WIDTH DETECTION
// =============================================================================

const (
	// DefaultTerminalWidth is the fallback width when detection fails
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the minimum width used for wrapping
	MinTerminalWidth = 40
)

// TerminalWidth returns the width of w when it is a terminal, the
// configured width when set, or DefaultTerminalWidth.
func TerminalWidth(w io.Writer, configured int) int {
	if configured > 0 {
		return max(configured, MinTerminalWidth)
	}
	f, ok := w.(*os.File)
	if !ok {
		return DefaultTerminalWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	return max(width, MinTerminalWidth)
}

// =============================================================================
// COLOR OUTPUT CONTROL
// =============================================================================

// ColorProfile resolves the colour profile for w. mode is the configured
// "auto", "always" or "never"; NO_COLOR beats everything and FORCE_COLOR
// beats TTY detection.
func ColorProfile(w io.Writer, mode string) termenv.Profile {
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	switch strings.ToLower(mode) {
	case "never":
		return termenv.Ascii
	case "always":
		if p := termenv.ColorProfile(); p != termenv.Ascii {
			return p
		}
		return termenv.ANSI256
	}
	if os.Getenv("FORCE_COLOR") != "" || isTerminalWriter(w) {
		if p := termenv.ColorProfile(); p != termenv.Ascii {
			return p
		}
		return termenv.ANSI256
	}
	return termenv.Ascii
}
