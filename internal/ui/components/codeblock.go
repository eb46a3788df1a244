// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components renders formatted blocks and chat messages for the
// terminal.
package components

import (
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/orphion/orphion/internal/format"
	"github.com/orphion/orphion/internal/ui/styles"
)

// =============================================================================
// CODE BLOCK RENDERER
// =============================================================================

// renderCode draws a fenced code block with line numbers, a language badge
// and, when the theme has colour, chroma syntax highlighting. The code
// itself is never reflowed.
func (r *Renderer) renderCode(cb *format.CodeBlock) string {
	t := r.Theme
	code := strings.TrimRight(cb.Code, "\n")

	body := code
	if !t.Plain() {
		body = highlightCode(code, cb.Language, t.CodeStyle)
	}
	lines := strings.Split(body, "\n")

	gutter := t.NewStyle().Foreground(styles.TextMuted).Width(4).Align(lipgloss.Right).MarginRight(1)
	numbered := make([]string, len(lines))
	for i, line := range lines {
		numbered[i] = gutter.Render(strconv.Itoa(i+1)) + line
	}

	var header string
	if label := codeLabel(cb); label != "" {
		header = t.NewStyle().
			Foreground(styles.TextMuted).
			Background(styles.OverlayDim).
			Padding(0, 1).
			Bold(true).
			Render(label) + "\n"
	}

	box := t.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(styles.Overlay).
		Padding(0, 1).
		Render(header + strings.Join(numbered, "\n"))

	if len(cb.Explanation) == 0 {
		return box
	}
	explained := make([]string, len(cb.Explanation))
	for i, spans := range cb.Explanation {
		explained[i] = r.wrap(r.renderSpans(spans), 2)
	}
	return box + "\n" + strings.Join(explained, "\n")
}

func codeLabel(cb *format.CodeBlock) string {
	label := cb.Language
	if !cb.Complete {
		if label == "" {
			return "..."
		}
		return label + " ..."
	}
	return label
}

// highlightCode applies chroma highlighting for a 256-colour terminal,
// returning the input unchanged if anything fails.
func highlightCode(code, language, style string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	cs := chromaStyles.Get(style)
	if cs == nil {
		cs = chromaStyles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, cs, iterator); err != nil {
		return code
	}
	return strings.TrimRight(buf.String(), "\n")
}
