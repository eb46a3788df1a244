// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/orphion/orphion/internal/format"
	"github.com/orphion/orphion/internal/ui/styles"
)

// =============================================================================
// BLOCK RENDERER
// =============================================================================

// Renderer draws formatter output for a terminal of a given width.
type Renderer struct {
	Theme *styles.Theme
	// Width is the available column count; 0 disables wrapping.
	Width int
	// Streaming marks text that is still arriving: an unterminated chart
	// fence shows a placeholder instead of its parse error.
	Streaming bool
}

// NewRenderer creates a Renderer. A nil theme means NewPlainTheme.
func NewRenderer(theme *styles.Theme, width int) *Renderer {
	if theme == nil {
		theme = styles.NewPlainTheme()
	}
	return &Renderer{Theme: theme, Width: width}
}

// RenderBlocks renders blocks separated the way the source laid them out:
// paragraph continuations and runs of list items or quotes stay tight,
// everything else gets a blank line between.
func (r *Renderer) RenderBlocks(blocks []format.Block) string {
	var b strings.Builder
	for i, blk := range blocks {
		if i > 0 {
			b.WriteString(separator(blocks[i-1], blk))
		}
		b.WriteString(r.RenderBlock(blk))
	}
	return b.String()
}

func separator(prev, next format.Block) string {
	if p, ok := prev.(*format.Paragraph); ok && p.LineBreak {
		return "\n"
	}
	if prev.Kind() == next.Kind() && (next.Kind() == format.KindListItem || next.Kind() == format.KindBlockquote) {
		return "\n"
	}
	return "\n\n"
}

// RenderBlock renders a single block.
func (r *Renderer) RenderBlock(blk format.Block) string {
	t := r.Theme
	switch b := blk.(type) {
	case *format.Heading:
		return t.Heading(b.Level).Render(r.renderSpans(b.Spans))
	case *format.ListItem:
		return r.renderListItem(b)
	case *format.Blockquote:
		return t.Quote.Render(r.wrap(r.renderSpans(b.Spans), 3))
	case *format.CodeBlock:
		return r.renderCode(b)
	case *format.MathBlock:
		out := t.MathBlock.Render(b.Rendered)
		if !b.Complete {
			out += t.Muted.Render(" ...")
		}
		return out
	case *format.Table:
		return r.renderTable(b)
	case *format.Chart:
		return r.renderChart(b)
	case *format.Paragraph:
		return r.wrap(r.renderSpans(b.Spans), 0)
	case *format.HorizontalRule:
		w := r.Width
		if w <= 0 || w > 60 {
			w = 60
		}
		return t.Rule.Render(strings.Repeat("─", w))
	}
	return ""
}

func (r *Renderer) renderListItem(li *format.ListItem) string {
	t := r.Theme
	marker := "•"
	if li.Ordered {
		marker = li.Marker + "."
	}
	indent := strings.Repeat("  ", li.Indent)
	prefix := indent + t.Bullet.Render(marker) + " "
	hang := len(indent) + len([]rune(marker)) + 1

	body := r.wrap(r.renderSpans(li.Spans), hang)
	lines := strings.Split(body, "\n")
	pad := strings.Repeat(" ", hang)
	for i := range lines {
		if i == 0 {
			lines[i] = prefix + lines[i]
		} else {
			lines[i] = pad + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}

// renderSpans renders inline spans with the theme's inline styles.
func (r *Renderer) renderSpans(spans []format.Span) string {
	t := r.Theme
	var b strings.Builder
	for _, s := range spans {
		switch s.Kind {
		case format.SpanBold:
			b.WriteString(t.Bold.Render(s.Text))
		case format.SpanCode:
			b.WriteString(t.InlineCode.Render(s.Text))
		case format.SpanMath:
			b.WriteString(t.InlineMath.Render(s.Rendered))
		default:
			b.WriteString(s.Text)
		}
	}
	return b.String()
}

// wrap word-wraps text to the renderer width minus indent.
func (r *Renderer) wrap(text string, indent int) string {
	if r.Width <= 0 {
		return text
	}
	w := r.Width - indent
	if w < 20 {
		w = 20
	}
	return r.Theme.NewStyle().Width(w).Render(text)
}
