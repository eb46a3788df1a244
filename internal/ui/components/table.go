// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/orphion/orphion/internal/format"
	"github.com/orphion/orphion/internal/util"
)

// minCellWidth keeps very narrow terminals from collapsing columns to nothing.
const minCellWidth = 3

// renderTable draws a pipe table with box-drawing rules. Ragged rows are
// padded with blank cells for display only.
func (r *Renderer) renderTable(tbl *format.Table) string {
	t := r.Theme
	cols := tbl.Columns()
	widths := make([]int, cols)
	measure := func(row []string) {
		for i, c := range row {
			if w := runewidth.StringWidth(c); w > widths[i] {
				widths[i] = w
			}
		}
	}
	measure(tbl.Header)
	for _, row := range tbl.Rows {
		measure(row)
	}
	fitColumns(widths, r.Width)

	frame := t.TableFrame
	line := func(left, mid, right string) string {
		parts := make([]string, cols)
		for i, w := range widths {
			parts[i] = strings.Repeat("─", w+2)
		}
		return frame.Render(left + strings.Join(parts, mid) + right)
	}
	row := func(cells []string, style func(string) string) string {
		var b strings.Builder
		b.WriteString(frame.Render("│"))
		for i, w := range widths {
			var cell string
			if i < len(cells) {
				cell = util.TruncateWidth(cells[i], w)
			}
			b.WriteString(" " + style(util.PadRight(cell, w)) + " ")
			b.WriteString(frame.Render("│"))
		}
		return b.String()
	}

	out := []string{
		line("┌", "┬", "┐"),
		row(tbl.Header, func(s string) string { return t.TableHead.Render(s) }),
		line("├", "┼", "┤"),
	}
	for _, cells := range tbl.Rows {
		out = append(out, row(cells, func(s string) string { return t.TableCell.Render(s) }))
	}
	out = append(out, line("└", "┴", "┘"))
	return strings.Join(out, "\n")
}

// fitColumns shrinks the widest columns until the table fits in width.
func fitColumns(widths []int, width int) {
	if width <= 0 {
		return
	}
	total := func() int {
		n := 1
		for _, w := range widths {
			n += w + 3
		}
		return n
	}
	for total() > width {
		widest := 0
		for i, w := range widths {
			if w > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= minCellWidth {
			return
		}
		widths[widest]--
	}
}
