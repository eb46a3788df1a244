// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/orphion/orphion/internal/format"
	"github.com/orphion/orphion/internal/ui/styles"
	"github.com/orphion/orphion/internal/util"
)

// =============================================================================
// CHART RENDERER
// =============================================================================

// renderChart draws a chart as horizontal bars. Line and area charts share
// the bar layout; pie charts show each slice's share of the total.
func (r *Renderer) renderChart(c *format.Chart) string {
	t := r.Theme
	if c.Err != nil {
		if !c.Complete && r.Streaming {
			return t.Muted.Render("chart loading...")
		}
		return r.renderChartError(c)
	}
	spec := c.Spec

	var b strings.Builder
	title := spec.Title
	if title == "" {
		title = strings.ToUpper(string(spec.Type[:1])) + string(spec.Type[1:]) + " chart"
	}
	b.WriteString(t.ChartTitle.Render(title))
	b.WriteString("\n")
	if len(spec.Series) == 0 {
		b.WriteString(t.Muted.Render("(no data series)"))
		return b.String()
	}

	if spec.Type == format.ChartPie {
		b.WriteString(r.renderPie(spec))
	} else {
		b.WriteString(r.renderBars(spec))
	}

	if len(spec.Series) > 1 {
		legend := make([]string, len(spec.Series))
		for i, s := range spec.Series {
			legend[i] = t.NewStyle().Foreground(styles.SeriesColor(i)).Render("■ " + s)
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(legend, "  "))
	}
	return b.String()
}

func (r *Renderer) renderChartError(c *format.Chart) string {
	t := r.Theme
	box := t.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Rose).
		Padding(0, 1)
	return box.Render(t.Error.Render("Chart error: "+chartErrMessage(c.Err)) + "\n" + t.Muted.Render(c.Raw))
}

func chartErrMessage(err error) string {
	msg := err.Error()
	return strings.TrimPrefix(msg, format.ErrChartInvalid.Error()+": ")
}

func (r *Renderer) barWidth(labelWidth int) int {
	w := r.Width - labelWidth - 12
	if w < 10 {
		w = 10
	}
	if w > 50 {
		w = 50
	}
	return w
}

func (r *Renderer) renderBars(spec *format.ChartSpec) string {
	t := r.Theme
	labelWidth := 0
	for _, rec := range spec.Data {
		if w := util.StringWidth(rec.Name); w > labelWidth {
			labelWidth = w
		}
	}
	if labelWidth > 16 {
		labelWidth = 16
	}
	maxBar := r.barWidth(labelWidth)
	max := spec.Max()

	var lines []string
	for _, rec := range spec.Data {
		for i, series := range spec.Series {
			label := ""
			if i == 0 {
				label = util.TruncateWidth(rec.Name, labelWidth)
			}
			v := rec.Values[series]
			n := 0
			if max > 0 && v > 0 {
				n = int(v / max * float64(maxBar))
				if n == 0 {
					n = 1
				}
			}
			bar := t.NewStyle().Foreground(styles.SeriesColor(i)).Render(strings.Repeat("█", n))
			lines = append(lines, fmt.Sprintf("%s │%s %s", util.PadRight(label, labelWidth), bar, formatValue(v)))
		}
	}
	return strings.Join(lines, "\n")
}

func (r *Renderer) renderPie(spec *format.ChartSpec) string {
	t := r.Theme
	series := spec.Series[0]
	var total float64
	for _, rec := range spec.Data {
		total += rec.Values[series]
	}

	labelWidth := 0
	for _, rec := range spec.Data {
		if w := util.StringWidth(rec.Name); w > labelWidth {
			labelWidth = w
		}
	}
	maxBar := r.barWidth(labelWidth)

	var lines []string
	for i, rec := range spec.Data {
		v := rec.Values[series]
		share := 0.0
		if total > 0 {
			share = v / total
		}
		bar := t.NewStyle().Foreground(styles.SeriesColor(i)).Render(strings.Repeat("█", int(share*float64(maxBar))))
		lines = append(lines, fmt.Sprintf("%s │%s %.1f%%", util.PadRight(rec.Name, labelWidth), bar, share*100))
	}
	return strings.Join(lines, "\n")
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
