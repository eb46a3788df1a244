// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/time/rate"

	"github.com/orphion/orphion/internal/format"
	"github.com/orphion/orphion/internal/inference"
	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/ui/components"
)

// =============================================================================
// LIVE OUTPUT
// =============================================================================

// previewInterval is the minimum time between redraws of a streaming
// reply.
const previewInterval = 50 * time.Millisecond

// liveOutput shows a reply while it streams and replaces it with the
// final rendering once complete. The preview is the visible part of the
// text so far, formatted and rendered like a finished message; reasoning
// and search directives never reach the screen. On anything but a
// terminal nothing is streamed.
type liveOutput struct {
	out      io.Writer
	errOut   io.Writer
	width    int
	terminal bool
	stream   bool
	renderer *components.Renderer
	throttle *rate.Sometimes

	raw      strings.Builder
	shown    string
	thinking bool
}

func (a *App) newLiveOutput(stream bool) *liveOutput {
	preview := *a.View.Renderer
	preview.Streaming = true
	return &liveOutput{
		out:      a.Out,
		errOut:   a.ErrOut,
		width:    a.Width,
		terminal: isTerminalWriter(a.Out),
		stream:   stream,
		renderer: &preview,
		throttle: &rate.Sometimes{Interval: previewInterval},
	}
}

// options returns inference options that feed this output.
func (l *liveOutput) options(mode model.SearchMode, st Styles) inference.Options {
	opts := inference.Options{
		SearchMode: mode,
		OnSearch: func(q string) {
			l.clearThinking()
			l.erase()
			l.raw.Reset()
			fmt.Fprintln(l.errOut, st.Dim.Render(fmt.Sprintf("Searching the web (%s) for %q...", mode, q)))
		},
	}
	if l.stream && l.terminal {
		opts.OnDelta = l.write
	}
	return opts
}

// begin shows a placeholder until visible text arrives.
func (l *liveOutput) begin(st Styles) {
	if !isTerminalWriter(l.errOut) {
		return
	}
	fmt.Fprint(l.errOut, st.Dim.Render("thinking..."))
	l.thinking = true
}

func (l *liveOutput) clearThinking() {
	if !l.thinking {
		return
	}
	termenv.NewOutput(l.errOut).ClearLine()
	fmt.Fprint(l.errOut, "\r")
	l.thinking = false
}

func (l *liveOutput) write(delta string) {
	l.raw.WriteString(delta)
	l.throttle.Do(l.redraw)
}

// redraw replaces the preview with a rendering of the visible text. A
// fresh formatter is used so partial math cannot trip the fallback latch
// of the transcript's formatter.
func (l *liveOutput) redraw() {
	visible := inference.VisibleSoFar(l.raw.String())
	if visible == "" {
		return
	}
	rendered := l.renderer.RenderBlocks(format.New().Format(visible))
	if rendered == l.shown {
		return
	}
	l.clearThinking()
	l.erase()
	fmt.Fprint(l.out, rendered)
	l.shown = rendered
}

// erase removes the preview from the screen.
func (l *liveOutput) erase() {
	if l.shown == "" {
		return
	}
	if rows := visualRows(l.shown, l.width); rows > 0 {
		termenv.NewOutput(l.out).ClearLines(rows - 1)
	}
	fmt.Fprint(l.out, "\r")
	l.shown = ""
}

// finish erases the preview so the final reply can replace it.
func (l *liveOutput) finish() {
	l.clearThinking()
	l.erase()
	l.raw.Reset()
}

// visualRows counts the terminal rows text occupies at width columns.
func visualRows(text string, width int) int {
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	rows := 0
	for _, line := range strings.Split(text, "\n") {
		w := lipgloss.Width(line)
		if w == 0 {
			rows++
			continue
		}
		rows += (w + width - 1) / width
	}
	return rows
}

// printMessage renders one message followed by a blank line.
func (a *App) printMessage(m model.Message) {
	fmt.Fprintln(a.Out, a.View.Render(m, false))
	fmt.Fprintln(a.Out)
}
