// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/orphion/orphion/internal/format"
	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/util"
)

// =============================================================================
// MESSAGE VIEW
// =============================================================================

// maxSources caps the search sources listed under a message.
const maxSources = 5

// MessageView renders chat messages. AI messages go through the
// formatter; user messages are shown as typed.
type MessageView struct {
	Renderer  *Renderer
	Formatter *format.Formatter

	// ShowReasoning expands <think> reasoning instead of a one-line hint.
	ShowReasoning bool
	ShowTimestamp bool
}

// NewMessageView creates a MessageView that shares one formatter, so the
// math fallback latch covers the whole transcript.
func NewMessageView(r *Renderer, f *format.Formatter) *MessageView {
	if f == nil {
		f = format.New()
	}
	return &MessageView{Renderer: r, Formatter: f, ShowTimestamp: true}
}

// Render draws one message. streaming marks an AI message whose content
// is still arriving.
func (v *MessageView) Render(m model.Message, streaming bool) string {
	t := v.Renderer.Theme
	var parts []string

	parts = append(parts, v.header(m, streaming))

	if m.HasAttachedImage {
		parts = append(parts, t.Muted.Render("[image attached]"))
	}
	if m.VisionMetadata != nil && m.VisionMetadata.Description != "" {
		parts = append(parts, t.Muted.Render("Image analysis ("+m.VisionMetadata.Model+"): ")+
			v.Renderer.wrap(m.VisionMetadata.Description, 0))
	}
	if m.Reasoning != "" {
		parts = append(parts, v.reasoning(m.Reasoning))
	}

	if m.IsUser() {
		parts = append(parts, v.Renderer.wrap(m.Content, 0))
	} else {
		parts = append(parts, v.Renderer.RenderBlocks(v.Formatter.Format(m.Content)))
	}

	if m.WebSearchMetadata != nil {
		parts = append(parts, v.sources(m.WebSearchMetadata))
	}
	return strings.Join(parts, "\n")
}

// RenderSession draws a whole transcript.
func (v *MessageView) RenderSession(s model.ChatSession) string {
	t := v.Renderer.Theme
	out := []string{t.Heading(1).Render(s.Title)}
	for _, m := range s.Messages {
		out = append(out, v.Render(m, false))
	}
	return strings.Join(out, "\n\n")
}

func (v *MessageView) header(m model.Message, streaming bool) string {
	t := v.Renderer.Theme
	label := t.AILabel.Render(m.Sender.DisplayName())
	if m.IsUser() {
		label = t.UserLabel.Render(m.Sender.DisplayName())
	}

	var meta []string
	if v.ShowTimestamp && !m.Timestamp.IsZero() {
		meta = append(meta, m.Timestamp.Local().Format("15:04"))
	}
	if m.GenerationTimeSeconds != nil {
		meta = append(meta, fmt.Sprintf("%.1fs", *m.GenerationTimeSeconds))
	}
	if m.HasVersions() {
		meta = append(meta, fmt.Sprintf("v%d/%d", m.CurrentVersionIndex+1, len(m.Versions)))
	}
	if m.WebSearchMetadata != nil {
		meta = append(meta, "searched: "+string(m.WebSearchMetadata.Mode))
	}
	if streaming {
		meta = append(meta, "generating...")
	}
	if len(meta) == 0 {
		return label
	}
	return label + t.Muted.Render(" · "+strings.Join(meta, " · "))
}

func (v *MessageView) reasoning(text string) string {
	t := v.Renderer.Theme
	text = strings.TrimSpace(text)
	if !v.ShowReasoning {
		first, _, _ := strings.Cut(text, "\n")
		return t.Reasoning.Render("Thought: " + util.TruncateRunes(first, 72))
	}
	return t.Reasoning.Render(v.Renderer.wrap("Thought:\n"+text, 2))
}

func (v *MessageView) sources(sm *model.SearchMetadata) string {
	t := v.Renderer.Theme
	lines := []string{t.Muted.Render(fmt.Sprintf("Sources for %q:", sm.Query))}
	for i, res := range sm.Results {
		if i == maxSources {
			lines = append(lines, t.Muted.Render(fmt.Sprintf("  ... %d more", len(sm.Results)-maxSources)))
			break
		}
		title := res.Title
		if title == "" {
			title = res.URL
		}
		lines = append(lines, fmt.Sprintf("  %d. %s %s", i+1, util.TruncateRunes(title, 60), t.Source.Render(res.URL)))
	}
	if n := len(sm.Images); n > 0 {
		lines = append(lines, t.Muted.Render(fmt.Sprintf("  %d related image(s)", n)))
	}
	return strings.Join(lines, "\n")
}
