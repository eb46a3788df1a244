// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/util"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports sessions to Markdown with YAML front matter.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	return &MarkdownExporter{options: orDefault(opts)}
}

// frontMatter is marshalled by yaml.v3 so titles never need hand quoting.
type frontMatter struct {
	Title     string `yaml:"title"`
	ID        string `yaml:"id"`
	Date      string `yaml:"date"`
	Updated   string `yaml:"updated"`
	Messages  int    `yaml:"messages"`
	Exported  string `yaml:"exported"`
	Generator string `yaml:"generator"`
}

// Export implements Exporter.
func (e *MarkdownExporter) Export(cs model.ChatSession) ([]byte, error) {
	if err := validate(cs); err != nil {
		return nil, err
	}
	now := e.options.now()

	var sb strings.Builder

	if e.options.IncludeMetadata {
		fm, err := yaml.Marshal(frontMatter{
			Title:     cs.Title,
			ID:        cs.ID,
			Date:      cs.CreatedAt.Format(time.RFC3339),
			Updated:   cs.UpdatedAt.Format(time.RFC3339),
			Messages:  len(cs.Messages),
			Exported:  now.Format(time.RFC3339),
			Generator: "orphion",
		})
		if err != nil {
			return nil, fmt.Errorf("front matter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(fm)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(cs.Title))

	if e.options.IncludeMetadata {
		sb.WriteString("## Session Information\n\n")
		fmt.Fprintf(&sb, "- **Created**: %s\n", formatTimestamp(cs.CreatedAt))
		fmt.Fprintf(&sb, "- **Last Updated**: %s\n", formatTimestamp(cs.UpdatedAt))
		fmt.Fprintf(&sb, "- **Messages**: %d\n", len(cs.Messages))
		sb.WriteString("\n---\n\n")
	}

	sb.WriteString("## Conversation\n\n")
	for i, msg := range cs.Messages {
		e.writeMessage(&sb, msg)
		if i < len(cs.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "*Exported from Orphion on %s*\n", now.Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// FileExtension implements Exporter.
func (e *MarkdownExporter) FileExtension() string { return ".md" }

// MimeType implements Exporter.
func (e *MarkdownExporter) MimeType() string { return "text/markdown" }

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func (e *MarkdownExporter) writeMessage(sb *strings.Builder, msg model.Message) {
	label := msg.Sender.DisplayName()
	if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
		fmt.Fprintf(sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.Timestamp))
	} else {
		fmt.Fprintf(sb, "### %s\n\n", label)
	}

	if msg.HasAttachedImage {
		sb.WriteString("*[Image attached]*\n\n")
		if vm := msg.VisionMetadata; vm != nil && vm.Description != "" {
			fmt.Fprintf(sb, "> **Image description** (%s): %s\n\n", vm.Model, util.CollapseWhitespace(vm.Description))
		}
	}

	if e.options.IncludeReasoning && msg.Reasoning != "" {
		sb.WriteString("<details>\n<summary>Reasoning</summary>\n\n")
		sb.WriteString(strings.TrimSpace(msg.Reasoning))
		sb.WriteString("\n\n</details>\n\n")
	}

	// Content is already Markdown.
	sb.WriteString(strings.TrimSpace(msg.Content))
	sb.WriteString("\n\n")

	if ws := msg.WebSearchMetadata; ws != nil && len(ws.Results) > 0 {
		fmt.Fprintf(sb, "**Sources** (%s: %q)\n\n", ws.Mode, ws.Query)
		for i, r := range ws.Results {
			fmt.Fprintf(sb, "%d. [%s](%s)\n", i+1, escapeMarkdown(r.Title), r.URL)
		}
		sb.WriteString("\n")
	}

	if msg.Sender == model.SenderAI && e.options.IncludeMetadata {
		if stats := messageStats(msg); stats != "" {
			fmt.Fprintf(sb, "<sub>%s</sub>\n\n", stats)
		}
	}
}

// messageStats returns the version and timing line for an AI message.
func messageStats(msg model.Message) string {
	var parts []string
	if msg.HasVersions() {
		parts = append(parts, fmt.Sprintf("Version %d of %d", msg.CurrentVersionIndex+1, msg.VersionCount()))
	}
	if msg.GenerationTimeSeconds != nil {
		parts = append(parts, "Generated in "+formatSeconds(*msg.GenerationTimeSeconds))
	}
	return strings.Join(parts, " | ")
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

var markdownEscaper = strings.NewReplacer(
	`#`, `\#`,
	`*`, `\*`,
	`_`, `\_`,
	`[`, `\[`,
	`]`, `\]`,
)

// escapeMarkdown escapes characters that would break titles and links.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
