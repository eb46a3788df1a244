// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/base64"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/orphion/orphion/internal/format"
	"github.com/orphion/orphion/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports sessions to a standalone HTML page. AI responses
// go through the segmenting formatter so tables, math and charts render
// as real markup.
type HTMLExporter struct {
	options   *Options
	formatter *format.Formatter
}

// NewHTMLExporter creates an HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	return &HTMLExporter{options: orDefault(opts), formatter: format.New()}
}

// Export implements Exporter.
func (e *HTMLExporter) Export(cs model.ChatSession) ([]byte, error) {
	if err := validate(cs); err != nil {
		return nil, err
	}
	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "    <title>%s</title>\n", html.EscapeString(cs.Title))
	sb.WriteString("    <meta name=\"generator\" content=\"orphion\">\n")
	fmt.Fprintf(&sb, "    <meta name=\"date\" content=\"%s\">\n", cs.CreatedAt.Format(time.RFC3339))
	sb.WriteString(pageCSS)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n", theme)
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		e.writeHeader(&sb, cs)
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for _, msg := range cs.Messages {
		e.writeMessage(&sb, msg)
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	fmt.Fprintf(&sb, "            <p>Exported from <strong>Orphion</strong> on %s</p>\n",
		e.options.now().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("        </footer>\n    </div>\n")
	sb.WriteString(themeScript)
	sb.WriteString("</body>\n</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension implements Exporter.
func (e *HTMLExporter) FileExtension() string { return ".html" }

// MimeType implements Exporter.
func (e *HTMLExporter) MimeType() string { return "text/html" }

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

func (e *HTMLExporter) writeHeader(sb *strings.Builder, cs model.ChatSession) {
	sb.WriteString("        <header class=\"header\">\n")
	fmt.Fprintf(sb, "            <h1>%s</h1>\n", html.EscapeString(cs.Title))
	sb.WriteString("            <div class=\"metadata\">\n")
	fmt.Fprintf(sb, "                <span class=\"meta-item\"><strong>Created:</strong> %s</span>\n", formatTimestamp(cs.CreatedAt))
	fmt.Fprintf(sb, "                <span class=\"meta-item\"><strong>Updated:</strong> %s</span>\n", formatTimestamp(cs.UpdatedAt))
	fmt.Fprintf(sb, "                <span class=\"meta-item\"><strong>Messages:</strong> %d</span>\n", len(cs.Messages))
	sb.WriteString("                <button class=\"theme-toggle\" onclick=\"toggleTheme()\" title=\"Toggle theme\">[Theme]</button>\n")
	sb.WriteString("            </div>\n        </header>\n")
}

func (e *HTMLExporter) writeMessage(sb *strings.Builder, msg model.Message) {
	class := "user"
	if msg.Sender == model.SenderAI {
		class = "ai"
	}
	fmt.Fprintf(sb, "            <div class=\"message %s-message\" id=\"msg-%s\">\n", class, html.EscapeString(msg.ID))
	sb.WriteString("                <div class=\"message-header\">\n")
	fmt.Fprintf(sb, "                    <span class=\"role-label\">%s</span>\n", html.EscapeString(msg.Sender.DisplayName()))
	if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
		fmt.Fprintf(sb, "                    <span class=\"timestamp\">%s</span>\n", formatShortTimestamp(msg.Timestamp))
	}
	sb.WriteString("                </div>\n")

	if msg.HasAttachedImage {
		e.writeImage(sb, msg)
	}

	if e.options.IncludeReasoning && msg.Reasoning != "" {
		sb.WriteString("                <details class=\"reasoning\"><summary>Reasoning</summary>\n")
		fmt.Fprintf(sb, "<pre>%s</pre>\n", html.EscapeString(strings.TrimSpace(msg.Reasoning)))
		sb.WriteString("                </details>\n")
	}

	sb.WriteString("                <div class=\"message-content\">\n")
	if msg.Sender == model.SenderAI {
		sb.WriteString(e.renderBlocks(e.formatter.Format(msg.Content)))
	} else {
		sb.WriteString(renderPlain(msg.Content))
	}
	sb.WriteString("                </div>\n")

	if ws := msg.WebSearchMetadata; ws != nil && len(ws.Results) > 0 {
		writeSources(sb, ws)
	}

	if msg.Sender == model.SenderAI && e.options.IncludeMetadata {
		if stats := messageStats(msg); stats != "" {
			fmt.Fprintf(sb, "                <div class=\"message-stats\"><span class=\"stat\">%s</span></div>\n", html.EscapeString(stats))
		}
	}
	sb.WriteString("            </div>\n")
}

func (e *HTMLExporter) writeImage(sb *strings.Builder, msg model.Message) {
	sb.WriteString("                <div class=\"attachment\">\n")
	if e.options.IncludeImages && msg.ImageData != "" {
		fmt.Fprintf(sb, "                    <img src=\"data:%s;base64,%s\" alt=\"attached image\">\n",
			imageMime(msg.ImageData), html.EscapeString(msg.ImageData))
	} else {
		sb.WriteString("                    <em>[Image attached]</em>\n")
	}
	if vm := msg.VisionMetadata; vm != nil && vm.Description != "" {
		fmt.Fprintf(sb, "                    <p class=\"vision\"><strong>Image description</strong> (%s): %s</p>\n",
			html.EscapeString(vm.Model), html.EscapeString(vm.Description))
	}
	sb.WriteString("                </div>\n")
}

func writeSources(sb *strings.Builder, ws *model.SearchMetadata) {
	fmt.Fprintf(sb, "                <div class=\"sources\"><strong>Sources</strong> <span class=\"search-mode\">%s</span>\n",
		html.EscapeString(string(ws.Mode)))
	sb.WriteString("                    <ol>\n")
	for _, r := range ws.Results {
		fmt.Fprintf(sb, "                        <li><a href=\"%s\" rel=\"noopener noreferrer\">%s</a></li>\n",
			html.EscapeString(r.URL), html.EscapeString(r.Title))
	}
	sb.WriteString("                    </ol>\n                </div>\n")
}

// =============================================================================
// CONTENT FORMATTING
// =============================================================================

// renderBlocks turns formatter output into markup. Consecutive list items
// share one list element; paragraph lines joined by LineBreak share one <p>.
func (e *HTMLExporter) renderBlocks(blocks []format.Block) string {
	var sb strings.Builder
	inPara := false
	listTag := ""

	closeList := func() {
		if listTag != "" {
			fmt.Fprintf(&sb, "</%s>\n", listTag)
			listTag = ""
		}
	}

	for _, b := range blocks {
		if p, ok := b.(*format.Paragraph); ok {
			closeList()
			if !inPara {
				sb.WriteString("<p>")
				inPara = true
			}
			sb.WriteString(renderSpans(p.Spans))
			if p.LineBreak {
				sb.WriteString("<br>\n")
			} else {
				sb.WriteString("</p>\n")
				inPara = false
			}
			continue
		}
		if inPara {
			sb.WriteString("</p>\n")
			inPara = false
		}
		if li, ok := b.(*format.ListItem); ok {
			tag := "ul"
			if li.Ordered {
				tag = "ol"
			}
			if tag != listTag {
				closeList()
				fmt.Fprintf(&sb, "<%s>\n", tag)
				listTag = tag
			}
			fmt.Fprintf(&sb, "<li class=\"indent-%d\"", li.Indent)
			if li.Ordered {
				if n, err := strconv.Atoi(strings.TrimRight(li.Marker, ".)")); err == nil {
					fmt.Fprintf(&sb, " value=\"%d\"", n)
				}
			}
			fmt.Fprintf(&sb, ">%s</li>\n", renderSpans(li.Spans))
			continue
		}
		closeList()

		switch v := b.(type) {
		case *format.Heading:
			level := v.Level + 1 // h1 is the session title
			if level > 6 {
				level = 6
			}
			fmt.Fprintf(&sb, "<h%d>%s</h%d>\n", level, renderSpans(v.Spans), level)
		case *format.Blockquote:
			fmt.Fprintf(&sb, "<blockquote>%s</blockquote>\n", renderSpans(v.Spans))
		case *format.CodeBlock:
			writeCode(&sb, v)
		case *format.MathBlock:
			fmt.Fprintf(&sb, "<div class=\"math-block\" title=\"%s\">%s</div>\n",
				html.EscapeString(v.Source), html.EscapeString(v.Rendered))
		case *format.Table:
			writeTable(&sb, v.Header, v.Rows)
		case *format.Chart:
			writeChart(&sb, v)
		case *format.HorizontalRule:
			sb.WriteString("<hr>\n")
		}
	}
	if inPara {
		sb.WriteString("</p>\n")
	}
	closeList()
	return sb.String()
}

func writeCode(sb *strings.Builder, c *format.CodeBlock) {
	sb.WriteString("<div class=\"code-block\">")
	// SECURITY: language comes from model output.
	lang := html.EscapeString(c.Language)
	if lang != "" {
		fmt.Fprintf(sb, "<div class=\"code-lang\">%s</div>", lang)
	}
	fmt.Fprintf(sb, "<pre><code class=\"language-%s\">%s</code></pre>", lang, html.EscapeString(c.Code))
	if len(c.Explanation) > 0 {
		sb.WriteString("<div class=\"code-explanation\">")
		for _, line := range c.Explanation {
			fmt.Fprintf(sb, "<p>%s</p>", renderSpans(line))
		}
		sb.WriteString("</div>")
	}
	sb.WriteString("</div>\n")
}

func writeTable(sb *strings.Builder, header []string, rows [][]string) {
	sb.WriteString("<table class=\"data-table\">\n<thead><tr>")
	for _, h := range header {
		fmt.Fprintf(sb, "<th>%s</th>", html.EscapeString(h))
	}
	sb.WriteString("</tr></thead>\n<tbody>\n")
	for _, row := range rows {
		sb.WriteString("<tr>")
		for _, cell := range row {
			fmt.Fprintf(sb, "<td>%s</td>", html.EscapeString(cell))
		}
		sb.WriteString("</tr>\n")
	}
	sb.WriteString("</tbody>\n</table>\n")
}

// writeChart renders a chart's data as a table under its title. Invalid
// charts show the error and the raw definition.
func writeChart(sb *strings.Builder, c *format.Chart) {
	if c.Err != nil || c.Spec == nil {
		msg := "incomplete chart"
		if c.Err != nil {
			msg = c.Err.Error()
		}
		fmt.Fprintf(sb, "<div class=\"chart chart-error\"><p class=\"error\">%s</p><pre>%s</pre></div>\n",
			html.EscapeString(msg), html.EscapeString(c.Raw))
		return
	}
	spec := c.Spec
	fmt.Fprintf(sb, "<figure class=\"chart chart-%s\">\n", html.EscapeString(string(spec.Type)))
	if spec.Title != "" {
		fmt.Fprintf(sb, "<figcaption>%s</figcaption>\n", html.EscapeString(spec.Title))
	}
	header := append([]string{"name"}, spec.Series...)
	rows := make([][]string, 0, len(spec.Data))
	for _, rec := range spec.Data {
		row := []string{rec.Name}
		for _, s := range spec.Series {
			row = append(row, strconv.FormatFloat(rec.Values[s], 'g', -1, 64))
		}
		rows = append(rows, row)
	}
	writeTable(sb, header, rows)
	sb.WriteString("</figure>\n")
}

func renderSpans(spans []format.Span) string {
	var sb strings.Builder
	for _, s := range spans {
		switch s.Kind {
		case format.SpanCode:
			fmt.Fprintf(&sb, "<code class=\"inline-code\">%s</code>", html.EscapeString(s.Text))
		case format.SpanBold:
			fmt.Fprintf(&sb, "<strong>%s</strong>", html.EscapeString(s.Text))
		case format.SpanMath:
			fmt.Fprintf(&sb, "<span class=\"math\" title=\"%s\">%s</span>",
				html.EscapeString(s.Text), html.EscapeString(s.Rendered))
		default:
			sb.WriteString(html.EscapeString(s.Text))
		}
	}
	return sb.String()
}

// renderPlain escapes user text and keeps its line structure.
func renderPlain(content string) string {
	var sb strings.Builder
	for _, para := range strings.Split(strings.TrimSpace(content), "\n\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		lines := strings.Split(para, "\n")
		for i, l := range lines {
			lines[i] = html.EscapeString(l)
		}
		fmt.Fprintf(&sb, "<p>%s</p>\n", strings.Join(lines, "<br>\n"))
	}
	return sb.String()
}

// imageMime sniffs the MIME type of base64 image data.
func imageMime(b64 string) string {
	head := b64
	if len(head) > 684 {
		head = head[:684]
	}
	data, err := base64.StdEncoding.DecodeString(head)
	if err != nil {
		return "image/png"
	}
	if mt := http.DetectContentType(data); strings.HasPrefix(mt, "image/") {
		return mt
	}
	return "image/png"
}

// =============================================================================
// EMBEDDED ASSETS
// =============================================================================

const pageCSS = `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --font-sans: system-ui, -apple-system, "Segoe UI", Roboto, sans-serif;
            --font-mono: "JetBrains Mono", "Fira Code", Menlo, Consolas, monospace;
        }

        .dark-theme {
            --bg: #14161f;
            --surface: #1d2030;
            --raised: #2a2e44;
            --text: #d7dcf2;
            --muted: #7a80a3;
            --border: #33385a;
            --user: #5fa8ff;
            --ai: #b48cff;
            --code-bg: #11131b;
            --error: #ff6b81;
        }

        .light-theme {
            --bg: #fafbfc;
            --surface: #ffffff;
            --raised: #eef0f5;
            --text: #1f2330;
            --muted: #676d85;
            --border: #dde0ea;
            --user: #1769d1;
            --ai: #7442c8;
            --code-bg: #f3f4f8;
            --error: #c8233c;
        }

        body { font-family: var(--font-sans); line-height: 1.6; color: var(--text); background: var(--bg); padding: 20px; }
        .container { max-width: 920px; margin: 0 auto; background: var(--surface); border-radius: 10px; overflow: hidden; }
        .header { padding: 28px 32px; background: var(--raised); border-bottom: 1px solid var(--border); }
        .header h1 { font-size: 26px; margin-bottom: 12px; }
        .metadata { display: flex; flex-wrap: wrap; gap: 16px; font-size: 14px; color: var(--muted); align-items: center; }
        .theme-toggle { margin-left: auto; background: var(--surface); color: var(--text); border: 1px solid var(--border); border-radius: 6px; padding: 4px 10px; cursor: pointer; }

        .conversation { padding: 24px 32px; }
        .message { margin-bottom: 20px; padding: 18px 20px; border-radius: 8px; border-left: 4px solid transparent; background: var(--raised); }
        .user-message { border-left-color: var(--user); }
        .ai-message { border-left-color: var(--ai); background: var(--surface); border: 1px solid var(--border); border-left: 4px solid var(--ai); }
        .message-header { display: flex; justify-content: space-between; margin-bottom: 10px; font-size: 14px; }
        .role-label { font-weight: 600; }
        .timestamp { color: var(--muted); font-family: var(--font-mono); font-size: 13px; }
        .message-content p { margin-bottom: 10px; }
        .message-content h2, .message-content h3, .message-content h4, .message-content h5 { margin: 14px 0 8px; }
        .message-content ul, .message-content ol { margin: 0 0 10px 24px; }
        .message-content li.indent-1 { margin-left: 20px; }
        .message-content li.indent-2 { margin-left: 40px; }
        .message-content blockquote { border-left: 3px solid var(--border); padding-left: 12px; color: var(--muted); margin-bottom: 10px; }
        .message-content hr { border: none; border-top: 1px solid var(--border); margin: 14px 0; }

        .code-block { margin: 14px 0; border: 1px solid var(--border); border-radius: 8px; overflow: hidden; background: var(--code-bg); }
        .code-lang { padding: 6px 14px; background: var(--raised); font-size: 12px; text-transform: uppercase; color: var(--muted); }
        .code-block pre { padding: 14px; overflow-x: auto; }
        .code-block code, .inline-code { font-family: var(--font-mono); font-size: 14px; }
        .code-explanation { padding: 10px 14px; border-top: 1px dashed var(--border); font-size: 14px; color: var(--muted); }
        .inline-code { padding: 1px 5px; background: var(--code-bg); border: 1px solid var(--border); border-radius: 4px; color: var(--ai); }

        .math-block { margin: 12px 0; padding: 10px; text-align: center; font-family: var(--font-mono); background: var(--code-bg); border-radius: 6px; }
        .math { font-family: var(--font-mono); }

        .data-table { border-collapse: collapse; margin: 12px 0; width: 100%; font-size: 14px; }
        .data-table th, .data-table td { border: 1px solid var(--border); padding: 6px 10px; text-align: left; }
        .data-table th { background: var(--raised); }
        .chart figcaption { font-weight: 600; margin-top: 12px; }
        .chart-error pre { font-family: var(--font-mono); font-size: 13px; white-space: pre-wrap; }

        .reasoning { margin-bottom: 10px; font-size: 14px; color: var(--muted); }
        .reasoning pre { white-space: pre-wrap; font-family: var(--font-sans); padding: 8px 0 0 12px; }
        .attachment img { max-width: 100%; border-radius: 6px; margin-bottom: 8px; }
        .vision { font-size: 14px; color: var(--muted); margin-bottom: 8px; }
        .sources { margin-top: 10px; font-size: 14px; }
        .sources ol { margin-left: 22px; }
        .sources a { color: var(--user); }
        .search-mode { color: var(--muted); font-size: 12px; }
        .message-stats { margin-top: 10px; padding-top: 8px; border-top: 1px solid var(--border); font-size: 13px; color: var(--muted); }
        .footer { padding: 18px 32px; text-align: center; font-size: 14px; color: var(--muted); border-top: 1px solid var(--border); }
        .error { color: var(--error); }

        @media print {
            .theme-toggle { display: none; }
            .message { page-break-inside: avoid; }
        }
    </style>
`

const themeScript = `    <script>
        function toggleTheme() {
            const next = document.body.classList.contains('dark-theme') ? 'light' : 'dark';
            document.body.className = next + '-theme';
            localStorage.setItem('orphion-theme', next);
        }
        document.addEventListener('DOMContentLoaded', function() {
            const saved = localStorage.getItem('orphion-theme');
            if (saved) { document.body.className = saved + '-theme'; }
        });
    </script>
`
