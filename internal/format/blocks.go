// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import "strings"

// =============================================================================
// BLOCK TYPES
// =============================================================================

// Kind identifies the concrete type of a Block.
type Kind int

const (
	KindParagraph Kind = iota
	KindHeading
	KindListItem
	KindBlockquote
	KindCode
	KindMath
	KindTable
	KindChart
	KindHorizontalRule
)

var kindNames = [...]string{
	KindParagraph:      "paragraph",
	KindHeading:        "heading",
	KindListItem:       "list_item",
	KindBlockquote:     "blockquote",
	KindCode:           "code",
	KindMath:           "math",
	KindTable:          "table",
	KindChart:          "chart",
	KindHorizontalRule: "hr",
}

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Block is one rendered unit of a response. Blocks are produced fresh on
// every Format call and never persisted.
type Block interface {
	Kind() Kind
}

// Heading is a "#" to "####" line.
type Heading struct {
	Level int
	Spans []Span
}

// ListItem is a bulleted or numbered line.
type ListItem struct {
	Ordered bool
	// Marker is the number for ordered items and the bullet otherwise.
	Marker string
	// Indent is the nesting depth derived from leading whitespace.
	Indent int
	Spans  []Span
}

// Blockquote is a "> " line.
type Blockquote struct {
	Spans []Span
}

// CodeBlock is a fenced code block. Code is kept verbatim, blank lines
// included. Explanation holds the lines that followed the closing fence up
// to the next block opener, one entry per non-blank line.
type CodeBlock struct {
	Language    string
	Code        string
	Complete    bool
	Explanation [][]Span
}

// ExplanationText returns the explanation lines as plain text.
func (c *CodeBlock) ExplanationText() string {
	lines := make([]string, len(c.Explanation))
	for i, spans := range c.Explanation {
		lines[i] = PlainText(spans)
	}
	return strings.Join(lines, "\n")
}

// MathBlock is display math delimited by $$ or \[ \].
type MathBlock struct {
	Source   string
	Rendered string
	// Fallback is set when Rendered came from the plain substitution table.
	Fallback bool
	Complete bool
}

// Table is a pipe table. Rows may be ragged; they are kept as written.
type Table struct {
	Header []string
	Rows   [][]string
}

// Columns returns the widest row length, header included.
func (t *Table) Columns() int {
	n := len(t.Header)
	for _, r := range t.Rows {
		if len(r) > n {
			n = len(r)
		}
	}
	return n
}

// Chart is a ```chart fence. Exactly one of Spec and Err is set.
type Chart struct {
	Raw      string
	Spec     *ChartSpec
	Err      error
	Complete bool
}

// Paragraph is one line of running text. LineBreak is set when the next
// line continues the same paragraph.
type Paragraph struct {
	Spans     []Span
	LineBreak bool
}

// HorizontalRule is a line of three or more dashes.
type HorizontalRule struct{}

func (*Heading) Kind() Kind        { return KindHeading }
func (*ListItem) Kind() Kind       { return KindListItem }
func (*Blockquote) Kind() Kind     { return KindBlockquote }
func (*CodeBlock) Kind() Kind      { return KindCode }
func (*MathBlock) Kind() Kind      { return KindMath }
func (*Table) Kind() Kind          { return KindTable }
func (*Chart) Kind() Kind          { return KindChart }
func (*Paragraph) Kind() Kind      { return KindParagraph }
func (*HorizontalRule) Kind() Kind { return KindHorizontalRule }
