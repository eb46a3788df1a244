// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import "strings"

// SpanKind identifies inline formatting.
type SpanKind int

const (
	SpanText SpanKind = iota
	SpanMath
	SpanCode
	SpanBold
)

// Span is a run of inline text. For SpanMath, Text is the LaTeX source and
// Rendered its rendered form.
type Span struct {
	Kind     SpanKind
	Text     string
	Rendered string
	Fallback bool
}

// PlainText flattens spans, using the rendered form of math.
func PlainText(spans []Span) string {
	var b strings.Builder
	for _, s := range spans {
		if s.Kind == SpanMath {
			b.WriteString(s.Rendered)
			continue
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// MathFunc renders inline LaTeX. The bool reports use of the fallback.
type MathFunc func(tex string) (string, bool)

// ParseInline splits text into spans. Passes run math, then code, then
// bold; each pass only scans the plain text the earlier passes left, so
// code inside math (or bold inside code) is never interpreted. Markers
// without a partner stay literal.
func ParseInline(text string, math MathFunc) []Span {
	spans := []Span{{Kind: SpanText, Text: text}}
	spans = splitPass(spans, findInlineMath, SpanMath)
	spans = splitPass(spans, findInlineCode, SpanCode)
	spans = splitPass(spans, findBold, SpanBold)

	out := spans[:0]
	for _, s := range spans {
		if s.Kind == SpanText && s.Text == "" {
			continue
		}
		if s.Kind == SpanMath {
			if math != nil {
				s.Rendered, s.Fallback = math(s.Text)
			} else {
				s.Rendered = s.Text
			}
		}
		out = append(out, s)
	}
	return out
}

// finder locates the next delimited run in s. It returns the byte offsets
// of the whole match and of its content, or ok=false.
type finder func(s string) (start, end, innerStart, innerEnd int, ok bool)

func splitPass(spans []Span, find finder, kind SpanKind) []Span {
	var out []Span
	for _, sp := range spans {
		if sp.Kind != SpanText {
			out = append(out, sp)
			continue
		}
		rest := sp.Text
		for {
			start, end, is, ie, ok := find(rest)
			if !ok {
				out = append(out, Span{Kind: SpanText, Text: rest})
				break
			}
			if start > 0 {
				out = append(out, Span{Kind: SpanText, Text: rest[:start]})
			}
			out = append(out, Span{Kind: kind, Text: rest[is:ie]})
			rest = rest[end:]
		}
	}
	return out
}

// findInlineMath matches $...$ where neither delimiter touches another $,
// so $$ display delimiters are never split into inline math.
func findInlineMath(s string) (int, int, int, int, bool) {
	return findSingle(s, '$')
}

// findInlineCode matches `...` but never a ``` fence.
func findInlineCode(s string) (int, int, int, int, bool) {
	return findSingle(s, '`')
}

func findSingle(s string, delim byte) (int, int, int, int, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != delim {
			continue
		}
		if i > 0 && s[i-1] == delim {
			continue
		}
		if i+1 >= len(s) || s[i+1] == delim {
			// Skip the whole run so its tail is not taken as an opener.
			for i+1 < len(s) && s[i+1] == delim {
				i++
			}
			continue
		}
		j := strings.IndexByte(s[i+1:], delim)
		if j < 0 {
			return 0, 0, 0, 0, false
		}
		j += i + 1
		if j+1 < len(s) && s[j+1] == delim {
			// Closing delimiter is part of a run; this opener is literal.
			continue
		}
		return i, j + 1, i + 1, j, true
	}
	return 0, 0, 0, 0, false
}

func findBold(s string) (int, int, int, int, bool) {
	from := 0
	for {
		i := strings.Index(s[from:], "**")
		if i < 0 {
			return 0, 0, 0, 0, false
		}
		i += from
		j := strings.Index(s[i+2:], "**")
		if j < 0 {
			return 0, 0, 0, 0, false
		}
		j += i + 2
		if j == i+2 {
			// "****" has no content.
			from = i + 2
			continue
		}
		return i, j + 2, i + 2, j, true
	}
}
