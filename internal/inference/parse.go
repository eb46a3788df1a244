// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import (
	"regexp"
	"strings"
)

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

var searchDirectiveRegex = regexp.MustCompile(`\[WEB_SEARCH\s+"([^"\n]+)"\s*\]`)

// ExtractReasoning removes every <think>...</think> segment from text and
// returns the visible content and the joined reasoning. An unterminated
// <think> makes the rest of the text reasoning.
func ExtractReasoning(text string) (content, reasoning string) {
	var visible, thoughts strings.Builder
	rest := text
	for {
		start := strings.Index(rest, thinkOpen)
		if start < 0 {
			visible.WriteString(rest)
			break
		}
		visible.WriteString(rest[:start])
		rest = rest[start+len(thinkOpen):]

		end := strings.Index(rest, thinkClose)
		if thoughts.Len() > 0 {
			thoughts.WriteString("\n\n")
		}
		if end < 0 {
			thoughts.WriteString(strings.TrimSpace(rest))
			break
		}
		thoughts.WriteString(strings.TrimSpace(rest[:end]))
		rest = rest[end+len(thinkClose):]
	}
	return strings.TrimSpace(visible.String()), strings.TrimSpace(thoughts.String())
}

// ParseSearchDirective returns the query of the first [WEB_SEARCH "..."]
// directive in text.
func ParseSearchDirective(text string) (query string, ok bool) {
	m := searchDirectiveRegex.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	query = strings.TrimSpace(m[1])
	return query, query != ""
}

// StripSearchDirectives removes all search directives from text.
func StripSearchDirectives(text string) string {
	return strings.TrimSpace(searchDirectiveRegex.ReplaceAllString(text, ""))
}

// VisibleSoFar returns the displayable part of a reply that is still
// arriving: reasoning and complete search directives are removed, and a
// tag or directive whose opening has only partly arrived is held back.
func VisibleSoFar(raw string) string {
	content, _ := ExtractReasoning(raw)
	content = StripSearchDirectives(content)
	if i := strings.LastIndex(content, "[WEB_SEARCH"); i >= 0 {
		content = content[:i]
	}
	for _, tag := range []string{thinkOpen, "[WEB_SEARCH"} {
		content = trimPartial(content, tag)
	}
	return strings.TrimSpace(content)
}

// trimPartial cuts a trailing proper prefix of tag from s.
func trimPartial(s, tag string) string {
	for n := len(tag) - 1; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return s[:len(s)-n]
		}
	}
	return s
}
