// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"strings"

	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/util"
)

// snippetRadius is how many runes of context surround a match.
const snippetRadius = 40

// Hit is one session matching a search.
type Hit struct {
	Session model.ChatSession
	// TitleMatch is set when the title contains the query.
	TitleMatch bool
	// MessageIDs lists matching messages in conversation order.
	MessageIDs []string
	// Snippet shows the first match in context.
	Snippet string
}

// Search returns the sessions whose title or messages contain query,
// case-insensitively, most recently updated first.
func (s *Service) Search(ctx context.Context, query string) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	all, err := s.repo.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	model.SortByUpdated(all)

	needle := strings.ToLower(query)
	var hits []Hit
	for _, cs := range all {
		hit := Hit{Session: cs}
		if strings.Contains(strings.ToLower(cs.Title), needle) {
			hit.TitleMatch = true
			hit.Snippet = cs.Title
		}
		for _, m := range cs.Messages {
			if !strings.Contains(strings.ToLower(m.Content), needle) {
				continue
			}
			hit.MessageIDs = append(hit.MessageIDs, m.ID)
			if hit.Snippet == "" || hit.Snippet == cs.Title {
				hit.Snippet = snippet(m.Content, needle)
			}
		}
		if hit.TitleMatch || len(hit.MessageIDs) > 0 {
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

// snippet cuts text around the first occurrence of needle (lower case).
func snippet(text, needle string) string {
	runes := []rune(util.CollapseWhitespace(text))
	lower := []rune(strings.ToLower(string(runes)))
	idx := indexRunes(lower, []rune(needle))
	if idx < 0 {
		return util.TruncateRunes(string(runes), 2*snippetRadius)
	}
	start := max(0, idx-snippetRadius)
	end := min(len(runes), idx+len([]rune(needle))+snippetRadius)
	out := string(runes[start:end])
	if start > 0 {
		out = "..." + out
	}
	if end < len(runes) {
		out += "..."
	}
	return out
}

func indexRunes(haystack, needle []rune) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
