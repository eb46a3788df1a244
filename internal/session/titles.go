// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/orphion/orphion/internal/events"
	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/storage"
	"github.com/orphion/orphion/internal/util"
)

const (
	// MaxTitleLength is the rune cap for a cleaned title.
	MaxTitleLength = 50

	// MaxTitleAttempts is how many attempts may fall back to keywords.
	MaxTitleAttempts = 3

	// titleContextMessages is how many opening messages the generator sees.
	titleContextMessages = 6

	minTitleLength   = 3
	minKeywordLength = 5
	maxKeywords      = 3
)

// =============================================================================
// TITLE GENERATION
// =============================================================================

// GenerateAndUpdateTitle asks the title generator for a title based on the
// opening messages of cs, cleans it and persists it. Unusable titles fall
// back to keywords from the user's messages while fewer than
// MaxTitleAttempts attempts were made, after which the current title is
// kept. The result always has TitleGenerated set.
//
// Only the title fields of the stored session are updated, so messages
// saved meanwhile are kept.
func (s *Service) GenerateAndUpdateTitle(ctx context.Context, cs model.ChatSession) (model.ChatSession, error) {
	out := cs.Clone()
	priorAttempts := out.TitleGenerationAttempts
	out.TitleGenerationAttempts++

	var raw string
	if s.titles != nil {
		n := min(len(out.Messages), titleContextMessages)
		generated, err := s.titles.GenerateTitle(ctx, out.Messages[:n])
		if err != nil {
			s.log.Warn("title generation failed", "session", out.ID, "error", err)
		}
		raw = generated
	}

	title := CleanupTitle(raw)
	if !UsableTitle(title) {
		title = ""
		if priorAttempts < MaxTitleAttempts {
			title = KeywordTitle(out.Messages)
		}
	}
	if title != "" {
		out.Title = title
	}
	out.TitleGenerated = true

	s.log.Debug("title updated", "session", out.ID, "title", out.Title, "attempts", out.TitleGenerationAttempts)

	_, err := s.repo.Update(ctx, out.ID, events.TitleUpdated, func(stored *model.ChatSession) bool {
		stored.Title = out.Title
		stored.TitleGenerated = true
		stored.TitleGenerationAttempts = max(stored.TitleGenerationAttempts, out.TitleGenerationAttempts)
		return true
	})
	if errors.Is(err, storage.ErrSessionNotFound) {
		err = s.repo.Put(ctx, out)
	}
	if err != nil {
		return out, err
	}
	return out, nil
}

// =============================================================================
// TITLE CLEANUP
// =============================================================================

// boilerplate matches phrases models put in front of a title. Patterns are
// anchored at the start and must not depend on what follows the match, so
// truncation cannot create a new match.
var boilerplate = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(?:sure|okay|ok|certainly|absolutely)[,!.]?\s+`),
	regexp.MustCompile(`(?i)^(?:here(?:'s|’s| is)\s+)?(?:a|an|the|my)\s+(?:short\s+|concise\s+|suggested\s+|possible\s+)?title(?:\s+for\s+(?:this|the|your)\s+(?:conversation|chat|discussion))?(?:\s+is\s*[:\-–]\s*|\s+is\s+|\s*[:\-–]\s*)`),
	regexp.MustCompile(`(?i)^(?:chat\s+|conversation\s+)?title\s*[:\-–]\s*`),
	regexp.MustCompile(`(?i)^(?:a\s+|the\s+)?(?:conversation|discussion|chat)\s+(?:about|on|regarding)\s+`),
	regexp.MustCompile(`(?i)^(?:a\s+)?(?:question|questions|inquiry)\s+(?:about|on|regarding)\s+`),
	regexp.MustCompile(`(?i)^(?:the\s+)?user\s+(?:asks|asked|wants|is\s+asking)\s+(?:about\s+)?`),
	regexp.MustCompile(`(?i)^(?:help|helping)\s+(?:with|on)\s+`),
	regexp.MustCompile(`^#+\s*`),
}

// quoteChars are removed wherever they appear.
const quoteChars = "\"“”`*"

// edgeQuotes are removed only at either end, since they double as
// apostrophes inside words.
const edgeQuotes = "'‘’"

const trailingJunk = " .,;:!?-–—"

// genericTitles are placeholders that carry no information.
var genericTitles = map[string]bool{
	"new chat":             true,
	"chat":                 true,
	"new conversation":     true,
	"conversation":         true,
	"general conversation": true,
	"general chat":         true,
	"untitled":             true,
	"untitled chat":        true,
	"chat session":         true,
	"discussion":           true,
	"question":             true,
	"help":                 true,
	"hello":                true,
	"greeting":             true,
	"greetings":            true,
	"title":                true,
	"ai chat":              true,
}

// CleanupTitle normalizes a generated title: whitespace collapsed, quotes
// and boilerplate prefixes removed, trailing punctuation dropped, title
// cased and capped at MaxTitleLength runes. CleanupTitle(CleanupTitle(x))
// equals CleanupTitle(x).
func CleanupTitle(raw string) string {
	t := strings.TrimSpace(util.CollapseWhitespace(firstLine(raw)))

	for {
		prev := t
		t = strings.Map(func(r rune) rune {
			if strings.ContainsRune(quoteChars, r) {
				return -1
			}
			return r
		}, t)
		t = strings.Trim(t, edgeQuotes+" ")
		for _, re := range boilerplate {
			t = re.ReplaceAllString(t, "")
		}
		t = strings.TrimRight(t, trailingJunk)
		t = strings.TrimSpace(t)
		if t == prev {
			break
		}
	}

	t = cases.Title(language.English, cases.NoLower).String(t)
	t = util.TruncateRunesNoEllipsis(t, MaxTitleLength)
	return strings.TrimRight(t, trailingJunk+edgeQuotes)
}

// firstLine returns the first non-blank line of s.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

// UsableTitle reports whether a cleaned title is worth keeping.
func UsableTitle(t string) bool {
	if len([]rune(t)) < minTitleLength {
		return false
	}
	return !genericTitles[strings.ToLower(t)]
}

// =============================================================================
// KEYWORD FALLBACK
// =============================================================================

var stopWords = map[string]bool{
	"about": true, "above": true, "after": true, "again": true, "against": true,
	"being": true, "below": true, "between": true, "could": true, "doing": true,
	"during": true, "every": true, "first": true, "further": true, "great": true,
	"having": true, "maybe": true, "might": true, "other": true, "please": true,
	"really": true, "right": true, "should": true, "since": true, "something": true,
	"still": true, "thank": true, "thanks": true, "their": true, "there": true,
	"these": true, "thing": true, "things": true, "think": true, "those": true,
	"through": true, "under": true, "until": true, "wanted": true, "wants": true,
	"where": true, "which": true, "while": true, "would": true, "whats": true,
	"explain": true, "example": true, "tell": true, "without": true, "because": true,
	"another": true, "anything": true, "everything": true, "someone": true, "going": true,
}

// KeywordTitle builds a title from the most frequent words of at least
// five letters in the user's messages, ignoring stop words. Ties keep the
// word that appeared first. Returns "" when no word qualifies.
func KeywordTitle(messages []model.Message) string {
	type count struct {
		word  string
		n     int
		first int
	}
	counts := make(map[string]*count)
	pos := 0
	for _, m := range messages {
		if !m.IsUser() {
			continue
		}
		for _, w := range words(m.Content) {
			pos++
			if len([]rune(w)) < minKeywordLength || stopWords[w] {
				continue
			}
			if c, ok := counts[w]; ok {
				c.n++
				continue
			}
			counts[w] = &count{word: w, n: 1, first: pos}
		}
	}
	if len(counts) == 0 {
		return ""
	}

	ranked := make([]*count, 0, len(counts))
	for _, c := range counts {
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].n != ranked[j].n {
			return ranked[i].n > ranked[j].n
		}
		return ranked[i].first < ranked[j].first
	})

	caser := cases.Title(language.English)
	picked := make([]string, 0, maxKeywords)
	for _, c := range ranked[:min(len(ranked), maxKeywords)] {
		picked = append(picked, caser.String(c.word))
	}
	return strings.Join(picked, " ")
}

// words splits s into lower-case letter runs. Apostrophes are dropped so
// "what's" becomes "whats".
func words(s string) []string {
	s = strings.NewReplacer("'", "", "’", "").Replace(strings.ToLower(s))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}
