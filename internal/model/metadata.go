// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// SearchMode selects how much effort a web search spends.
type SearchMode string

const (
	SearchGeneral SearchMode = "General"
	SearchDeep    SearchMode = "Deep Search"
)

// ParseSearchMode accepts the display names plus the short forms used on
// the command line. Unknown values map to SearchGeneral.
func ParseSearchMode(s string) SearchMode {
	switch s {
	case string(SearchDeep), "deep", "Deep", "deep-search", "advanced":
		return SearchDeep
	default:
		return SearchGeneral
	}
}

// MaxResults is the number of results requested for the mode.
func (m SearchMode) MaxResults() int {
	if m == SearchDeep {
		return 20
	}
	return 5
}

// Depth is the search depth parameter sent to the search service.
func (m SearchMode) Depth() string {
	if m == SearchDeep {
		return "advanced"
	}
	return "basic"
}

// SearchResult is one hit returned by the search service.
type SearchResult struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// SearchImage is an image returned alongside search results.
type SearchImage struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// SearchMetadata records the web search that informed an AI message.
type SearchMetadata struct {
	Query      string         `json:"query"`
	Mode       SearchMode     `json:"mode"`
	Answer     string         `json:"answer,omitempty"`
	Results    []SearchResult `json:"results"`
	Images     []SearchImage  `json:"images,omitempty"`
	SearchedAt time.Time      `json:"searchedAt"`
}

// Clone returns a deep copy.
func (m SearchMetadata) Clone() SearchMetadata {
	out := m
	out.Results = append([]SearchResult(nil), m.Results...)
	out.Images = append([]SearchImage(nil), m.Images...)
	return out
}

// VisionMetadata records the image analysis attached to a message.
type VisionMetadata struct {
	Model       string    `json:"model"`
	Prompt      string    `json:"prompt,omitempty"`
	Description string    `json:"description"`
	AnalyzedAt  time.Time `json:"analyzedAt"`
}
