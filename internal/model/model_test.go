// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"testing"
	"time"
)

func TestNowIsMillisecondUTC(t *testing.T) {
	now := Now()
	if now.Location() != time.UTC {
		t.Errorf("Now() location = %v, want UTC", now.Location())
	}
	if now.Nanosecond()%int(time.Millisecond) != 0 {
		t.Errorf("Now() has sub-millisecond precision: %v", now)
	}
}

func TestNewSession(t *testing.T) {
	s := NewSession()
	if s.ID == "" {
		t.Fatal("expected session ID")
	}
	if s.Title != DefaultSessionTitle {
		t.Errorf("Title = %q, want %q", s.Title, DefaultSessionTitle)
	}
	if s.TitleGenerated || s.TitleGenerationAttempts != 0 {
		t.Error("new session should not have a generated title")
	}
	if !s.CreatedAt.Equal(s.UpdatedAt) {
		t.Error("CreatedAt and UpdatedAt should match on creation")
	}
}

func TestSessionCloneIsDeep(t *testing.T) {
	gen := 1.5
	s := NewSession()
	s.Messages = append(s.Messages, Message{
		ID:                    "m1",
		Content:               "a",
		Sender:                SenderAI,
		GenerationTimeSeconds: &gen,
		Versions:              []MessageVersion{{Content: "a"}},
		WebSearchMetadata:     &SearchMetadata{Query: "q", Results: []SearchResult{{URL: "u"}}},
	})

	c := s.Clone()
	c.Messages[0].Content = "b"
	c.Messages[0].Versions[0].Content = "b"
	*c.Messages[0].GenerationTimeSeconds = 9
	c.Messages[0].WebSearchMetadata.Results[0].URL = "changed"

	orig := s.Messages[0]
	if orig.Content != "a" || orig.Versions[0].Content != "a" {
		t.Error("clone shares message storage with original")
	}
	if *orig.GenerationTimeSeconds != 1.5 {
		t.Error("clone shares generation time pointer")
	}
	if orig.WebSearchMetadata.Results[0].URL != "u" {
		t.Error("clone shares search results")
	}
}

func TestTouchIsMonotonic(t *testing.T) {
	s := NewSession()
	earlier := s.UpdatedAt.Add(-time.Hour)
	if got := s.Touch(earlier); !got.Equal(s.UpdatedAt) {
		t.Errorf("Touch(earlier) = %v, want %v", got, s.UpdatedAt)
	}
	later := s.UpdatedAt.Add(time.Hour)
	if got := s.Touch(later); !got.Equal(later) {
		t.Errorf("Touch(later) = %v, want %v", got, later)
	}
}

func TestSortByUpdated(t *testing.T) {
	base := Now()
	sessions := []ChatSession{
		{ID: "a", UpdatedAt: base},
		{ID: "b", UpdatedAt: base.Add(time.Minute)},
		{ID: "c", UpdatedAt: base.Add(-time.Minute)},
	}
	SortByUpdated(sessions)
	got := sessions[0].ID + sessions[1].ID + sessions[2].ID
	if got != "bac" {
		t.Errorf("order = %s, want bac", got)
	}
}

func TestSearchModeParameters(t *testing.T) {
	tests := []struct {
		mode    SearchMode
		results int
		depth   string
	}{
		{SearchGeneral, 5, "basic"},
		{SearchDeep, 20, "advanced"},
	}
	for _, tt := range tests {
		if got := tt.mode.MaxResults(); got != tt.results {
			t.Errorf("%s MaxResults = %d, want %d", tt.mode, got, tt.results)
		}
		if got := tt.mode.Depth(); got != tt.depth {
			t.Errorf("%s Depth = %q, want %q", tt.mode, got, tt.depth)
		}
	}
	if ParseSearchMode("deep") != SearchDeep {
		t.Error(`ParseSearchMode("deep") should be Deep Search`)
	}
	if ParseSearchMode("whatever") != SearchGeneral {
		t.Error("unknown modes should map to General")
	}
}

func TestSenderAPIRole(t *testing.T) {
	if SenderAI.APIRole() != "assistant" {
		t.Errorf("ai role = %q", SenderAI.APIRole())
	}
	if SenderUser.APIRole() != "user" {
		t.Errorf("user role = %q", SenderUser.APIRole())
	}
}
