// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"strings"
	"time"
)

// DefaultSessionTitle is the title of a session before the first user message.
const DefaultSessionTitle = "New Chat"

// ChatSession is a titled, ordered list of messages.
type ChatSession struct {
	ID                      string    `json:"id"`
	Title                   string    `json:"title"`
	Messages                []Message `json:"messages"`
	CreatedAt               time.Time `json:"createdAt"`
	UpdatedAt               time.Time `json:"updatedAt"`
	TitleGenerated          bool      `json:"titleGenerated"`
	TitleGenerationAttempts int       `json:"titleGenerationAttempts"`
}

// NewSession returns an empty session stamped with the current time.
func NewSession() ChatSession {
	now := Now()
	return ChatSession{
		ID:        NewID(),
		Title:     DefaultSessionTitle,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can mutate the result freely.
func (s ChatSession) Clone() ChatSession {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.Clone()
	}
	return out
}

// Touch returns t if it is not before UpdatedAt, otherwise UpdatedAt.
// Used to keep UpdatedAt monotonic when the wall clock steps back.
func (s ChatSession) Touch(t time.Time) time.Time {
	if t.Before(s.UpdatedAt) {
		return s.UpdatedAt
	}
	return t
}

// FindMessage returns the index of the message with the given ID, or -1.
func (s ChatSession) FindMessage(id string) int {
	for i, m := range s.Messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// UserMessageCount returns the number of messages sent by the user.
func (s ChatSession) UserMessageCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.IsUser() {
			n++
		}
	}
	return n
}

// Preview returns the first user message, for listings.
func (s ChatSession) Preview() string {
	for _, m := range s.Messages {
		if m.IsUser() {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}

// LastMessage returns the final message and true, or false when empty.
func (s ChatSession) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// SortByUpdated orders sessions most recently updated first.
// Ties fall back to ID so the order is stable across loads.
func SortByUpdated(sessions []ChatSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
}
