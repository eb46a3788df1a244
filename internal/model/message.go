// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SENDER TYPE
// =============================================================================

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// String returns the string representation of the sender.
func (s Sender) String() string {
	return string(s)
}

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAI
}

// DisplayName returns a human-readable name for the sender.
func (s Sender) DisplayName() string {
	switch s {
	case SenderUser:
		return "You"
	case SenderAI:
		return "Orphion"
	default:
		return string(s)
	}
}

// APIRole maps the sender onto the role name used by chat completion APIs.
func (s Sender) APIRole() string {
	if s == SenderAI {
		return "assistant"
	}
	return "user"
}

// =============================================================================
// MESSAGE TYPES
// =============================================================================

// MessageVersion is one generated alternative of an AI message.
// Versions are append-only; a regenerate adds a new one.
type MessageVersion struct {
	Content               string    `json:"content"`
	Reasoning             string    `json:"reasoning,omitempty"`
	GenerationTimeSeconds *float64  `json:"generationTime,omitempty"`
	Timestamp             time.Time `json:"timestamp"`
}

// Message is a single entry in a chat session.
//
// When Versions is non-empty, CurrentVersionIndex indexes into it and
// Content/Reasoning mirror the selected version.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`

	Reasoning             string   `json:"reasoning,omitempty"`
	GenerationTimeSeconds *float64 `json:"generationTime,omitempty"`

	Versions            []MessageVersion `json:"versions,omitempty"`
	CurrentVersionIndex int              `json:"currentVersionIndex,omitempty"`

	WebSearchMetadata *SearchMetadata `json:"webSearchMetadata,omitempty"`

	HasAttachedImage bool            `json:"hasAttachedImage,omitempty"`
	ImageData        string          `json:"imageData,omitempty"` // base64, no data: prefix
	VisionMetadata   *VisionMetadata `json:"visionMetadata,omitempty"`
}

// NewMessage creates a message with a fresh ID and the current timestamp.
func NewMessage(sender Sender, content string) Message {
	return Message{
		ID:        NewID(),
		Content:   content,
		Sender:    sender,
		Timestamp: Now(),
	}
}

// IsUser reports whether the message was written by the user.
func (m Message) IsUser() bool {
	return m.Sender == SenderUser
}

// HasVersions reports whether the message carries regenerated versions.
func (m Message) HasVersions() bool {
	return len(m.Versions) > 0
}

// VersionCount returns the number of versions, counting an unversioned
// message as a single version.
func (m Message) VersionCount() int {
	if len(m.Versions) == 0 {
		return 1
	}
	return len(m.Versions)
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Versions != nil {
		out.Versions = make([]MessageVersion, len(m.Versions))
		for i, v := range m.Versions {
			out.Versions[i] = v
			out.Versions[i].GenerationTimeSeconds = cloneFloat(v.GenerationTimeSeconds)
		}
	}
	out.GenerationTimeSeconds = cloneFloat(m.GenerationTimeSeconds)
	if m.WebSearchMetadata != nil {
		sm := m.WebSearchMetadata.Clone()
		out.WebSearchMetadata = &sm
	}
	if m.VisionMetadata != nil {
		vm := *m.VisionMetadata
		out.VisionMetadata = &vm
	}
	return out
}

// Seconds returns a pointer to d expressed in seconds, for the optional
// generation time fields.
func Seconds(d time.Duration) *float64 {
	s := d.Seconds()
	return &s
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// =============================================================================
// HELPERS
// =============================================================================

// NewID returns a new random identifier.
func NewID() string {
	return uuid.NewString()
}

// Now returns the current time in UTC truncated to millisecond precision,
// which is the precision the persisted form keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
