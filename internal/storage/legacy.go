// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/orphion/orphion/internal/events"
	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/util"
)

// =============================================================================
// LEGACY SCHEMA
// =============================================================================

// legacyID accepts string or numeric IDs.
type legacyID string

func (id *legacyID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = legacyID(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return err
	}
	*id = legacyID(data)
	return nil
}

type legacySession struct {
	ID             legacyID        `json:"id"`
	Title          string          `json:"title"`
	Messages       []legacyMessage `json:"messages"`
	CreatedAt      TaggedDate      `json:"createdAt"`
	UpdatedAt      TaggedDate      `json:"updatedAt"`
	TitleGenerated *bool           `json:"titleGenerated"`
}

type legacyMessage struct {
	ID        legacyID   `json:"id"`
	Content   string     `json:"content"`
	Text      string     `json:"text"`
	Sender    string     `json:"sender"`
	Role      string     `json:"role"`
	IsUser    *bool      `json:"isUser"`
	Timestamp TaggedDate `json:"timestamp"`
	Reasoning string     `json:"reasoning"`
}

// MigrationReport describes what MigrateLegacy did.
type MigrationReport struct {
	Migrated bool
	Sessions int
	Messages int
	// Sources lists the legacy keys that were read.
	Sources []string
}

// MigrateLegacy converts sessions stored under the legacy keys into the
// current schema. It does nothing when the current collection already
// holds sessions, which makes repeated calls safe. Legacy keys are removed
// after a successful write.
func (r *Repository) MigrateLegacy(ctx context.Context) (MigrationReport, error) {
	var report MigrationReport

	empty, err := r.IsEmpty(ctx)
	if err != nil || !empty {
		return report, err
	}

	var sessions []model.ChatSession

	if raw, ok, err := r.kv.Get(ctx, LegacyHistoryKey); err != nil {
		return report, err
	} else if ok {
		var legacy []legacySession
		if err := json.Unmarshal([]byte(raw), &legacy); err != nil {
			r.log.Warn("skipping unreadable legacy history", "key", LegacyHistoryKey, "error", err)
		} else {
			for _, ls := range legacy {
				sessions = append(sessions, convertLegacySession(ls))
			}
			report.Sources = append(report.Sources, LegacyHistoryKey)
		}
	}

	if raw, ok, err := r.kv.Get(ctx, LegacyMessagesKey); err != nil {
		return report, err
	} else if ok {
		var legacy []legacyMessage
		if err := json.Unmarshal([]byte(raw), &legacy); err != nil {
			r.log.Warn("skipping unreadable legacy messages", "key", LegacyMessagesKey, "error", err)
		} else {
			if len(legacy) > 0 {
				sessions = append(sessions, convertLegacySession(legacySession{Messages: legacy}))
			}
			report.Sources = append(report.Sources, LegacyMessagesKey)
		}
	}

	if len(sessions) == 0 {
		return report, nil
	}

	wrote, err := r.replaceIfEmpty(ctx, sessions)
	if err != nil || !wrote {
		return report, err
	}

	for _, key := range report.Sources {
		if err := r.kv.Remove(ctx, key); err != nil {
			r.log.Warn("failed to remove legacy key", "key", key, "error", err)
		}
	}

	report.Migrated = true
	report.Sessions = len(sessions)
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
		report.Messages += len(s.Messages)
	}
	r.log.Info("migrated legacy sessions", "sessions", report.Sessions, "messages", report.Messages)
	r.publish(events.Migrated, ids...)
	return report, nil
}

func convertLegacySession(ls legacySession) model.ChatSession {
	now := model.Now()
	s := model.ChatSession{
		ID:        string(ls.ID),
		Title:     strings.TrimSpace(ls.Title),
		Messages:  make([]model.Message, 0, len(ls.Messages)),
		CreatedAt: ls.CreatedAt.Time,
		UpdatedAt: ls.UpdatedAt.Time,
	}
	if s.ID == "" {
		s.ID = model.NewID()
	}

	// Missing timestamps inherit the previous message's, so order is kept.
	prev := s.CreatedAt
	for _, lm := range ls.Messages {
		m := convertLegacyMessage(lm)
		if m.Timestamp.IsZero() {
			if prev.IsZero() {
				m.Timestamp = now
			} else {
				m.Timestamp = prev
			}
		}
		prev = m.Timestamp
		s.Messages = append(s.Messages, m)
	}

	if s.CreatedAt.IsZero() {
		if len(s.Messages) > 0 {
			s.CreatedAt = s.Messages[0].Timestamp
		} else {
			s.CreatedAt = now
		}
	}
	if last, ok := s.LastMessage(); ok && last.Timestamp.After(s.UpdatedAt) {
		s.UpdatedAt = last.Timestamp
	}
	if s.UpdatedAt.Before(s.CreatedAt) {
		s.UpdatedAt = s.CreatedAt
	}

	switch {
	case s.Title == "" || s.Title == model.DefaultSessionTitle:
		s.Title = model.DefaultSessionTitle
		if p := s.Preview(); p != "" {
			s.Title = util.PrefixWithEllipsis(p, 30)
		}
	case ls.TitleGenerated == nil:
		// A titled legacy session already has the title the user saw.
		s.TitleGenerated = true
	}
	if ls.TitleGenerated != nil {
		s.TitleGenerated = *ls.TitleGenerated
	}
	return s
}

func convertLegacyMessage(lm legacyMessage) model.Message {
	m := model.Message{
		ID:        string(lm.ID),
		Content:   lm.Content,
		Sender:    legacySender(lm),
		Timestamp: lm.Timestamp.Time,
		Reasoning: lm.Reasoning,
	}
	if m.Content == "" {
		m.Content = lm.Text
	}
	if m.ID == "" {
		m.ID = model.NewID()
	}
	return m
}

func legacySender(lm legacyMessage) model.Sender {
	if lm.IsUser != nil {
		if *lm.IsUser {
			return model.SenderUser
		}
		return model.SenderAI
	}
	v := lm.Sender
	if v == "" {
		v = lm.Role
	}
	switch strings.ToLower(v) {
	case "user", "human", "you":
		return model.SenderUser
	default:
		return model.SenderAI
	}
}
