// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/orphion/orphion/internal/model"
)

// =============================================================================
// TAGGED DATES
// =============================================================================

// dateTag marks an encoded date in the persisted JSON.
const dateTag = "Date"

// dateLayout is ISO 8601 with millisecond precision in UTC.
const dateLayout = "2006-01-02T15:04:05.000Z"

// TaggedDate is a time.Time that encodes as {"__type":"Date","value":"..."}.
// Decoding also accepts bare date strings, epoch milliseconds and null,
// which older records use. The zero time encodes as null.
type TaggedDate struct {
	time.Time
}

type taggedDateWire struct {
	Type  string `json:"__type"`
	Value string `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (d TaggedDate) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(taggedDateWire{
		Type:  dateTag,
		Value: d.UTC().Format(dateLayout),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *TaggedDate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		d.Time = time.Time{}
		return nil

	case data[0] == '{':
		var w taggedDateWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		if w.Type != dateTag {
			return fmt.Errorf("unexpected tagged type %q", w.Type)
		}
		t, err := parseDate(w.Value)
		if err != nil {
			return err
		}
		d.Time = t
		return nil

	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		t, err := parseDate(s)
		if err != nil {
			return err
		}
		d.Time = t
		return nil

	default:
		ms, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid date %s", data)
		}
		d.Time = time.UnixMilli(ms).UTC()
		return nil
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate reads the date forms seen in stored data and normalizes to UTC
// with millisecond precision.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Millisecond), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// =============================================================================
// PERSISTED FORMS
// =============================================================================

type sessionRecord struct {
	ID                      string          `json:"id"`
	Title                   string          `json:"title"`
	Messages                []messageRecord `json:"messages"`
	CreatedAt               TaggedDate      `json:"createdAt"`
	UpdatedAt               TaggedDate      `json:"updatedAt"`
	TitleGenerated          bool            `json:"titleGenerated"`
	TitleGenerationAttempts int             `json:"titleGenerationAttempts"`
}

type messageRecord struct {
	ID                    string          `json:"id"`
	Content               string          `json:"content"`
	Sender                model.Sender    `json:"sender"`
	Timestamp             TaggedDate      `json:"timestamp"`
	Reasoning             string          `json:"reasoning,omitempty"`
	GenerationTimeSeconds *float64        `json:"generationTime,omitempty"`
	Versions              []versionRecord `json:"versions,omitempty"`
	CurrentVersionIndex   int             `json:"currentVersionIndex,omitempty"`
	WebSearchMetadata     *searchRecord   `json:"webSearchMetadata,omitempty"`
	HasAttachedImage      bool            `json:"hasAttachedImage,omitempty"`
	ImageData             string          `json:"imageData,omitempty"`
	VisionMetadata        *visionRecord   `json:"visionMetadata,omitempty"`
}

type versionRecord struct {
	Content               string     `json:"content"`
	Reasoning             string     `json:"reasoning,omitempty"`
	GenerationTimeSeconds *float64   `json:"generationTime,omitempty"`
	Timestamp             TaggedDate `json:"timestamp"`
}

type searchRecord struct {
	Query      string               `json:"query"`
	Mode       model.SearchMode     `json:"mode"`
	Answer     string               `json:"answer,omitempty"`
	Results    []model.SearchResult `json:"results"`
	Images     []model.SearchImage  `json:"images,omitempty"`
	SearchedAt TaggedDate           `json:"searchedAt"`
}

type visionRecord struct {
	Model       string     `json:"model"`
	Prompt      string     `json:"prompt,omitempty"`
	Description string     `json:"description"`
	AnalyzedAt  TaggedDate `json:"analyzedAt"`
}

// EncodeSessions serializes the whole collection.
func EncodeSessions(sessions []model.ChatSession) (string, error) {
	records := make([]sessionRecord, len(sessions))
	for i, s := range sessions {
		records[i] = toSessionRecord(s)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("failed to encode sessions: %w", err)
	}
	return string(data), nil
}

// DecodeSessions parses a collection written by EncodeSessions. An empty
// value decodes to an empty collection.
func DecodeSessions(value string) ([]model.ChatSession, error) {
	if len(bytes.TrimSpace([]byte(value))) == 0 {
		return []model.ChatSession{}, nil
	}
	var records []sessionRecord
	if err := json.Unmarshal([]byte(value), &records); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	sessions := make([]model.ChatSession, len(records))
	for i, r := range records {
		sessions[i] = fromSessionRecord(r)
	}
	return sessions, nil
}

func toSessionRecord(s model.ChatSession) sessionRecord {
	r := sessionRecord{
		ID:                      s.ID,
		Title:                   s.Title,
		Messages:                make([]messageRecord, len(s.Messages)),
		CreatedAt:               TaggedDate{s.CreatedAt},
		UpdatedAt:               TaggedDate{s.UpdatedAt},
		TitleGenerated:          s.TitleGenerated,
		TitleGenerationAttempts: s.TitleGenerationAttempts,
	}
	for i, m := range s.Messages {
		r.Messages[i] = toMessageRecord(m)
	}
	return r
}

func fromSessionRecord(r sessionRecord) model.ChatSession {
	s := model.ChatSession{
		ID:                      r.ID,
		Title:                   r.Title,
		Messages:                make([]model.Message, len(r.Messages)),
		CreatedAt:               r.CreatedAt.Time,
		UpdatedAt:               r.UpdatedAt.Time,
		TitleGenerated:          r.TitleGenerated,
		TitleGenerationAttempts: r.TitleGenerationAttempts,
	}
	for i, m := range r.Messages {
		s.Messages[i] = fromMessageRecord(m)
	}
	return s
}

func toMessageRecord(m model.Message) messageRecord {
	r := messageRecord{
		ID:                    m.ID,
		Content:               m.Content,
		Sender:                m.Sender,
		Timestamp:             TaggedDate{m.Timestamp},
		Reasoning:             m.Reasoning,
		GenerationTimeSeconds: m.GenerationTimeSeconds,
		CurrentVersionIndex:   m.CurrentVersionIndex,
		HasAttachedImage:      m.HasAttachedImage,
		ImageData:             m.ImageData,
	}
	for _, v := range m.Versions {
		r.Versions = append(r.Versions, versionRecord{
			Content:               v.Content,
			Reasoning:             v.Reasoning,
			GenerationTimeSeconds: v.GenerationTimeSeconds,
			Timestamp:             TaggedDate{v.Timestamp},
		})
	}
	if sm := m.WebSearchMetadata; sm != nil {
		r.WebSearchMetadata = &searchRecord{
			Query:      sm.Query,
			Mode:       sm.Mode,
			Answer:     sm.Answer,
			Results:    sm.Results,
			Images:     sm.Images,
			SearchedAt: TaggedDate{sm.SearchedAt},
		}
	}
	if vm := m.VisionMetadata; vm != nil {
		r.VisionMetadata = &visionRecord{
			Model:       vm.Model,
			Prompt:      vm.Prompt,
			Description: vm.Description,
			AnalyzedAt:  TaggedDate{vm.AnalyzedAt},
		}
	}
	return r
}

func fromMessageRecord(r messageRecord) model.Message {
	m := model.Message{
		ID:                    r.ID,
		Content:               r.Content,
		Sender:                r.Sender,
		Timestamp:             r.Timestamp.Time,
		Reasoning:             r.Reasoning,
		GenerationTimeSeconds: r.GenerationTimeSeconds,
		CurrentVersionIndex:   r.CurrentVersionIndex,
		HasAttachedImage:      r.HasAttachedImage,
		ImageData:             r.ImageData,
	}
	if len(r.Versions) > 0 {
		m.Versions = make([]model.MessageVersion, len(r.Versions))
		for i, v := range r.Versions {
			m.Versions[i] = model.MessageVersion{
				Content:               v.Content,
				Reasoning:             v.Reasoning,
				GenerationTimeSeconds: v.GenerationTimeSeconds,
				Timestamp:             v.Timestamp.Time,
			}
		}
	}
	if sr := r.WebSearchMetadata; sr != nil {
		m.WebSearchMetadata = &model.SearchMetadata{
			Query:      sr.Query,
			Mode:       sr.Mode,
			Answer:     sr.Answer,
			Results:    sr.Results,
			Images:     sr.Images,
			SearchedAt: sr.SearchedAt.Time,
		}
	}
	if vr := r.VisionMetadata; vr != nil {
		m.VisionMetadata = &model.VisionMetadata{
			Model:       vr.Model,
			Prompt:      vr.Prompt,
			Description: vr.Description,
			AnalyzedAt:  vr.AnalyzedAt.Time,
		}
	}
	return m
}
