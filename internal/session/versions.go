// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"

	"github.com/orphion/orphion/internal/model"
)

// =============================================================================
// MESSAGE VERSIONS
// =============================================================================

// VersionOptions carries the optional fields of a regenerated version.
type VersionOptions struct {
	Reasoning             string
	GenerationTimeSeconds *float64
	WebSearchMetadata     *model.SearchMetadata
}

// RegenerateMessage returns a copy of cs where the AI message id gains a
// new version holding content, which becomes the selected one. The first
// regeneration also records the original content as version 1.
func (s *Service) RegenerateMessage(cs model.ChatSession, id, content string, opts VersionOptions) (model.ChatSession, error) {
	i := cs.FindMessage(id)
	if i < 0 {
		return cs, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	if cs.Messages[i].IsUser() {
		return cs, ErrNotRegenerable
	}

	out := cs.Clone()
	m := &out.Messages[i]
	now := s.now()

	if !m.HasVersions() {
		m.Versions = []model.MessageVersion{{
			Content:               m.Content,
			Reasoning:             m.Reasoning,
			GenerationTimeSeconds: m.GenerationTimeSeconds,
			Timestamp:             m.Timestamp,
		}}
	}
	m.Versions = append(m.Versions, model.MessageVersion{
		Content:               content,
		Reasoning:             opts.Reasoning,
		GenerationTimeSeconds: opts.GenerationTimeSeconds,
		Timestamp:             now,
	})
	applyVersion(m, len(m.Versions)-1)
	if opts.WebSearchMetadata != nil {
		sm := opts.WebSearchMetadata.Clone()
		m.WebSearchMetadata = &sm
	}

	out.UpdatedAt = out.Touch(now)
	return out, nil
}

// SelectVersion returns a copy of cs with version index (0-based) of
// message id selected.
func (s *Service) SelectVersion(cs model.ChatSession, id string, index int) (model.ChatSession, error) {
	i := cs.FindMessage(id)
	if i < 0 {
		return cs, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	m := cs.Messages[i]
	if index < 0 || index >= m.VersionCount() {
		return cs, fmt.Errorf("%w: %d of %d", ErrVersionOutOfRange, index+1, m.VersionCount())
	}
	if !m.HasVersions() || index == m.CurrentVersionIndex {
		return cs, nil
	}

	out := cs.Clone()
	applyVersion(&out.Messages[i], index)
	out.UpdatedAt = out.Touch(s.now())
	return out, nil
}

// NextVersion selects the version after the current one.
func (s *Service) NextVersion(cs model.ChatSession, id string) (model.ChatSession, error) {
	i := cs.FindMessage(id)
	if i < 0 {
		return cs, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	return s.SelectVersion(cs, id, cs.Messages[i].CurrentVersionIndex+1)
}

// PreviousVersion selects the version before the current one.
func (s *Service) PreviousVersion(cs model.ChatSession, id string) (model.ChatSession, error) {
	i := cs.FindMessage(id)
	if i < 0 {
		return cs, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	return s.SelectVersion(cs, id, cs.Messages[i].CurrentVersionIndex-1)
}

// applyVersion mirrors version index into the message's top-level fields.
func applyVersion(m *model.Message, index int) {
	v := m.Versions[index]
	m.CurrentVersionIndex = index
	m.Content = v.Content
	m.Reasoning = v.Reasoning
	m.GenerationTimeSeconds = nil
	if v.GenerationTimeSeconds != nil {
		g := *v.GenerationTimeSeconds
		m.GenerationTimeSeconds = &g
	}
}
