// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session implements the chat session store: copy-on-write
// message updates, title generation, message versions and persistence.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/orphion/orphion/internal/logging"
	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/storage"
	"github.com/orphion/orphion/internal/tasks"
	"github.com/orphion/orphion/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrMessageNotFound is returned when a message ID is not in the session.
	ErrMessageNotFound = errors.New("message not found")

	// ErrVersionOutOfRange is returned when selecting a version that does
	// not exist.
	ErrVersionOutOfRange = errors.New("message version out of range")

	// ErrNotRegenerable is returned when regenerating a user message.
	ErrNotRegenerable = errors.New("only AI messages can be regenerated")
)

// ProvisionalTitleLength is how many characters of the first user message
// become the title until one is generated.
const ProvisionalTitleLength = 30

// TitleTaskKind tags background title jobs.
const TitleTaskKind = "title"

// TitleGenerator produces a title for the opening messages of a session.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, messages []model.Message) (string, error)
}

// =============================================================================
// SERVICE
// =============================================================================

// Service owns chat sessions. Methods that take a session return a new
// value and never modify their input.
type Service struct {
	repo   *storage.Repository
	titles TitleGenerator
	runner *tasks.Runner
	log    *logging.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTitleGenerator sets the collaborator used for titles. Without one,
// titles come from keyword extraction.
func WithTitleGenerator(g TitleGenerator) Option {
	return func(s *Service) { s.titles = g }
}

// WithRunner sets where background title generation runs. Without a
// runner no title is generated automatically.
func WithRunner(r *tasks.Runner) Option {
	return func(s *Service) { s.runner = r }
}

// WithLogger sets the service logger.
func WithLogger(log *logging.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a session service over repo.
func NewService(repo *storage.Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: model.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.OrNop().Named("session")
	return s
}

// Repository returns the backing repository.
func (s *Service) Repository() *storage.Repository {
	return s.repo
}

// CreateSession returns a new empty session. It is not persisted until
// saved.
func (s *Service) CreateSession() model.ChatSession {
	cs := model.NewSession()
	now := s.now()
	cs.CreatedAt, cs.UpdatedAt = now, now
	return cs
}

// MessageOptions carries the optional fields of a new message.
type MessageOptions struct {
	Reasoning             string
	GenerationTimeSeconds *float64
	WebSearchMetadata     *model.SearchMetadata
	ImageData             string
	VisionMetadata        *model.VisionMetadata
}

// AddMessage returns a copy of cs with a new message appended. The first
// user message becomes the provisional title. When the appended message
// is the first AI reply, title generation is queued in the background.
func (s *Service) AddMessage(cs model.ChatSession, content string, sender model.Sender, opts MessageOptions) model.ChatSession {
	out := cs.Clone()
	now := s.now()

	msg := model.Message{
		ID:                    model.NewID(),
		Content:               content,
		Sender:                sender,
		Timestamp:             now,
		Reasoning:             opts.Reasoning,
		GenerationTimeSeconds: opts.GenerationTimeSeconds,
		WebSearchMetadata:     opts.WebSearchMetadata,
		ImageData:             opts.ImageData,
		HasAttachedImage:      opts.ImageData != "",
		VisionMetadata:        opts.VisionMetadata,
	}
	out.Messages = append(out.Messages, msg)
	out.UpdatedAt = out.Touch(now)

	if sender == model.SenderUser && out.UserMessageCount() == 1 && !out.TitleGenerated {
		if t := strings.TrimSpace(util.CollapseWhitespace(content)); t != "" {
			out.Title = util.PrefixWithEllipsis(t, ProvisionalTitleLength)
		}
	}

	if sender == model.SenderAI && len(out.Messages) == 2 && !out.TitleGenerated {
		s.scheduleTitle(out)
	}
	return out
}

func (s *Service) scheduleTitle(cs model.ChatSession) {
	if s.runner == nil {
		return
	}
	snapshot := cs.Clone()
	_, err := s.runner.Submit(TitleTaskKind, snapshot.ID, func(ctx context.Context) error {
		_, err := s.GenerateAndUpdateTitle(ctx, snapshot)
		return err
	})
	if err != nil {
		s.log.Warn("could not queue title generation", "session", snapshot.ID, "error", err)
	}
}

// MessagePatch lists the fields UpdateMessage changes. Nil fields are left
// alone.
type MessagePatch struct {
	Content               *string
	Reasoning             *string
	GenerationTimeSeconds *float64
	WebSearchMetadata     *model.SearchMetadata
	VisionMetadata        *model.VisionMetadata
	ImageData             *string
}

// UpdateMessage returns a copy of cs with one message patched. An unknown
// id returns the session unchanged. Stored versions are never modified;
// selecting a version restores its content.
func (s *Service) UpdateMessage(cs model.ChatSession, id string, patch MessagePatch) model.ChatSession {
	i := cs.FindMessage(id)
	if i < 0 {
		return cs
	}
	out := cs.Clone()
	m := &out.Messages[i]
	if patch.Content != nil {
		m.Content = *patch.Content
	}
	if patch.Reasoning != nil {
		m.Reasoning = *patch.Reasoning
	}
	if patch.GenerationTimeSeconds != nil {
		v := *patch.GenerationTimeSeconds
		m.GenerationTimeSeconds = &v
	}
	if patch.WebSearchMetadata != nil {
		sm := patch.WebSearchMetadata.Clone()
		m.WebSearchMetadata = &sm
	}
	if patch.VisionMetadata != nil {
		vm := *patch.VisionMetadata
		m.VisionMetadata = &vm
	}
	if patch.ImageData != nil {
		m.ImageData = *patch.ImageData
		m.HasAttachedImage = m.ImageData != ""
	}
	out.UpdatedAt = out.Touch(s.now())
	return out
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// GetAllSessions returns every stored session. The order is the stored
// order; use model.SortByUpdated for display.
func (s *Service) GetAllSessions(ctx context.Context) ([]model.ChatSession, error) {
	return s.repo.LoadAll(ctx)
}

// GetSession returns one stored session.
func (s *Service) GetSession(ctx context.Context, id string) (model.ChatSession, error) {
	return s.repo.Get(ctx, id)
}

// SaveSession persists cs, replacing any stored session with the same ID.
func (s *Service) SaveSession(ctx context.Context, cs model.ChatSession) error {
	return s.repo.Put(ctx, cs)
}

// DeleteSession removes one session.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	n, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return &storage.StorageError{Op: storage.ErrSessionNotFound.Op, Key: id, Message: storage.ErrSessionNotFound.Message}
	}
	return nil
}

// DeleteSessions removes the given sessions and returns how many existed.
func (s *Service) DeleteSessions(ctx context.Context, ids ...string) (int, error) {
	return s.repo.Delete(ctx, ids...)
}

// DeleteAllSessions removes every session.
func (s *Service) DeleteAllSessions(ctx context.Context) error {
	return s.repo.DeleteAll(ctx)
}

// MigrateLegacySchema imports sessions stored by older versions. It only
// runs while the current store is empty, so calling it on every start is
// safe.
func (s *Service) MigrateLegacySchema(ctx context.Context) (storage.MigrationReport, error) {
	return s.repo.MigrateLegacy(ctx)
}

// ResolveSession finds a stored session by full ID or unique ID prefix.
func (s *Service) ResolveSession(ctx context.Context, idOrPrefix string) (model.ChatSession, error) {
	all, err := s.repo.LoadAll(ctx)
	if err != nil {
		return model.ChatSession{}, err
	}
	var match *model.ChatSession
	for i := range all {
		if all[i].ID == idOrPrefix {
			return all[i], nil
		}
		if idOrPrefix != "" && strings.HasPrefix(all[i].ID, idOrPrefix) {
			if match != nil {
				return model.ChatSession{}, errors.New("session id prefix is ambiguous: " + idOrPrefix)
			}
			match = &all[i]
		}
	}
	if match == nil {
		return model.ChatSession{}, &storage.StorageError{Op: storage.ErrSessionNotFound.Op, Key: idOrPrefix, Message: storage.ErrSessionNotFound.Message}
	}
	return *match, nil
}
