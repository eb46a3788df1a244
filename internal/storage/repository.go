// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"sync"

	"github.com/orphion/orphion/internal/events"
	"github.com/orphion/orphion/internal/logging"
	"github.com/orphion/orphion/internal/model"
)

// Persisted keys.
const (
	SessionsKey       = "orphion.chat_sessions"
	LegacyHistoryKey  = "orphion.chat_history"
	LegacyMessagesKey = "orphion.messages"
)

// =============================================================================
// REPOSITORY
// =============================================================================

// Repository keeps the whole session collection under one KV key. Each
// write re-reads the collection, applies one change and writes it back
// while holding the repository lock.
type Repository struct {
	kv     KV
	key    string
	log    *logging.Logger
	pub    events.Publisher
	origin string

	mu sync.Mutex
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithKey overrides the key holding the collection.
func WithKey(key string) RepositoryOption {
	return func(r *Repository) {
		if key != "" {
			r.key = key
		}
	}
}

// WithLogger sets the logger used for storage failures.
func WithLogger(log *logging.Logger) RepositoryOption {
	return func(r *Repository) { r.log = log }
}

// WithPublisher sets where change events go. origin is stamped on every
// event.
func WithPublisher(pub events.Publisher, origin string) RepositoryOption {
	return func(r *Repository) {
		if pub != nil {
			r.pub = pub
		}
		r.origin = origin
	}
}

// NewRepository creates a repository over kv.
func NewRepository(kv KV, opts ...RepositoryOption) *Repository {
	r := &Repository{
		kv:  kv,
		key: SessionsKey,
		pub: events.Nop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.OrNop().Named("storage")
	return r
}

// Key returns the KV key holding the collection.
func (r *Repository) Key() string {
	return r.key
}

// KV returns the underlying store.
func (r *Repository) KV() KV {
	return r.kv
}

// LoadAll returns every stored session in stored order.
func (r *Repository) LoadAll(ctx context.Context) ([]model.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

// Get returns the stored session with the given ID.
func (r *Repository) Get(ctx context.Context, id string) (model.ChatSession, error) {
	sessions, err := r.LoadAll(ctx)
	if err != nil {
		return model.ChatSession{}, err
	}
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return model.ChatSession{}, &StorageError{Op: ErrSessionNotFound.Op, Key: id, Message: ErrSessionNotFound.Message}
}

// IsEmpty reports whether no sessions are stored.
func (r *Repository) IsEmpty(ctx context.Context) (bool, error) {
	sessions, err := r.LoadAll(ctx)
	if err != nil {
		return false, err
	}
	return len(sessions) == 0, nil
}

// Put inserts or replaces a session. A stored title that was already
// generated is never replaced by an ungenerated one, so a snapshot taken
// before a background title update cannot undo it.
func (r *Repository) Put(ctx context.Context, s model.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, err := r.load(ctx)
	if err != nil {
		return err
	}

	s = s.Clone()
	found := false
	for i, stored := range sessions {
		if stored.ID != s.ID {
			continue
		}
		mergeTitle(&s, stored)
		sessions[i] = s
		found = true
		break
	}
	if !found {
		sessions = append(sessions, s)
	}

	if err := r.store(ctx, sessions); err != nil {
		return err
	}
	r.publish(events.SessionSaved, s.ID)
	return nil
}

func mergeTitle(incoming *model.ChatSession, stored model.ChatSession) {
	if stored.TitleGenerated && !incoming.TitleGenerated {
		incoming.Title = stored.Title
		incoming.TitleGenerated = true
	}
	if stored.TitleGenerationAttempts > incoming.TitleGenerationAttempts {
		incoming.TitleGenerationAttempts = stored.TitleGenerationAttempts
	}
}

// Update applies fn to the stored session with the given ID and writes the
// result back. fn returns false to skip the write.
func (r *Repository) Update(ctx context.Context, id string, typ events.Type, fn func(*model.ChatSession) bool) (model.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, err := r.load(ctx)
	if err != nil {
		return model.ChatSession{}, err
	}
	for i := range sessions {
		if sessions[i].ID != id {
			continue
		}
		if !fn(&sessions[i]) {
			return sessions[i], nil
		}
		if err := r.store(ctx, sessions); err != nil {
			return model.ChatSession{}, err
		}
		r.publish(typ, id)
		return sessions[i].Clone(), nil
	}
	return model.ChatSession{}, &StorageError{Op: ErrSessionNotFound.Op, Key: id, Message: ErrSessionNotFound.Message}
}

// Delete removes the sessions with the given IDs and returns how many
// were stored. Unknown IDs are ignored.
func (r *Repository) Delete(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, err := r.load(ctx)
	if err != nil {
		return 0, err
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := sessions[:0]
	var removed []string
	for _, s := range sessions {
		if drop[s.ID] {
			removed = append(removed, s.ID)
			continue
		}
		kept = append(kept, s)
	}
	if len(removed) == 0 {
		return 0, nil
	}
	if err := r.store(ctx, kept); err != nil {
		return 0, err
	}
	r.publish(events.SessionsDeleted, removed...)
	return len(removed), nil
}

// DeleteAll removes every session.
func (r *Repository) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.kv.Remove(ctx, r.key); err != nil {
		r.log.Error("failed to clear sessions", "key", r.key, "error", err)
		return err
	}
	r.publish(events.SessionsCleared)
	return nil
}

// replaceIfEmpty writes sessions only when nothing is stored yet. It
// reports whether it wrote.
func (r *Repository) replaceIfEmpty(ctx context.Context, sessions []model.ChatSession) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.load(ctx)
	if err != nil {
		return false, err
	}
	if len(current) > 0 {
		return false, nil
	}
	if err := r.store(ctx, sessions); err != nil {
		return false, err
	}
	return true, nil
}

// =============================================================================
// INTERNAL
// =============================================================================

func (r *Repository) load(ctx context.Context) ([]model.ChatSession, error) {
	value, ok, err := r.kv.Get(ctx, r.key)
	if err != nil {
		r.log.Error("failed to read sessions", "key", r.key, "error", err)
		return nil, err
	}
	if !ok {
		return []model.ChatSession{}, nil
	}
	sessions, err := DecodeSessions(value)
	if err != nil {
		r.log.Error("stored sessions are unreadable", "key", r.key, "error", err)
		return nil, corrupt(r.key, err)
	}
	return sessions, nil
}

// store encodes and writes the collection. On failure the previous value
// is left in place.
func (r *Repository) store(ctx context.Context, sessions []model.ChatSession) error {
	value, err := EncodeSessions(sessions)
	if err != nil {
		r.log.Error("failed to encode sessions", "error", err)
		return &StorageError{Op: "encode", Key: r.key, Message: "failed to encode sessions", Err: err}
	}
	if err := r.kv.Set(ctx, r.key, value); err != nil {
		r.log.Error("failed to write sessions", "key", r.key, "error", err)
		return err
	}
	return nil
}

func (r *Repository) publish(typ events.Type, ids ...string) {
	r.pub.Publish(events.Event{
		Type:       typ,
		SessionIDs: ids,
		At:         model.Now(),
		Origin:     r.origin,
	})
}
