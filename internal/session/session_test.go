// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/storage"
	"github.com/orphion/orphion/internal/tasks"
)

// fakeTitles returns a canned title and records what it was given.
type fakeTitles struct {
	mu     sync.Mutex
	title  string
	err    error
	called int
	seen   []model.Message
}

func (f *fakeTitles) GenerateTitle(_ context.Context, msgs []model.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called++
	f.seen = append([]model.Message(nil), msgs...)
	return f.title, f.err
}

func newService(t *testing.T, opts ...Option) (*Service, *tasks.Runner) {
	t.Helper()
	runner := tasks.NewRunner(tasks.Options{})
	t.Cleanup(runner.Stop)
	repo := storage.NewRepository(storage.NewMemoryKV())
	return NewService(repo, append([]Option{WithRunner(runner)}, opts...)...), runner
}

// =============================================================================
// MESSAGES
// =============================================================================

func TestAddMessageIsCopyOnWrite(t *testing.T) {
	svc, _ := newService(t)
	s0 := svc.CreateSession()

	s1 := svc.AddMessage(s0, "Hello", model.SenderUser, MessageOptions{})

	assert.Empty(t, s0.Messages, "input session must not change")
	assert.Equal(t, model.DefaultSessionTitle, s0.Title)
	require.Len(t, s1.Messages, 1)
	assert.Equal(t, "Hello", s1.Messages[0].Content)
	assert.False(t, s1.UpdatedAt.Before(s0.UpdatedAt))
}

func TestProvisionalTitle(t *testing.T) {
	svc, _ := newService(t)
	long := "Explain the difference between goroutines and threads in detail"

	s := svc.AddMessage(svc.CreateSession(), long, model.SenderUser, MessageOptions{})
	assert.Equal(t, long[:30]+"...", s.Title)

	s = svc.AddMessage(s, "Sure", model.SenderAI, MessageOptions{})
	s = svc.AddMessage(s, "Another question entirely", model.SenderUser, MessageOptions{})
	assert.Equal(t, long[:30]+"...", s.Title, "only the first user message sets the title")
}

func TestUpdatedAtIsMonotonic(t *testing.T) {
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newService(t, WithClock(func() time.Time { return clock }))

	s := svc.AddMessage(svc.CreateSession(), "a", model.SenderUser, MessageOptions{})
	clock = clock.Add(-time.Hour)
	s2 := svc.AddMessage(s, "b", model.SenderAI, MessageOptions{})
	assert.Equal(t, s.UpdatedAt, s2.UpdatedAt)
}

func TestAttachedImageFlag(t *testing.T) {
	svc, _ := newService(t)
	s := svc.AddMessage(svc.CreateSession(), "what is this", model.SenderUser, MessageOptions{ImageData: "aGk="})
	assert.True(t, s.Messages[0].HasAttachedImage)
}

func TestUpdateMessage(t *testing.T) {
	svc, _ := newService(t)
	s := svc.AddMessage(svc.CreateSession(), "q", model.SenderUser, MessageOptions{})
	s = svc.AddMessage(s, "partial", model.SenderAI, MessageOptions{})
	id := s.Messages[1].ID

	content := "complete answer"
	updated := svc.UpdateMessage(s, id, MessagePatch{Content: &content})
	assert.Equal(t, "complete answer", updated.Messages[1].Content)
	assert.Equal(t, "partial", s.Messages[1].Content)

	same := svc.UpdateMessage(s, "unknown", MessagePatch{Content: &content})
	assert.Equal(t, s, same)
}

// =============================================================================
// TITLES
// =============================================================================

func TestTwoMessageScenario(t *testing.T) {
	gen := &fakeTitles{title: `Title: "Friendly Greeting."`}
	svc, runner := newService(t, WithTitleGenerator(gen))
	ctx := context.Background()

	s := svc.CreateSession()
	s = svc.AddMessage(s, "Hello", model.SenderUser, MessageOptions{})
	require.NoError(t, svc.SaveSession(ctx, s))
	assert.Equal(t, "Hello", s.Title)

	s = svc.AddMessage(s, "Hi there", model.SenderAI, MessageOptions{})
	require.NoError(t, svc.SaveSession(ctx, s))
	runner.Wait()

	stored, err := svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Friendly Greeting", stored.Title)
	assert.True(t, stored.TitleGenerated)
	assert.Equal(t, 1, stored.TitleGenerationAttempts)
	assert.Len(t, stored.Messages, 2)
	assert.Equal(t, 1, gen.called)
	assert.Len(t, gen.seen, 2)

	// Saving the caller's snapshot again keeps the generated title.
	require.NoError(t, svc.SaveSession(ctx, s))
	stored, err = svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Friendly Greeting", stored.Title)
}

func TestTitleGeneratedBeforeFirstSave(t *testing.T) {
	gen := &fakeTitles{title: "Sorting In Go"}
	svc, runner := newService(t, WithTitleGenerator(gen))
	ctx := context.Background()

	s := svc.AddMessage(svc.CreateSession(), "How do I sort a slice?", model.SenderUser, MessageOptions{})
	s = svc.AddMessage(s, "Use slices.Sort", model.SenderAI, MessageOptions{})
	runner.Wait()
	require.NoError(t, svc.SaveSession(ctx, s))

	stored, err := svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sorting In Go", stored.Title)
	assert.Len(t, stored.Messages, 2)
}

func TestTitleFallsBackToKeywords(t *testing.T) {
	gen := &fakeTitles{title: "New Chat"}
	svc, _ := newService(t, WithTitleGenerator(gen))
	ctx := context.Background()

	s := svc.AddMessage(svc.CreateSession(), "Hello", model.SenderUser, MessageOptions{})
	s = svc.AddMessage(s, "Hi there", model.SenderAI, MessageOptions{})

	out, err := svc.GenerateAndUpdateTitle(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "Hello", out.Title)
	assert.True(t, out.TitleGenerated)
}

func TestTitleGeneratorErrorFallsBack(t *testing.T) {
	gen := &fakeTitles{err: errors.New("upstream 500")}
	svc, _ := newService(t, WithTitleGenerator(gen))

	s := svc.AddMessage(svc.CreateSession(), "kubernetes ingress kubernetes routing", model.SenderUser, MessageOptions{})
	out, err := svc.GenerateAndUpdateTitle(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "Kubernetes Ingress Routing", out.Title)
	assert.True(t, out.TitleGenerated)
	assert.Equal(t, 1, out.TitleGenerationAttempts)
}

func TestTitleKeptAfterMaxAttempts(t *testing.T) {
	gen := &fakeTitles{title: "ok"}
	svc, _ := newService(t, WithTitleGenerator(gen))

	s := svc.AddMessage(svc.CreateSession(), "database migrations", model.SenderUser, MessageOptions{})
	s.TitleGenerationAttempts = MaxTitleAttempts

	out, err := svc.GenerateAndUpdateTitle(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "database migrations", out.Title)
	assert.Equal(t, MaxTitleAttempts+1, out.TitleGenerationAttempts)
	assert.True(t, out.TitleGenerated)
}

func TestTitleGeneratorSeesAtMostSixMessages(t *testing.T) {
	gen := &fakeTitles{title: "Long Talk"}
	// No runner: the background job would race with the direct call.
	svc := NewService(storage.NewRepository(storage.NewMemoryKV()), WithTitleGenerator(gen))

	s := svc.CreateSession()
	for i := 0; i < 5; i++ {
		s = svc.AddMessage(s, "question", model.SenderUser, MessageOptions{})
		s = svc.AddMessage(s, "answer", model.SenderAI, MessageOptions{})
	}
	_, err := svc.GenerateAndUpdateTitle(context.Background(), s)
	require.NoError(t, err)
	assert.Len(t, gen.seen, 6)
}

func TestNoTitleGeneratorUsesKeywords(t *testing.T) {
	svc, runner := newService(t)
	ctx := context.Background()

	s := svc.AddMessage(svc.CreateSession(), "Tell me about pointer receivers in golang", model.SenderUser, MessageOptions{})
	s = svc.AddMessage(s, "Pointer receivers...", model.SenderAI, MessageOptions{})
	require.NoError(t, svc.SaveSession(ctx, s))
	runner.Wait()

	stored, err := svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pointer Receivers Golang", stored.Title)
}

func TestCleanupTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"Rust Lifetimes"`, "Rust Lifetimes"},
		{"Title: Debugging Go Channels.", "Debugging Go Channels"},
		{"Here's a title for this conversation: “setting up nginx”", "Setting Up Nginx"},
		{"Sure! Conversation about docker networking", "Docker Networking"},
		{"The title is: 'CSS Grid Layout'", "CSS Grid Layout"},
		{"  multiple   spaces\tand\ttabs  ", "Multiple Spaces And Tabs"},
		{"**Bold Title**", "Bold Title"},
		{"Line One\nLine Two", "Line One"},
		{"User asks about what's new in Go", "What's New In Go"},
		{"The Titled Cat", "The Titled Cat"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanupTitle(tt.in))
		})
	}
}

func TestCleanupTitleTruncates(t *testing.T) {
	long := strings.Repeat("word ", 30)
	got := CleanupTitle(long)
	assert.LessOrEqual(t, len([]rune(got)), MaxTitleLength)
	assert.False(t, strings.HasSuffix(got, " "))
	assert.False(t, strings.HasSuffix(got, "..."))
}

func TestCleanupTitleIsIdempotent(t *testing.T) {
	inputs := []string{
		`"Rust Lifetimes"`,
		"Title: Debugging Go Channels.",
		"Here's a title for this conversation: “setting up nginx”",
		"Sure! Conversation about docker networking!!",
		"'quoted.'",
		"help with help with nested prefixes",
		strings.Repeat("abcdefghij ", 8),
		"A very long title that keeps going, and going, and going beyond fifty",
		"Ends with punctuation after cut .......................................",
		"ß straße",
		"  ",
	}
	for _, in := range inputs {
		once := CleanupTitle(in)
		assert.Equal(t, once, CleanupTitle(once), "input %q", in)
	}
}

func TestUsableTitle(t *testing.T) {
	assert.False(t, UsableTitle(""))
	assert.False(t, UsableTitle("Go"))
	assert.False(t, UsableTitle("New Chat"))
	assert.False(t, UsableTitle("conversation"))
	assert.True(t, UsableTitle("Go Generics"))
}

func TestKeywordTitle(t *testing.T) {
	msgs := []model.Message{
		model.NewMessage(model.SenderUser, "Postgres indexes are slow. Why are postgres queries slow?"),
		model.NewMessage(model.SenderAI, "Indexes indexes indexes"),
		model.NewMessage(model.SenderUser, "Would vacuum help with queries?"),
	}
	// postgres:2, queries:2, indexes:1, vacuum:1; "would" is a stop word.
	assert.Equal(t, "Postgres Queries Indexes", KeywordTitle(msgs))

	assert.Equal(t, "", KeywordTitle([]model.Message{model.NewMessage(model.SenderUser, "hi there you")}))
}

// =============================================================================
// VERSIONS
// =============================================================================

func TestRegenerateAndNavigateVersions(t *testing.T) {
	svc, _ := newService(t)
	s := svc.AddMessage(svc.CreateSession(), "q", model.SenderUser, MessageOptions{})
	s = svc.AddMessage(s, "first answer", model.SenderAI, MessageOptions{Reasoning: "r1"})
	id := s.Messages[1].ID

	s2, err := svc.RegenerateMessage(s, id, "second answer", VersionOptions{Reasoning: "r2"})
	require.NoError(t, err)
	m := s2.Messages[1]
	require.Len(t, m.Versions, 2)
	assert.Equal(t, "first answer", m.Versions[0].Content)
	assert.Equal(t, "r1", m.Versions[0].Reasoning)
	assert.Equal(t, 1, m.CurrentVersionIndex)
	assert.Equal(t, "second answer", m.Content)
	assert.False(t, s.Messages[1].HasVersions(), "input must not change")

	s3, err := svc.RegenerateMessage(s2, id, "third answer", VersionOptions{})
	require.NoError(t, err)
	assert.Len(t, s3.Messages[1].Versions, 3)

	prev, err := svc.PreviousVersion(s3, id)
	require.NoError(t, err)
	assert.Equal(t, "second answer", prev.Messages[1].Content)
	assert.Equal(t, "r2", prev.Messages[1].Reasoning)

	_, err = svc.NextVersion(s3, id)
	assert.True(t, errors.Is(err, ErrVersionOutOfRange))

	first, err := svc.SelectVersion(s3, id, 0)
	require.NoError(t, err)
	assert.Equal(t, "first answer", first.Messages[1].Content)

	_, err = svc.PreviousVersion(first, id)
	assert.True(t, errors.Is(err, ErrVersionOutOfRange))

	_, err = svc.SelectVersion(s3, id, 3)
	assert.True(t, errors.Is(err, ErrVersionOutOfRange))
}

func TestRegenerateErrors(t *testing.T) {
	svc, _ := newService(t)
	s := svc.AddMessage(svc.CreateSession(), "q", model.SenderUser, MessageOptions{})

	_, err := svc.RegenerateMessage(s, s.Messages[0].ID, "x", VersionOptions{})
	assert.True(t, errors.Is(err, ErrNotRegenerable))

	_, err = svc.RegenerateMessage(s, "missing", "x", VersionOptions{})
	assert.True(t, errors.Is(err, ErrMessageNotFound))
}

func TestUpdateMessageLeavesVersionsAlone(t *testing.T) {
	svc, _ := newService(t)
	s := svc.AddMessage(svc.CreateSession(), "q", model.SenderUser, MessageOptions{})
	s = svc.AddMessage(s, "v1", model.SenderAI, MessageOptions{})
	id := s.Messages[1].ID
	s, err := svc.RegenerateMessage(s, id, "v2", VersionOptions{})
	require.NoError(t, err)

	content := "edited"
	reasoning := "why"
	s = svc.UpdateMessage(s, id, MessagePatch{Content: &content, Reasoning: &reasoning})
	m := s.Messages[1]
	assert.Equal(t, "edited", m.Content)
	require.Len(t, m.Versions, 2)
	assert.Equal(t, "v1", m.Versions[0].Content)
	assert.Equal(t, "v2", m.Versions[1].Content)
	assert.Empty(t, m.Versions[1].Reasoning)

	// Navigation restores the stored version.
	s, err = svc.PreviousVersion(s, id)
	require.NoError(t, err)
	s, err = svc.NextVersion(s, id)
	require.NoError(t, err)
	assert.Equal(t, "v2", s.Messages[1].Content)
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func TestCRUD(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a := svc.AddMessage(svc.CreateSession(), "alpha", model.SenderUser, MessageOptions{})
	b := svc.AddMessage(svc.CreateSession(), "beta", model.SenderUser, MessageOptions{})
	c := svc.AddMessage(svc.CreateSession(), "gamma", model.SenderUser, MessageOptions{})
	for _, s := range []model.ChatSession{a, b, c} {
		require.NoError(t, svc.SaveSession(ctx, s))
	}

	all, err := svc.GetAllSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, svc.DeleteSession(ctx, a.ID))
	err = svc.DeleteSession(ctx, a.ID)
	assert.True(t, errors.Is(err, storage.ErrSessionNotFound))

	n, err := svc.DeleteSessions(ctx, b.ID, "nope")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := svc.ResolveSession(ctx, c.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	require.NoError(t, svc.DeleteAllSessions(ctx))
	all, err = svc.GetAllSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMigrateLegacySchemaTwice(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	require.NoError(t, kv.Set(ctx, storage.LegacyMessagesKey, `[{"content":"hi","sender":"user"},{"content":"hello","sender":"ai"}]`))
	svc := NewService(storage.NewRepository(kv))

	report, err := svc.MigrateLegacySchema(ctx)
	require.NoError(t, err)
	assert.True(t, report.Migrated)
	once, err := svc.GetAllSessions(ctx)
	require.NoError(t, err)

	report, err = svc.MigrateLegacySchema(ctx)
	require.NoError(t, err)
	assert.False(t, report.Migrated)
	twice, err := svc.GetAllSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestSearch(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a := svc.AddMessage(svc.CreateSession(), "How do channels work?", model.SenderUser, MessageOptions{})
	a = svc.AddMessage(a, "Channels let goroutines communicate.", model.SenderAI, MessageOptions{})
	b := svc.AddMessage(svc.CreateSession(), "Best pizza dough", model.SenderUser, MessageOptions{})
	require.NoError(t, svc.SaveSession(ctx, a))
	require.NoError(t, svc.SaveSession(ctx, b))

	hits, err := svc.Search(ctx, "CHANNELS")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, a.ID, hits[0].Session.ID)
	assert.True(t, hits[0].TitleMatch)
	assert.Len(t, hits[0].MessageIDs, 2)
	assert.Contains(t, hits[0].Snippet, "channels")

	hits, err = svc.Search(ctx, "  ")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSnippet(t *testing.T) {
	text := strings.Repeat("a", 100) + " needle " + strings.Repeat("b", 100)
	got := snippet(text, "needle")
	assert.True(t, strings.HasPrefix(got, "..."))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Contains(t, got, "needle")
}
