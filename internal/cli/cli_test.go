// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/orphion/orphion/internal/cloud"
	"github.com/orphion/orphion/internal/config"
	"github.com/orphion/orphion/internal/inference"
	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/storage"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var envVars = []string{
	"ORPHION_API_KEY", "ORPHION_MODEL", "ORPHION_BASE_URL", "ORPHION_SEARCH_KEY",
	"ORPHION_STORAGE", "ORPHION_DATA_DIR", "ORPHION_REDIS_ADDR", "ORPHION_LOG_LEVEL",
	"FORCE_COLOR",
}

// setupHome points the config directory at a temp dir and clears the
// environment overrides.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.HomeEnv, home)
	for _, v := range envVars {
		t.Setenv(v, "")
	}
	t.Setenv("NO_COLOR", "1")
	return home
}

func openRepo(t *testing.T, home string) (*storage.FileKV, *storage.Repository) {
	t.Helper()
	kv, err := storage.NewFileKV(filepath.Join(home, "data"))
	require.NoError(t, err)
	return kv, storage.NewRepository(kv, storage.WithKey(config.Default().Storage.Key))
}

func seed(t *testing.T, home string, sessions ...model.ChatSession) {
	t.Helper()
	_, repo := openRepo(t, home)
	for _, cs := range sessions {
		require.NoError(t, repo.Put(context.Background(), cs))
	}
}

func stored(t *testing.T, home string) []model.ChatSession {
	t.Helper()
	_, repo := openRepo(t, home)
	all, err := repo.LoadAll(context.Background())
	require.NoError(t, err)
	return all
}

func fixtures() []model.ChatSession {
	base := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	return []model.ChatSession{
		{
			ID:             "aaaa1111-0000-0000-0000-000000000000",
			Title:          "Rust Lifetimes",
			CreatedAt:      base,
			UpdatedAt:      base,
			TitleGenerated: true,
			Messages: []model.Message{
				{ID: "a1", Content: "How do lifetimes work?", Sender: model.SenderUser, Timestamp: base},
				{ID: "a2", Content: "They bound how long references live.", Sender: model.SenderAI, Timestamp: base},
			},
		},
		{
			ID:             "bbbb2222-0000-0000-0000-000000000000",
			Title:          "Go Channels",
			CreatedAt:      base.Add(time.Hour),
			UpdatedAt:      base.Add(time.Hour),
			TitleGenerated: true,
			Messages: []model.Message{
				{ID: "b1", Content: "When should I close a channel?", Sender: model.SenderUser, Timestamp: base},
				{ID: "b2", Content: "When the sender is done.", Sender: model.SenderAI, Timestamp: base},
			},
		},
	}
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// completionServer answers chat completions with reply(n) for the nth call.
func completionServer(t *testing.T, reply func(n int64) string) *httptest.Server {
	t.Helper()
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		n := atomic.AddInt64(&calls, 1)
		body, _ := json.Marshal(map[string]any{
			"id":    fmt.Sprintf("c%d", n),
			"model": "test-model",
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": reply(n)},
				"finish_reason": "stop",
			}},
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// =============================================================================
// SESSIONS
// =============================================================================

func TestSessionsList(t *testing.T) {
	home := setupHome(t)
	seed(t, home, fixtures()...)

	out, err := run(t, "", "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "aaaa1111")
	assert.Contains(t, out, "2 session(s)")
	// Most recently updated first.
	assert.Less(t, strings.Index(out, "Go Channels"), strings.Index(out, "Rust Lifetimes"))
}

func TestSessionsListEmpty(t *testing.T) {
	setupHome(t)

	out, err := run(t, "", "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No saved sessions")
}

func TestSessionsListJSON(t *testing.T) {
	home := setupHome(t)
	seed(t, home, fixtures()...)

	out, err := run(t, "", "sessions", "list", "--json", "--limit", "1")
	require.NoError(t, err)

	var got []sessionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Go Channels", got[0].Title)
	assert.Equal(t, 2, got[0].MessageCount)
	assert.Equal(t, "When should I close a channel?", got[0].Preview)
}

func TestSessionsShowByPrefix(t *testing.T) {
	home := setupHome(t)
	seed(t, home, fixtures()...)

	out, err := run(t, "", "sessions", "show", "aaaa")
	require.NoError(t, err)
	assert.Contains(t, out, "How do lifetimes work?")
	assert.Contains(t, out, "They bound how long references live.")
}

func TestSessionsShowUnknown(t *testing.T) {
	home := setupHome(t)
	seed(t, home, fixtures()...)

	_, err := run(t, "", "sessions", "show", "zzzz")
	require.Error(t, err)
	assert.Equal(t, ExitNotFoundError, ExitCode(err))
}

func TestSessionsDelete(t *testing.T) {
	home := setupHome(t)
	seed(t, home, fixtures()...)

	out, err := run(t, "", "sessions", "delete", "aaaa", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 1 session(s)")

	all := stored(t, home)
	require.Len(t, all, 1)
	assert.Equal(t, "Go Channels", all[0].Title)
}

func TestSessionsDeleteNeedsConfirmation(t *testing.T) {
	home := setupHome(t)
	seed(t, home, fixtures()...)

	_, err := run(t, "", "sessions", "delete", "aaaa")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCode(err))
	assert.Len(t, stored(t, home), 2)
}

func TestSessionsClear(t *testing.T) {
	home := setupHome(t)
	seed(t, home, fixtures()...)

	_, err := run(t, "", "sessions", "clear", "--yes")
	require.NoError(t, err)
	assert.Empty(t, stored(t, home))
}

func TestSessionsRename(t *testing.T) {
	home := setupHome(t)
	seed(t, home, fixtures()...)

	_, err := run(t, "", "sessions", "rename", "bbbb", "Channel", "Patterns")
	require.NoError(t, err)

	for _, cs := range stored(t, home) {
		if cs.ID == fixtures()[1].ID {
			assert.Equal(t, "Channel Patterns", cs.Title)
			assert.True(t, cs.TitleGenerated)
		}
	}
}

func TestSessionsSearch(t *testing.T) {
	home := setupHome(t)
	seed(t, home, fixtures()...)

	out, err := run(t, "", "sessions", "search", "LIFETIMES")
	require.NoError(t, err)
	assert.Contains(t, out, "Rust Lifetimes")
	assert.NotContains(t, out, "Go Channels")

	out, err = run(t, "", "sessions", "search", "kubernetes")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions match")
}

func TestSessionsExport(t *testing.T) {
	home := setupHome(t)
	seed(t, home, fixtures()...)
	dir := t.TempDir()

	_, err := run(t, "", "sessions", "export", "aaaa", "--format", "json", "--out", dir)
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title": "Rust Lifetimes"`)
}

func TestSessionsExportAll(t *testing.T) {
	home := setupHome(t)
	seed(t, home, fixtures()...)
	dir := t.TempDir()

	out, err := run(t, "", "sessions", "export", "--all", "--out", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 session(s)")

	files, err := filepath.Glob(filepath.Join(dir, "*.md"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestSessionsExportArgs(t *testing.T) {
	setupHome(t)

	_, err := run(t, "", "sessions", "export")
	assert.Equal(t, ExitUsageError, ExitCode(err))

	_, err = run(t, "", "sessions", "export", "aaaa", "--all")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestSessionsStats(t *testing.T) {
	home := setupHome(t)
	sessions := fixtures()
	sessions[0].Messages[1].Versions = []model.MessageVersion{
		{Content: "v1", Timestamp: sessions[0].CreatedAt},
		{Content: "They bound how long references live.", Timestamp: sessions[0].CreatedAt},
	}
	sessions[0].Messages[1].CurrentVersionIndex = 1
	seed(t, home, sessions...)

	out, err := run(t, "", "sessions", "stats", "--json")
	require.NoError(t, err)

	var stats sessionStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats.Sessions)
	assert.Equal(t, 4, stats.Messages)
	assert.Equal(t, 2, stats.UserMessages)
	assert.Equal(t, 1, stats.Regenerated)
	assert.Equal(t, 2, stats.Versions)
	assert.Equal(t, "file", stats.Backend)
}

func TestSessionsDiff(t *testing.T) {
	home := setupHome(t)
	sessions := fixtures()
	sessions[0].Messages[1].Versions = []model.MessageVersion{
		{Content: "v1", Timestamp: sessions[0].CreatedAt},
		{Content: "They bound how long references live.", Timestamp: sessions[0].CreatedAt},
	}
	sessions[0].Messages[1].CurrentVersionIndex = 1
	seed(t, home, sessions...)

	out, err := run(t, "", "sessions", "diff", "aaaa")
	require.NoError(t, err)
	assert.Contains(t, out, "--- version 1")
	assert.Contains(t, out, "+++ version 2")
	assert.Contains(t, out, "-v1")
	assert.Contains(t, out, "+They bound how long references live.")
	assert.Contains(t, out, "+1 -1")

	out, err = run(t, "", "sessions", "diff", "aaaa", "--from", "2", "--to", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "identical")

	_, err = run(t, "", "sessions", "diff", "aaaa", "--from", "3")
	assert.Equal(t, ExitUsageError, ExitCode(err))

	_, err = run(t, "", "sessions", "diff", "bbbb")
	assert.ErrorContains(t, err, "no regenerated answer")
}

// =============================================================================
// MIGRATE
// =============================================================================

const legacyHistory = `[
	{
		"id": 1700000000000,
		"title": "Old Chat",
		"createdAt": "2023-11-14T22:13:20.000Z",
		"messages": [
			{"id": "a", "content": "How do I sort?", "sender": "user"},
			{"text": "Use sort.Slice", "sender": "ai"}
		]
	}
]`

func TestMigrate(t *testing.T) {
	home := setupHome(t)
	kv, _ := openRepo(t, home)
	require.NoError(t, kv.Set(context.Background(), storage.LegacyHistoryKey, legacyHistory))

	out, err := run(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrated 1 session(s), 2 message(s)")
	assert.Contains(t, out, storage.LegacyHistoryKey)

	all := stored(t, home)
	require.Len(t, all, 1)
	assert.Equal(t, "Old Chat", all[0].Title)

	out, err = run(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to migrate")
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfigSetGet(t *testing.T) {
	setupHome(t)

	out, err := run(t, "", "config", "set", "ui.width", "100")
	require.NoError(t, err)
	assert.Equal(t, "ui.width = 100\n", out)

	out, err = run(t, "", "config", "get", "ui.width")
	require.NoError(t, err)
	assert.Equal(t, "100\n", out)
}

func TestConfigSetRedactsKeys(t *testing.T) {
	home := setupHome(t)

	out, err := run(t, "", "config", "set", "inference.api_key", "sk-secret")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-secret")

	out, err = run(t, "", "config", "get", "inference.api_key")
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]\n", out)

	out, err = run(t, "", "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-secret")

	data, err := os.ReadFile(filepath.Join(home, "config.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "sk-secret")
}

func TestConfigSetDoesNotPersistEnvironment(t *testing.T) {
	home := setupHome(t)
	t.Setenv("ORPHION_API_KEY", "sk-from-env")

	_, err := run(t, "", "config", "set", "ui.code_style", "dracula")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(home, "config.toml"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-from-env")
	assert.Contains(t, string(data), "dracula")
}

func TestConfigSetErrors(t *testing.T) {
	setupHome(t)

	_, err := run(t, "", "config", "set", "nope.key", "1")
	assert.Equal(t, ExitUsageError, ExitCode(err))

	_, err = run(t, "", "config", "set", "ui.color", "purple")
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

func TestConfigInitAndPath(t *testing.T) {
	home := setupHome(t)

	out, err := run(t, "", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.toml")+"\n", out)

	_, err = run(t, "", "config", "init")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, "config.toml"))

	_, err = run(t, "", "config", "init")
	assert.Equal(t, ExitUsageError, ExitCode(err))

	_, err = run(t, "", "config", "init", "--force")
	assert.NoError(t, err)
}

func TestInvalidConfigFile(t *testing.T) {
	home := setupHome(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"), []byte("[ui]\ncolor = \"purple\"\n"), 0o600))

	_, err := run(t, "", "sessions", "list")
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

// =============================================================================
// RENDER
// =============================================================================

const sampleResponse = "# Setup\n\nInstall the tool.\n\n```go\nfmt.Println(1)\n```\n"

func TestRenderBlocks(t *testing.T) {
	setupHome(t)

	out, err := run(t, sampleResponse, "render", "--blocks")
	require.NoError(t, err)
	assert.Contains(t, out, "heading")
	assert.Contains(t, out, "h1 Setup")
	assert.Contains(t, out, "paragraph")
	assert.Contains(t, out, `lang="go" lines=1`)
}

func TestRenderFile(t *testing.T) {
	setupHome(t)
	path := filepath.Join(t.TempDir(), "answer.md")
	require.NoError(t, os.WriteFile(path, []byte(sampleResponse), 0o600))

	out, err := run(t, "", "render", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Setup")
	assert.Contains(t, out, "fmt.Println(1)")
	assert.NotContains(t, out, "```")
}

// =============================================================================
// ASK
// =============================================================================

func TestAskRaw(t *testing.T) {
	home := setupHome(t)
	srv := completionServer(t, func(int64) string { return "A goroutine is a lightweight thread." })
	t.Setenv("ORPHION_API_KEY", "test-key")
	t.Setenv("ORPHION_BASE_URL", srv.URL)

	out, err := run(t, "", "ask", "--raw", "--no-stream", "what is a goroutine?")
	require.NoError(t, err)
	assert.Equal(t, "A goroutine is a lightweight thread.\n", out)
	assert.Empty(t, stored(t, home), "unsaved questions must not reach the store")
}

func TestAskSave(t *testing.T) {
	home := setupHome(t)
	srv := completionServer(t, func(int64) string { return "Use a WaitGroup." })
	t.Setenv("ORPHION_API_KEY", "test-key")
	t.Setenv("ORPHION_BASE_URL", srv.URL)

	out, err := run(t, "how do I wait for goroutines?", "ask", "--save")
	require.NoError(t, err)
	assert.Contains(t, out, "Use a WaitGroup.")

	all := stored(t, home)
	require.Len(t, all, 1)
	require.Len(t, all[0].Messages, 2)
	assert.Equal(t, "how do I wait for goroutines?", all[0].Messages[0].Content)
	assert.Equal(t, model.SenderAI, all[0].Messages[1].Sender)
}

func TestAskWithoutKey(t *testing.T) {
	setupHome(t)

	_, err := run(t, "", "ask", "--no-stream", "hello")
	require.Error(t, err)
	assert.Equal(t, ExitAuthError, ExitCode(err))
}

func TestAskNoQuestion(t *testing.T) {
	setupHome(t)

	_, err := run(t, "", "ask")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestReadQuestion(t *testing.T) {
	q, err := readQuestion(strings.NewReader("diff --git a b"), []string{"review", "this"})
	require.NoError(t, err)
	assert.Equal(t, "review this\n\ndiff --git a b", q)

	q, err = readQuestion(strings.NewReader("  piped  \n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "piped", q)

	_, err = readQuestion(strings.NewReader(""), nil)
	var usage *UsageError
	assert.True(t, errors.As(err, &usage))
}

// =============================================================================
// CHAT
// =============================================================================

func newTestApp(t *testing.T, srv *httptest.Server) (*App, *bytes.Buffer) {
	t.Helper()
	setupHome(t)
	t.Setenv("ORPHION_API_KEY", "test-key")
	t.Setenv("ORPHION_BASE_URL", srv.URL)

	var out bytes.Buffer
	a, err := NewApp(context.Background(), GlobalFlags{Ephemeral: true}, strings.NewReader(""), &out, io.Discard)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, &out
}

func TestChatTurnsAndVersions(t *testing.T) {
	srv := completionServer(t, func(n int64) string { return fmt.Sprintf("reply %d", n) })
	a, out := newTestApp(t, srv)
	r := newChatREPL(a, nil)
	ctx := context.Background()

	quit, err := r.handle(ctx, "hello there")
	require.NoError(t, err)
	assert.False(t, quit)
	require.Len(t, r.session.Messages, 2)
	assert.Contains(t, out.String(), "reply")

	_, err = r.handle(ctx, "/regen")
	require.NoError(t, err)
	last, ok := lastAI(r.session)
	require.True(t, ok)
	assert.Equal(t, 2, last.VersionCount())
	assert.Equal(t, 1, last.CurrentVersionIndex)

	_, err = r.handle(ctx, "/prev")
	require.NoError(t, err)
	last, _ = lastAI(r.session)
	assert.Equal(t, 0, last.CurrentVersionIndex)

	_, err = r.handle(ctx, "/next")
	require.NoError(t, err)
	last, _ = lastAI(r.session)
	assert.Equal(t, 1, last.CurrentVersionIndex)

	_, err = r.handle(ctx, "/diff")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "version 1")

	saved, err := a.Sessions.GetSession(ctx, r.session.ID)
	require.NoError(t, err)
	assert.Len(t, saved.Messages, 2)
}

func TestChatCommands(t *testing.T) {
	srv := completionServer(t, func(int64) string { return "ok" })
	a, _ := newTestApp(t, srv)
	r := newChatREPL(a, nil)
	ctx := context.Background()

	_, err := r.handle(ctx, "/search deep")
	require.NoError(t, err)
	assert.Equal(t, model.SearchDeep, r.mode)

	_, err = r.handle(ctx, "/regen")
	assert.ErrorIs(t, err, errNothingToRegenerate)

	_, err = r.handle(ctx, "/title")
	assert.Error(t, err)

	_, err = r.handle(ctx, "/diff")
	assert.Error(t, err)

	_, err = r.handle(ctx, "/image "+filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
	assert.Nil(t, r.pending)

	_, err = r.handle(ctx, "/bogus")
	assert.ErrorContains(t, err, "unknown command")

	_, err = r.handle(ctx, "/open")
	assert.Equal(t, ExitUsageError, ExitCode(err))

	before := r.session.ID
	_, err = r.handle(ctx, "/new")
	require.NoError(t, err)
	assert.NotEqual(t, before, r.session.ID)

	showing := a.View.ShowReasoning
	_, err = r.handle(ctx, "/reasoning")
	require.NoError(t, err)
	assert.Equal(t, !showing, a.View.ShowReasoning)

	for _, line := range []string{"/quit", "/q", "exit"} {
		quit, err := r.handle(ctx, line)
		require.NoError(t, err)
		assert.True(t, quit, line)
	}
}

func TestCompleteLine(t *testing.T) {
	assert.Equal(t, []string{"/reasoning", "/regen"}, completeLine("/re"))
	assert.Equal(t, []string{"/search deep"}, completeLine("/search d"))
	assert.Equal(t, []string{"/export html"}, completeLine("/export h"))
	assert.Nil(t, completeLine("hello"))
	assert.Nil(t, completeLine("/open 3f"))
}

func TestLiveOutputHidesReasoningWhileStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range []string{"<thi", "nk>secret plan", "</think>", "Hello ", "**world**"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()
	a, out := newTestApp(t, srv)

	live := a.newLiveOutput(true)
	live.terminal = true
	live.throttle = &rate.Sometimes{Every: 1}
	opts := live.options(model.SearchGeneral, a.Styles)
	require.NotNil(t, opts.OnDelta)

	reply, err := a.Responder.Respond(context.Background(), []model.Message{model.NewMessage(model.SenderUser, "hi")}, opts)
	require.NoError(t, err)
	live.finish()

	assert.Equal(t, "Hello **world**", reply.Content)
	assert.Equal(t, "secret plan", reply.Reasoning)
	assert.Contains(t, out.String(), "world")
	assert.NotContains(t, out.String(), "secret plan")
	assert.NotContains(t, out.String(), "<thi")
	assert.NotContains(t, out.String(), "think>")
	assert.Empty(t, live.shown)
}

func TestChatCancelledTurnKeepsQuestion(t *testing.T) {
	var once sync.Once
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		<-r.Context().Done()
	}))
	defer srv.Close()
	a, _ := newTestApp(t, srv)
	r := newChatREPL(a, nil)
	ctx := context.Background()

	go func() {
		<-started
		r.cancelTurn()
	}()
	_, err := r.handle(ctx, "long question")
	require.NoError(t, err)

	require.Len(t, r.session.Messages, 1)
	assert.Equal(t, model.SenderUser, r.session.Messages[0].Sender)
	saved, err := a.Sessions.GetSession(ctx, r.session.ID)
	require.NoError(t, err)
	require.Len(t, saved.Messages, 1)
	assert.Equal(t, "long question", saved.Messages[0].Content)
}

func TestChatCancelTurn(t *testing.T) {
	srv := completionServer(t, func(int64) string { return "ok" })
	a, _ := newTestApp(t, srv)
	r := newChatREPL(a, nil)

	assert.False(t, r.cancelTurn(), "nothing in flight")

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	assert.True(t, r.cancelTurn())
	assert.Error(t, ctx.Err())
	assert.Nil(t, r.cancel)
}

// =============================================================================
// ERRORS AND TERMINAL
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"generic", errors.New("boom"), ExitGeneralError},
		{"usage", &UsageError{Reason: "bad"}, ExitUsageError},
		{"config", fmt.Errorf("invalid config: %w", config.ValidateErrors{{Field: "ui.color", Message: "bad"}}), ExitConfigError},
		{"not configured", cloud.ErrNotConfigured, ExitAuthError},
		{"auth failed", fmt.Errorf("chat: %w", cloud.ErrAuthFailed), ExitAuthError},
		{"forbidden", &cloud.APIError{Status: 403, Message: "no"}, ExitAuthError},
		{"server error", &cloud.APIError{Status: 500, Message: "no"}, ExitGeneralError},
		{"busy", inference.ErrAlreadyGenerating, ExitBusyError},
		{"not found", wrapCmd("sessions", "show", storage.ErrSessionNotFound), ExitNotFoundError},
		{"timeout", context.DeadlineExceeded, ExitTimeoutError},
		{"network", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, ExitNetworkError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestCommandErrorMessage(t *testing.T) {
	err := wrapCmd("sessions", "delete", errors.New("disk full"))
	assert.EqualError(t, err, "sessions delete: disk full")
	assert.Nil(t, wrapCmd("sessions", "delete", nil))

	usage := &UsageError{Reason: "missing id", Example: "orphion sessions show 3f2a"}
	assert.Equal(t, "missing id\nExample: orphion sessions show 3f2a", usage.Error())
}

func TestVisualRows(t *testing.T) {
	assert.Equal(t, 1, visualRows("", 80))
	assert.Equal(t, 1, visualRows("abc", 80))
	assert.Equal(t, 2, visualRows("a\nb", 80))
	assert.Equal(t, 3, visualRows(strings.Repeat("x", 100), 40))
	assert.Equal(t, 2, visualRows("界界", 3))
	assert.Equal(t, 2, visualRows(strings.Repeat("x", 81), 0))
}

func TestColorProfile(t *testing.T) {
	var buf bytes.Buffer

	t.Setenv("NO_COLOR", "1")
	assert.Equal(t, termenv.Ascii, ColorProfile(&buf, "always"))

	t.Setenv("NO_COLOR", "")
	t.Setenv("FORCE_COLOR", "")
	assert.Equal(t, termenv.Ascii, ColorProfile(&buf, "never"))
	assert.Equal(t, termenv.Ascii, ColorProfile(&buf, "auto"))
	assert.NotEqual(t, termenv.Ascii, ColorProfile(&buf, "always"))

	t.Setenv("FORCE_COLOR", "1")
	assert.NotEqual(t, termenv.Ascii, ColorProfile(&buf, "auto"))
}

func TestTerminalWidth(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, DefaultTerminalWidth, TerminalWidth(&buf, 0))
	assert.Equal(t, MinTerminalWidth, TerminalWidth(&buf, 20))
	assert.Equal(t, 120, TerminalWidth(&buf, 120))
}

func TestTimeAgo(t *testing.T) {
	assert.Equal(t, "just now", timeAgo(time.Now()))
	assert.Equal(t, "1 minute ago", timeAgo(time.Now().Add(-90*time.Second)))
	assert.Equal(t, "3 hours ago", timeAgo(time.Now().Add(-3*time.Hour-time.Minute)))
	old := time.Date(2020, 1, 2, 12, 0, 0, 0, time.Local)
	assert.Equal(t, "2020-01-02", timeAgo(old))
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "orphion "+Version)
}
