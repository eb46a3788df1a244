// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orphion/orphion/internal/model"
)

const testKey = "sk-or-test-abcdefghijklmnopqrstuvwxyz0123456789"

func newTestClient(url string) *Client {
	return NewClient(testKey).WithBaseURL(url).WithRetryBaseDelay(time.Millisecond)
}

func completion(content string) string {
	return fmt.Sprintf(`{"id":"c1","model":"m","choices":[{"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, content)
}

// requestBody decodes the JSON body of r into a generic map.
func requestBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

// =============================================================================
// CHAT
// =============================================================================

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))
		body := requestBody(t, r)
		assert.Equal(t, "test/model", body["model"])
		assert.Equal(t, false, body["stream"])
		assert.EqualValues(t, 1000, body["max_tokens"])
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
		assert.Equal(t, "Hello", msgs[1].(map[string]any)["content"])
		io.WriteString(w, completion("Hi there"))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL).WithModel("test/model").WithMaxTokens(1000)
	resp, err := client.Chat(context.Background(), []ChatMessage{
		NewSystemMessage("be brief"),
		NewUserMessage("Hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", resp.GetContent())
}

func TestChatNotConfigured(t *testing.T) {
	_, err := NewClient("  ").Chat(context.Background(), []ChatMessage{NewUserMessage("x")})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestChatRetriesServerErrorsTwice(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":{"message":"upstream exploded"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Chat(context.Background(), []ChatMessage{NewUserMessage("x")})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "one attempt plus two retries")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.Status)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}

func TestChatRecoversAfterTransientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, completion("ok"))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Chat(context.Background(), []ChatMessage{NewUserMessage("x")})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.GetContent())
	assert.Equal(t, int32(2), calls.Load())
}

func TestChatDoesNotRetryAuthFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"code":401,"message":"No auth credentials found"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Chat(context.Background(), []ChatMessage{NewUserMessage("x")})
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Contains(t, err.Error(), "No auth credentials found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestChatRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Chat(context.Background(), []ChatMessage{NewUserMessage("x")})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(3), calls.Load())
}

func TestChatEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"c1","choices":[]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Chat(context.Background(), []ChatMessage{NewUserMessage("x")})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestIsRetryable(t *testing.T) {
	client := NewClient(testKey)
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rate limited", fmt.Errorf("%w: slow down", ErrRateLimited), true},
		{"server error 500", &APIError{Status: 500}, true},
		{"server error 503", &APIError{Status: 503}, true},
		{"client error 400", &APIError{Status: 400}, false},
		{"auth", fmt.Errorf("%w: bad key", ErrAuthFailed), false},
		{"canceled", context.Canceled, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, client.isRetryable(tt.err))
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	client := NewClient(testKey)
	assert.Equal(t, 500*time.Millisecond, client.calculateBackoff(0))
	assert.Equal(t, 1000*time.Millisecond, client.calculateBackoff(1))
	assert.Equal(t, 2000*time.Millisecond, client.calculateBackoff(2))
	assert.Equal(t, 10*time.Second, client.calculateBackoff(10))
}

func TestAPIKeyMasking(t *testing.T) {
	client := NewClient(testKey)
	masked := client.APIKeyMasked()
	assert.NotContains(t, masked, "sk-or")
	assert.Contains(t, masked, client.KeyFingerprint())
	assert.Len(t, client.KeyFingerprint(), 8)

	assert.Equal(t, "[not set]", NewClient("").APIKeyMasked())
	assert.Equal(t, "none", NewClient("").KeyFingerprint())
}

func TestChatMessageJSON(t *testing.T) {
	plain, err := json.Marshal(NewUserMessage("hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hi"}`, string(plain))

	parts, err := json.Marshal(ChatMessage{Role: "user", Parts: []ContentPart{
		{Type: "text", Text: "what"},
		{Type: "image_url", ImageURL: &ImageURL{URL: "data:image/png;base64,AA=="}},
	}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":[{"type":"text","text":"what"},{"type":"image_url","image_url":{"url":"data:image/png;base64,AA=="}}]}`, string(parts))
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		io.WriteString(w, `{"data":[{"id":"a/b","name":"B","context_length":8192}]}`)
	}))
	defer srv.Close()

	models, err := newTestClient(srv.URL).ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "a/b", models[0].ID)
	assert.Equal(t, 8192, models[0].ContextSize)
}

// =============================================================================
// STREAMING
// =============================================================================

func sseChunk(content string) string {
	return fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", content)
}

func TestChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := requestBody(t, r)
		assert.Equal(t, true, body["stream"])
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, ": keep-alive\n\n")
		io.WriteString(w, sseChunk("Hello"))
		io.WriteString(w, sseChunk(", world"))
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	var deltas []string
	content, err := newTestClient(srv.URL).ChatStream(context.Background(), "", []ChatMessage{NewUserMessage("x")}, func(c StreamChunk) {
		deltas = append(deltas, c.GetContent())
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", content)
	assert.Equal(t, []string{"Hello", ", world"}, deltas)
}

func TestChatStreamRetriesBeforeFirstChunk(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, sseChunk("ok"))
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	content, err := newTestClient(srv.URL).ChatStream(context.Background(), "", []ChatMessage{NewUserMessage("x")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestChatStreamFailureAfterContent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, sseChunk("partial"))
		io.WriteString(w, `data: {"error":{"message":"provider went away"}}`+"\n\n")
	}))
	defer srv.Close()

	content, err := newTestClient(srv.URL).ChatStream(context.Background(), "", []ChatMessage{NewUserMessage("x")}, nil)
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "partial", streamErr.Partial)
	assert.Equal(t, "partial", content)
	assert.Equal(t, int32(1), calls.Load(), "no retry once content arrived")
}

func TestSSEReader(t *testing.T) {
	input := "event: message\r\ndata: line one\r\ndata: line two\r\n\r\n: comment\n\ndata:{\"a\":1}\n\ndata: tail"
	r := NewSSEReader(strings.NewReader(input))

	typ, data, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "message", typ)
	assert.Equal(t, "line one\nline two", string(data))

	_, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	_, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "tail", string(data))

	_, _, err = r.ReadEvent()
	assert.ErrorIs(t, err, io.EOF)
}

// =============================================================================
// VISION AND TITLES
// =============================================================================

func TestDescribeImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := requestBody(t, r)
		assert.Equal(t, "vision/model", body["model"])
		msg := body["messages"].([]any)[0].(map[string]any)
		parts := msg["content"].([]any)
		require.Len(t, parts, 2)
		assert.Equal(t, "What is this?", parts[0].(map[string]any)["text"])
		img := parts[1].(map[string]any)["image_url"].(map[string]any)
		assert.Equal(t, "data:image/jpeg;base64,AAAA", img["url"])
		io.WriteString(w, completion("  A small cat.  "))
	}))
	defer srv.Close()

	desc, err := newTestClient(srv.URL).DescribeImage(context.Background(), "vision/model", "AAAA", "image/jpeg", "What is this?")
	require.NoError(t, err)
	assert.Equal(t, "A small cat.", desc)

	_, err = newTestClient(srv.URL).DescribeImage(context.Background(), "vision/model", "", "", "")
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestImageDataURL(t *testing.T) {
	assert.Equal(t, "data:image/png;base64,AA", ImageDataURL("AA", ""))
	assert.Equal(t, "data:image/gif;base64,AA", ImageDataURL("data:image/gif;base64,AA", "image/png"))
}

func TestTitleGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := requestBody(t, r)
		assert.Equal(t, "small/model", body["model"])
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
		transcript := msgs[1].(map[string]any)["content"].(string)
		assert.Contains(t, transcript, "You: Hello")
		assert.Contains(t, transcript, "Orphion: Hi there")
		io.WriteString(w, completion("Friendly Greeting"))
	}))
	defer srv.Close()

	gen := NewTitleGenerator(newTestClient(srv.URL), "small/model")
	title, err := gen.GenerateTitle(context.Background(), []model.Message{
		model.NewMessage(model.SenderUser, "Hello"),
		model.NewMessage(model.SenderAI, "Hi there"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Friendly Greeting", title)
}
