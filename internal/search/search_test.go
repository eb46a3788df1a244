// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orphion/orphion/internal/model"
)

const tavilyResponse = `{
  "query": "go generics",
  "answer": "Generics landed in Go 1.18.",
  "results": [
    {"url": "https://go.dev/blog/intro-generics", "title": "An Introduction To Generics", "content": "Type parameters...", "score": 0.91},
    {"url": "", "title": "dropped", "content": "no url"},
    {"url": "https://go.dev/doc/tutorial/generics", "title": "Tutorial", "content": "Getting started", "score": 0.5}
  ],
  "images": [
    "https://example.com/a.png",
    {"url": "https://example.com/b.png", "description": "a gopher"}
  ]
}`

func TestTavilySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer tvly-key", r.Header.Get("Authorization"))
		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "go generics", req.Query)
		assert.Equal(t, "basic", req.SearchDepth)
		assert.Equal(t, 5, req.MaxResults)
		assert.True(t, req.IncludeAnswer)
		io.WriteString(w, tavilyResponse)
	}))
	defer srv.Close()

	tv := NewTavily("tvly-key", nil)
	tv.BaseURL = srv.URL
	meta, err := tv.Search(context.Background(), "  go generics ", model.SearchGeneral)
	require.NoError(t, err)

	assert.Equal(t, "go generics", meta.Query)
	assert.Equal(t, model.SearchGeneral, meta.Mode)
	assert.Equal(t, "Generics landed in Go 1.18.", meta.Answer)
	require.Len(t, meta.Results, 2)
	assert.Equal(t, "An Introduction To Generics", meta.Results[0].Title)
	assert.InDelta(t, 0.91, meta.Results[0].Score, 1e-9)
	require.Len(t, meta.Images, 2)
	assert.Equal(t, "https://example.com/a.png", meta.Images[0].URL)
	assert.Equal(t, "a gopher", meta.Images[1].Description)
	assert.False(t, meta.SearchedAt.IsZero())
}

func TestTavilyDeepMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "advanced", req.SearchDepth)
		assert.Equal(t, 20, req.MaxResults)
		io.WriteString(w, `{"results":[]}`)
	}))
	defer srv.Close()

	tv := NewTavily("k", nil)
	tv.BaseURL = srv.URL
	meta, err := tv.Search(context.Background(), "q", model.SearchDeep)
	require.NoError(t, err)
	assert.Empty(t, meta.Results)
}

func TestTavilyErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":{"error":"Unauthorized: missing or invalid API key."}}`)
	}))
	defer srv.Close()

	tv := NewTavily("bad", nil)
	tv.BaseURL = srv.URL
	_, err := tv.Search(context.Background(), "q", model.SearchGeneral)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
	assert.Contains(t, err.Error(), "invalid API key")

	_, err = NewTavily("", nil).Search(context.Background(), "q", model.SearchGeneral)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = tv.Search(context.Background(), "   ", model.SearchGeneral)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func ddgPage(n int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `<div class="result">
<h2 class="result__title"><a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%%3A%%2F%%2Fexample.com%%2F%d&amp;rut=abc">Result <b>%d</b> &amp; more</a></h2>
<a class="result__snippet" href="#">Snippet   number %d</a>
</div>`, i, i, i)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func TestDuckDuckGoSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang context", r.URL.Query().Get("q"))
		io.WriteString(w, ddgPage(8))
	}))
	defer srv.Close()

	ddg := NewDuckDuckGo(nil)
	ddg.BaseURL = srv.URL + "/html/"
	meta, err := ddg.Search(context.Background(), "golang context", model.SearchGeneral)
	require.NoError(t, err)

	require.Len(t, meta.Results, 5, "general mode caps at five")
	assert.Equal(t, "https://example.com/1", meta.Results[0].URL)
	assert.Equal(t, "Result 1 & more", meta.Results[0].Title)
	assert.Equal(t, "Snippet number 1", meta.Results[0].Content)
	assert.Empty(t, meta.Answer)
}

func TestExtractActualURL(t *testing.T) {
	assert.Equal(t, "https://example.com/x", extractActualURL("//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fx"))
	assert.Equal(t, "https://direct.example", extractActualURL("https://direct.example"))
	assert.Equal(t, "", extractActualURL("/relative"))
}

type stubSearcher struct {
	calls atomic.Int32
	meta  model.SearchMetadata
	err   error
}

func (s *stubSearcher) Search(ctx context.Context, query string, mode model.SearchMode) (model.SearchMetadata, error) {
	s.calls.Add(1)
	return s.meta, s.err
}

func TestFallback(t *testing.T) {
	primary := &stubSearcher{err: errors.New("tavily down")}
	secondary := &stubSearcher{meta: model.SearchMetadata{Query: "q"}}
	f := &Fallback{Primary: primary, Secondary: secondary}

	meta, err := f.Search(context.Background(), "q", model.SearchGeneral)
	require.NoError(t, err)
	assert.Equal(t, "q", meta.Query)
	assert.Equal(t, int32(1), secondary.calls.Load())

	primary.err = ErrEmptyQuery
	_, err = f.Search(context.Background(), "", model.SearchGeneral)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Equal(t, int32(1), secondary.calls.Load(), "empty query is not retried elsewhere")
}

func TestNewSelectsProvider(t *testing.T) {
	_, ok := New(Config{Provider: ProviderTavily}, nil).(*DuckDuckGo)
	assert.True(t, ok, "tavily without a key falls back to duckduckgo")

	_, ok = New(Config{Provider: ProviderTavily, APIKey: "k"}, nil).(*Fallback)
	assert.True(t, ok)

	_, ok = New(Config{Provider: ProviderDuckDuckGo, APIKey: "k"}, nil).(*DuckDuckGo)
	assert.True(t, ok)
}

func TestFormatResults(t *testing.T) {
	out := FormatResults(model.SearchMetadata{
		Query:  "q",
		Answer: "short answer",
		Results: []model.SearchResult{
			{URL: "https://a", Title: "A", Content: "alpha"},
		},
	})
	assert.Contains(t, out, "Web search results for: q")
	assert.Contains(t, out, "Summary: short answer")
	assert.Contains(t, out, "[1] A\n    URL: https://a\n    alpha")

	assert.Contains(t, FormatResults(model.SearchMetadata{Query: "q"}), "No results found.")
}
