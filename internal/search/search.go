// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/orphion/orphion/internal/logging"
	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/util"
)

// Provider names accepted in Config.Provider.
const (
	ProviderTavily     = "tavily"
	ProviderDuckDuckGo = "duckduckgo"
)

const (
	// DefaultTimeout bounds a single search request.
	DefaultTimeout = 15 * time.Second

	// DefaultRequestsPerSecond is the default limiter rate.
	DefaultRequestsPerSecond = 2.0

	// maxResponseSize bounds the body read from either provider.
	maxResponseSize = 5 * 1024 * 1024
)

var (
	// ErrEmptyQuery is returned for a blank query.
	ErrEmptyQuery = errors.New("search query is empty")

	// ErrNotConfigured is returned by Tavily without an API key.
	ErrNotConfigured = errors.New("search API key not configured")
)

// Searcher runs a web search.
type Searcher interface {
	Search(ctx context.Context, query string, mode model.SearchMode) (model.SearchMetadata, error)
}

// Config selects and configures the provider.
type Config struct {
	Provider          string
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// New builds the searcher described by cfg. Tavily with a key gets the
// DuckDuckGo fallback behind it; anything else is DuckDuckGo alone.
func New(cfg Config, log *logging.Logger) Searcher {
	log = log.OrNop().Named("search")
	limiter := NewLimiter(cfg.RequestsPerSecond)

	ddg := NewDuckDuckGo(limiter)
	ddg.Timeout = cfg.Timeout
	if cfg.Provider == ProviderDuckDuckGo || strings.TrimSpace(cfg.APIKey) == "" {
		if cfg.Provider == ProviderTavily {
			log.Warn("no search API key configured, using DuckDuckGo")
		}
		return ddg
	}

	tavily := NewTavily(cfg.APIKey, limiter)
	tavily.Timeout = cfg.Timeout
	if cfg.BaseURL != "" {
		tavily.BaseURL = cfg.BaseURL
	}
	return &Fallback{Primary: tavily, Secondary: ddg, Log: log}
}

// NewLimiter returns the limiter shared by the providers. A rate of zero
// or less uses DefaultRequestsPerSecond.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// =============================================================================
// FALLBACK
// =============================================================================

// Fallback tries Primary and, when it fails for any reason other than
// cancellation, Secondary.
type Fallback struct {
	Primary   Searcher
	Secondary Searcher
	Log       *logging.Logger
}

// Search implements Searcher.
func (f *Fallback) Search(ctx context.Context, query string, mode model.SearchMode) (model.SearchMetadata, error) {
	meta, err := f.Primary.Search(ctx, query, mode)
	if err == nil || errors.Is(err, ErrEmptyQuery) || ctx.Err() != nil {
		return meta, err
	}
	f.Log.OrNop().Warn("primary search failed, falling back", "error", err)
	return f.Secondary.Search(ctx, query, mode)
}

// newMetadata returns the metadata shell for a search.
func newMetadata(query string, mode model.SearchMode) model.SearchMetadata {
	return model.SearchMetadata{
		Query:      query,
		Mode:       mode,
		Results:    []model.SearchResult{},
		SearchedAt: model.Now(),
	}
}

// FormatResults renders search results as the context block handed back
// to the model.
func FormatResults(meta model.SearchMetadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Web search results for: %s\n\n", meta.Query)
	if meta.Answer != "" {
		fmt.Fprintf(&b, "Summary: %s\n\n", meta.Answer)
	}
	if len(meta.Results) == 0 {
		b.WriteString("No results found.\n")
		return b.String()
	}
	for i, r := range meta.Results {
		fmt.Fprintf(&b, "[%d] %s\n    URL: %s\n", i+1, r.Title, r.URL)
		if r.Content != "" {
			// UNICODE: rune-aware truncation
			fmt.Fprintf(&b, "    %s\n", util.TruncateRunes(r.Content, 300))
		}
		b.WriteString("\n")
	}
	return b.String()
}
