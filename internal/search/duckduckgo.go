// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/orphion/orphion/internal/model"
)

// =============================================================================
// PERFORMANCE: Pre-compiled regex (compiled once at startup)
// =============================================================================

var (
	ddgTitleRegex   = regexp.MustCompile(`(?s)<a[^>]+class="result__a"[^>]+href="([^"]+)"[^>]*>(.+?)</a>`)
	ddgSnippetRegex = regexp.MustCompile(`(?s)<a[^>]+class="result__snippet"[^>]*>(.+?)</a>`)

	ddgTagRegex        = regexp.MustCompile(`<[^>]*>`)
	ddgWhitespaceRegex = regexp.MustCompile(`\s+`)
)

// DefaultDuckDuckGoURL is the keyless HTML search endpoint.
const DefaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"

const ddgUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// =============================================================================
// DUCKDUCKGO
// =============================================================================

// DuckDuckGo searches the DuckDuckGo HTML interface. It needs no key and
// returns neither an answer nor images.
type DuckDuckGo struct {
	// BaseURL is the HTML search endpoint.
	BaseURL string

	// Timeout bounds one request (default: 15s).
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	limiter *rate.Limiter
}

// NewDuckDuckGo creates a DuckDuckGo searcher. limiter may be nil.
func NewDuckDuckGo(limiter *rate.Limiter) *DuckDuckGo {
	return &DuckDuckGo{
		BaseURL:   DefaultDuckDuckGoURL,
		UserAgent: ddgUserAgent,
		limiter:   limiter,
	}
}

// Search implements Searcher.
func (d *DuckDuckGo) Search(ctx context.Context, query string, mode model.SearchMode) (model.SearchMetadata, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return model.SearchMetadata{}, ErrEmptyQuery
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return model.SearchMetadata{}, err
		}
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := d.fetch(ctx, query)
	if err != nil {
		return model.SearchMetadata{}, err
	}

	meta := newMetadata(query, mode)
	results := parseDuckDuckGo(body)
	if limit := mode.MaxResults(); len(results) > limit {
		results = results[:limit]
	}
	meta.Results = append(meta.Results, results...)
	return meta, nil
}

func (d *DuckDuckGo) fetch(ctx context.Context, query string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return "", err
	}
	// Go's transport handles gzip itself; setting Accept-Encoding breaks it.
	req.Header.Set("User-Agent", d.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return nil
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search HTTP error: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read search response: %w", err)
	}
	return string(data), nil
}

// parseDuckDuckGo extracts results from the HTML page. Titles and
// snippets are paired by position.
//
//	<h2 class="result__title">
//	  <a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=URL">Title</a>
//	</h2>
//	<a class="result__snippet" href="...">Snippet text</a>
func parseDuckDuckGo(page string) []model.SearchResult {
	titleMatches := ddgTitleRegex.FindAllStringSubmatch(page, 30)
	snippetMatches := ddgSnippetRegex.FindAllStringSubmatch(page, 30)

	var results []model.SearchResult
	for i, match := range titleMatches {
		actualURL := extractActualURL(strings.ReplaceAll(match[1], "&amp;", "&"))
		title := cleanHTML(match[2])
		if actualURL == "" || title == "" {
			continue
		}

		snippet := ""
		if i < len(snippetMatches) {
			snippet = cleanHTML(snippetMatches[i][1])
		}
		results = append(results, model.SearchResult{
			URL:     actualURL,
			Title:   title,
			Content: snippet,
		})
	}
	return results
}

// extractActualURL unwraps DuckDuckGo's //duckduckgo.com/l/?uddg= redirect.
func extractActualURL(ddgURL string) string {
	if strings.Contains(ddgURL, "uddg=") {
		if strings.HasPrefix(ddgURL, "//") {
			ddgURL = "https:" + ddgURL
		}
		parsed, err := url.Parse(ddgURL)
		if err != nil {
			return ""
		}
		if target := parsed.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if strings.HasPrefix(ddgURL, "http://") || strings.HasPrefix(ddgURL, "https://") {
		return ddgURL
	}
	return ""
}

// cleanHTML strips tags, decodes entities and collapses whitespace.
func cleanHTML(s string) string {
	text := ddgTagRegex.ReplaceAllString(s, "")
	text = html.UnescapeString(text)
	text = ddgWhitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
