// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/orphion/orphion/internal/model"
)

// DefaultTavilyURL is the Tavily API root.
const DefaultTavilyURL = "https://api.tavily.com"

// Tavily searches through the Tavily API.
type Tavily struct {
	// BaseURL is the API root; /search is appended.
	BaseURL string

	// Timeout bounds one request (default: 15s).
	Timeout time.Duration

	apiKey     string
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewTavily creates a Tavily client. limiter may be nil.
func NewTavily(apiKey string, limiter *rate.Limiter) *Tavily {
	return &Tavily{
		BaseURL:    DefaultTavilyURL,
		apiKey:     strings.TrimSpace(apiKey),
		limiter:    limiter,
		httpClient: &http.Client{},
	}
}

type tavilyRequest struct {
	Query                    string `json:"query"`
	SearchDepth              string `json:"search_depth"`
	MaxResults               int    `json:"max_results"`
	IncludeAnswer            bool   `json:"include_answer"`
	IncludeImages            bool   `json:"include_images"`
	IncludeImageDescriptions bool   `json:"include_image_descriptions"`
}

// Search implements Searcher.
func (t *Tavily) Search(ctx context.Context, query string, mode model.SearchMode) (model.SearchMetadata, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return model.SearchMetadata{}, ErrEmptyQuery
	}
	if t.apiKey == "" {
		return model.SearchMetadata{}, ErrNotConfigured
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return model.SearchMetadata{}, err
		}
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(tavilyRequest{
		Query:                    query,
		SearchDepth:              mode.Depth(),
		MaxResults:               mode.MaxResults(),
		IncludeAnswer:            true,
		IncludeImages:            true,
		IncludeImageDescriptions: true,
	})
	if err != nil {
		return model.SearchMetadata{}, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(t.BaseURL, "/")+"/search", bytes.NewReader(body))
	if err != nil {
		return model.SearchMetadata{}, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return model.SearchMetadata{}, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return model.SearchMetadata{}, fmt.Errorf("failed to read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(data, "detail.error").String()
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return model.SearchMetadata{}, fmt.Errorf("search API error (HTTP %d): %s", resp.StatusCode, msg)
	}
	if !gjson.ValidBytes(data) {
		return model.SearchMetadata{}, fmt.Errorf("search API returned invalid JSON")
	}

	meta := newMetadata(query, mode)
	parseTavily(gjson.ParseBytes(data), &meta)
	return meta, nil
}

// parseTavily fills meta from a Tavily response. Images arrive either as
// bare URLs or as {url, description} objects depending on the request.
func parseTavily(doc gjson.Result, meta *model.SearchMetadata) {
	meta.Answer = strings.TrimSpace(doc.Get("answer").String())

	doc.Get("results").ForEach(func(_, r gjson.Result) bool {
		url := r.Get("url").String()
		if url == "" {
			return true
		}
		meta.Results = append(meta.Results, model.SearchResult{
			URL:     url,
			Title:   strings.TrimSpace(r.Get("title").String()),
			Content: strings.TrimSpace(r.Get("content").String()),
			Score:   r.Get("score").Float(),
		})
		return true
	})

	doc.Get("images").ForEach(func(_, img gjson.Result) bool {
		var si model.SearchImage
		if img.Type == gjson.String {
			si.URL = img.String()
		} else {
			si.URL = img.Get("url").String()
			si.Title = img.Get("title").String()
			si.Description = img.Get("description").String()
		}
		if si.URL != "" {
			meta.Images = append(meta.Images, si)
		}
		return true
	})
}
