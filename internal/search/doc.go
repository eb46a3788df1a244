// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search runs the web searches that ground AI answers.
//
// Two providers are available:
//
//   - Tavily: POST /search with an API key; returns an answer, scored
//     results and images.
//   - DuckDuckGo: the keyless HTML endpoint, parsed with regular
//     expressions. Used as the fallback when Tavily is not configured or
//     fails.
//
// Both share a token bucket limiter so a burst of [WEB_SEARCH] directives
// cannot hammer the provider.
//
// Usage:
//
//	s := search.New(search.Config{Provider: "tavily", APIKey: key}, log)
//	meta, err := s.Search(ctx, "go 1.23 release notes", model.SearchGeneral)
package search
