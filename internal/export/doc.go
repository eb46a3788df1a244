// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes chat sessions to Markdown, JSON, YAML and HTML.
//
// Markdown keeps message content as written, with YAML front matter.
// JSON and YAML share one document shape with plain RFC 3339 dates, not
// the tagged form used in storage. HTML runs every AI message through the
// segmenting formatter, so tables, math and charts come out structured.
//
// Usage:
//
//	exp, err := export.New("html", export.DefaultOptions())
//	path, err := export.ExportToFile(session, exp, opts)
package export
