// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package format segments AI responses into typed blocks.
//
// A single forward pass over the lines recognises fenced code, charts,
// display math and pipe tables, then headings, list items, quotes, rules
// and paragraphs. Inline math, code and bold are parsed inside text blocks.
// The pass tolerates partial input, so it can be run on every chunk of a
// streaming response.
//
//	f := format.New()
//	for _, b := range f.Format(response) {
//	    switch b := b.(type) {
//	    case *format.CodeBlock:
//	        fmt.Println(b.Language, b.Code)
//	    }
//	}
package format
