// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components renders formatted blocks and chat messages for the
// terminal.
//
// Renderer turns format.Block values into styled text: chroma-highlighted
// code boxes, box-drawn tables, bar charts and Unicode math. MessageView
// adds message headers, reasoning, attachments and search sources on top.
package components
