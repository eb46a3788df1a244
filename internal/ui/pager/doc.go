// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pager is a full-screen, read-only viewer for a saved chat
// session. It scrolls the formatted transcript, jumps between messages and
// reloads when the store reports a change.
package pager
