// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the terminal colour palette and block styles.
//
// NewTheme probes the terminal with termenv; NewPlainTheme renders without
// escape codes and is what tests and non-TTY output use.
package styles
