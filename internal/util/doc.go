// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across orphion packages.
//
// String Utilities:
//   - TruncateRunes, TruncateRunesNoEllipsis, PrefixWithEllipsis: rune-safe cuts
//   - TruncateWidth, PadRight, StringWidth: terminal-cell aware layout
//
// File Operations:
//   - AtomicWriteFile: crash-safe file replacement with fsync
package util
