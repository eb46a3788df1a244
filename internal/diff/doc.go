// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package diff compares two versions of a message line by line.
//
// Regenerated answers keep every version; Compare shows what changed
// between any two of them:
//
//	d := diff.Compare(v1.Content, v2.Content)
//	fmt.Print(diff.Unified(d, "version 1", "version 2"))
//
// Lines are matched with a longest-common-subsequence table, so inputs
// are capped at MaxLines per side; longer inputs are compared as a whole
// replacement.
package diff
