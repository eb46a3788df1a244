// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import "strings"

// isTableRow reports whether a trimmed line is a pipe table row.
func isTableRow(trimmed string) bool {
	return len(trimmed) >= 2 && trimmed[0] == '|' && trimmed[len(trimmed)-1] == '|'
}

// splitTableRow splits "| a | b |" into ["a", "b"].
func splitTableRow(trimmed string) []string {
	inner := trimmed[1 : len(trimmed)-1]
	cells := strings.Split(inner, "|")
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}

// buildTable turns collected rows into a Table. The first row is the
// header and the second is dropped as the separator without checking its
// shape. Returns nil when there is no data row.
func buildTable(rows [][]string) *Table {
	if len(rows) < 3 || len(rows[0]) == 0 {
		return nil
	}
	return &Table{
		Header: rows[0],
		Rows:   rows[2:],
	}
}
