// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diff

import (
	"fmt"
	"strings"
)

// MaxLines bounds the LCS table at MaxLines*MaxLines cells.
const MaxLines = 2000

// contextLines is how many unchanged lines surround a change in a hunk.
const contextLines = 3

// =============================================================================
// TYPES
// =============================================================================

// Op is what happened to a line.
type Op int

const (
	Equal Op = iota
	Insert
	Delete
)

// Prefix returns the unified diff marker for the op.
func (o Op) Prefix() string {
	switch o {
	case Insert:
		return "+"
	case Delete:
		return "-"
	default:
		return " "
	}
}

// Line is one line of the comparison. OldNo and NewNo are 1-based and
// zero on the side the line is absent from.
type Line struct {
	Op    Op
	Text  string
	OldNo int
	NewNo int
}

// Hunk is a run of changes with surrounding context.
type Hunk struct {
	OldStart, OldCount int
	NewStart, NewCount int
	Lines              []Line
}

// Result is a full comparison.
type Result struct {
	Lines   []Line
	Hunks   []Hunk
	Added   int
	Removed int
}

// Identical reports whether nothing changed.
func (r *Result) Identical() bool {
	return r.Added == 0 && r.Removed == 0
}

// Summary is a short "+3 -1" description.
func (r *Result) Summary() string {
	if r.Identical() {
		return "no changes"
	}
	return fmt.Sprintf("+%d -%d", r.Added, r.Removed)
}

// =============================================================================
// COMPARISON
// =============================================================================

// Compare diffs old against new by line.
func Compare(old, new string) *Result {
	a, b := split(old), split(new)
	r := &Result{}
	if len(a) > MaxLines || len(b) > MaxLines {
		r.Lines = replaceAll(a, b)
	} else {
		r.Lines = walk(a, b, lcsTable(a, b))
	}
	for _, l := range r.Lines {
		switch l.Op {
		case Insert:
			r.Added++
		case Delete:
			r.Removed++
		}
	}
	r.Hunks = hunks(r.Lines)
	return r
}

func split(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// lcsTable holds the LCS length of a[i:] and b[j:] at [i][j].
func lcsTable(a, b []string) [][]int {
	t := make([][]int, len(a)+1)
	for i := range t {
		t[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				t[i][j] = t[i+1][j+1] + 1
			} else {
				t[i][j] = max(t[i+1][j], t[i][j+1])
			}
		}
	}
	return t
}

// walk reads the edit script off the table. Deletions come before
// insertions at the same position.
func walk(a, b []string, t [][]int) []Line {
	var out []Line
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, Line{Op: Equal, Text: a[i], OldNo: i + 1, NewNo: j + 1})
			i++
			j++
		case t[i+1][j] >= t[i][j+1]:
			out = append(out, Line{Op: Delete, Text: a[i], OldNo: i + 1})
			i++
		default:
			out = append(out, Line{Op: Insert, Text: b[j], NewNo: j + 1})
			j++
		}
	}
	for ; i < len(a); i++ {
		out = append(out, Line{Op: Delete, Text: a[i], OldNo: i + 1})
	}
	for ; j < len(b); j++ {
		out = append(out, Line{Op: Insert, Text: b[j], NewNo: j + 1})
	}
	return out
}

func replaceAll(a, b []string) []Line {
	out := make([]Line, 0, len(a)+len(b))
	for i, s := range a {
		out = append(out, Line{Op: Delete, Text: s, OldNo: i + 1})
	}
	for j, s := range b {
		out = append(out, Line{Op: Insert, Text: s, NewNo: j + 1})
	}
	return out
}

// hunks groups changes that are at most 2*contextLines apart.
func hunks(lines []Line) []Hunk {
	var out []Hunk
	for i := 0; i < len(lines); {
		if lines[i].Op == Equal {
			i++
			continue
		}
		start := max(0, i-contextLines)
		end := i
		for end < len(lines) {
			if lines[end].Op != Equal {
				end++
				continue
			}
			run := end
			for run < len(lines) && lines[run].Op == Equal {
				run++
			}
			if run == len(lines) || run-end > 2*contextLines {
				end = min(end+contextLines, len(lines))
				break
			}
			end = run
		}
		out = append(out, newHunk(lines[start:end]))
		i = end
	}
	return out
}

func newHunk(lines []Line) Hunk {
	h := Hunk{Lines: lines}
	for _, l := range lines {
		if l.Op != Insert {
			if h.OldStart == 0 {
				h.OldStart = l.OldNo
			}
			h.OldCount++
		}
		if l.Op != Delete {
			if h.NewStart == 0 {
				h.NewStart = l.NewNo
			}
			h.NewCount++
		}
	}
	return h
}

// =============================================================================
// OUTPUT
// =============================================================================

// Unified renders r as a unified diff with the given side labels.
func Unified(r *Result, oldLabel, newLabel string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", oldLabel, newLabel)
	for _, h := range r.Hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			sb.WriteString(l.Op.Prefix())
			sb.WriteString(l.Text)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
