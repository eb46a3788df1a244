// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_CreatesAndOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.json")

	if err := AtomicWriteFile(path, []byte("first"), 0600); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("second"), 0600); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(content) != "second" {
		t.Errorf("content = %q, want %q", content, "second")
	}
}

func TestAtomicWriteFile_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	if err := AtomicWriteFile(path, []byte("{}"), 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "data.json" {
		t.Errorf("unexpected directory contents: %v", entries)
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"日本語テキスト", 5, "日本..."},
		{"abc", 0, ""},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := TruncateRunes(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestPrefixWithEllipsis(t *testing.T) {
	if got := PrefixWithEllipsis("Hello", 30); got != "Hello" {
		t.Errorf("short input changed: %q", got)
	}
	long := "abcdefghijklmnopqrstuvwxyz0123456789"
	if got := PrefixWithEllipsis(long, 30); got != long[:30]+"..." {
		t.Errorf("PrefixWithEllipsis = %q", got)
	}
}

func TestWidthHelpers(t *testing.T) {
	if w := StringWidth("日本"); w != 4 {
		t.Errorf("StringWidth(日本) = %d, want 4", w)
	}
	if got := PadRight("ab", 4); got != "ab  " {
		t.Errorf("PadRight = %q", got)
	}
	if got := TruncateWidth("abcdefgh", 6); got != "abc..." {
		t.Errorf("TruncateWidth = %q", got)
	}
	if got := CollapseWhitespace("  a \n b\t c "); got != "a b c" {
		t.Errorf("CollapseWhitespace = %q", got)
	}
}
