// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orphion/orphion/internal/model"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a session in one format.
type Exporter interface {
	// Export renders the session and returns the file content.
	Export(cs model.ChatSession) ([]byte, error)

	// FileExtension returns the extension including the dot.
	FileExtension() string

	// MimeType returns the MIME type of the output.
	MimeType() string
}

// Formats lists the accepted format names.
var Formats = []string{"markdown", "json", "yaml", "html"}

// New returns the exporter for format.
func New(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(format) {
	case "markdown", "md":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	case "yaml", "yml":
		return NewYAMLExporter(opts), nil
	case "html", "htm":
		return NewHTMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s (supported: %s)", format, strings.Join(Formats, ", "))
	}
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is the directory where files are written (default ".").
	OutputDir string

	// OpenAfterExport opens the file in the default application.
	OpenAfterExport bool

	// IncludeMetadata adds the session header and per-message details.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message timestamps.
	IncludeTimestamps bool

	// IncludeReasoning adds model reasoning where present.
	IncludeReasoning bool

	// IncludeImages embeds attached image data (JSON, YAML and HTML).
	IncludeImages bool

	// Theme for HTML export ("light" or "dark", default "dark").
	Theme string

	// Now stamps the export; nil means time.Now.
	Now func() time.Time
}

// DefaultOptions returns the default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		IncludeReasoning:  true,
		Theme:             "dark",
	}
}

func (o *Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func orDefault(opts *Options) *Options {
	if opts == nil {
		return DefaultOptions()
	}
	return opts
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ExportToFile renders cs with exporter and writes it under
// opts.OutputDir. It returns the path written.
func ExportToFile(cs model.ChatSession, exporter Exporter, opts *Options) (string, error) {
	opts = orDefault(opts)

	content, err := exporter.Export(cs)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	outputPath := filepath.Join(dir, FileName(cs, exporter.FileExtension()))
	if err := os.WriteFile(outputPath, content, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	if opts.OpenAfterExport {
		if err := openFile(outputPath); err != nil {
			// Non-fatal: the file exists.
			fmt.Fprintf(os.Stderr, "Warning: could not open file: %v\n", err)
		}
	}
	return outputPath, nil
}

// ExportAll writes every session concurrently and returns the paths in
// the order of sessions. The first failure cancels the rest.
func ExportAll(ctx context.Context, sessions []model.ChatSession, format string, opts *Options) ([]string, error) {
	opts = orDefault(opts)
	exporter, err := New(format, opts)
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(sessions))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, cs := range sessions {
		i, cs := i, cs
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := ExportToFile(cs, exporter, opts)
			if err != nil {
				return fmt.Errorf("session %s: %w", cs.ID, err)
			}
			mu.Lock()
			paths[i] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// FileName returns "<title>_<id8><ext>", unique per session so bulk
// exports never collide.
func FileName(cs model.ChatSession, ext string) string {
	id := cs.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s_%s%s", sanitizeFilename(cs.Title), id, ext)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in file names.
func sanitizeFilename(s string) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) > 50 {
		runes = runes[:50]
	}

	var b strings.Builder
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "session"
	}
	return b.String()
}

// openFile opens a file in the default application for the OS.
func openFile(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", `""`, path)
	case "darwin":
		cmd = exec.Command("open", path)
	case "linux":
		cmd = exec.Command("xdg-open", path)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}

// formatSeconds formats a generation time for display.
func formatSeconds(s float64) string {
	if s < 1 {
		return fmt.Sprintf("%dms", int(s*1000))
	}
	if s < 60 {
		return fmt.Sprintf("%.1fs", s)
	}
	return fmt.Sprintf("%dm %ds", int(s)/60, int(s)%60)
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}

// validate rejects sessions that cannot be exported meaningfully.
func validate(cs model.ChatSession) error {
	if cs.ID == "" {
		return fmt.Errorf("session has no id")
	}
	if len(cs.Messages) == 0 {
		return fmt.Errorf("session has no messages")
	}
	if cs.CreatedAt.IsZero() {
		return fmt.Errorf("session has invalid creation timestamp")
	}
	return nil
}
