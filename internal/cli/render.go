// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orphion/orphion/internal/format"
	"github.com/orphion/orphion/internal/ui/components"
	"github.com/orphion/orphion/internal/util"
)

func newRenderCommand(flags *GlobalFlags) *cobra.Command {
	var blocks bool
	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Format a response from a file or stdin",
		Long: `Format markdown-like response text the way chat replies are shown:
code blocks, tables, math, charts and lists.

Examples:
  orphion render answer.md
  cat answer.md | orphion render
  orphion render answer.md --blocks`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, flags, func(_ context.Context, a *App) error {
				text, err := readSource(a.In, args)
				if err != nil {
					return err
				}
				segs := a.Formatter.Format(text)
				if blocks {
					printBlockOutline(a.Out, a.Styles, segs)
					return nil
				}
				fmt.Fprintln(a.Out, components.NewRenderer(a.Theme, a.Width).RenderBlocks(segs))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&blocks, "blocks", false, "list the segments instead of rendering them")
	return cmd
}

func readSource(in io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	if isTerminalReader(in) {
		return "", &UsageError{Reason: "give a file or pipe text on stdin", Example: "orphion render answer.md"}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// printBlockOutline prints one line per segment.
func printBlockOutline(w io.Writer, st Styles, blocks []format.Block) {
	for i, b := range blocks {
		fmt.Fprintf(w, "%3d %s %s\n", i, st.Prompt.Render(fmt.Sprintf("%-14s", b.Kind())), st.Dim.Render(blockSummary(b)))
	}
}

func blockSummary(b format.Block) string {
	switch v := b.(type) {
	case *format.Heading:
		return fmt.Sprintf("h%d %s", v.Level, format.PlainText(v.Spans))
	case *format.ListItem:
		return fmt.Sprintf("%s indent=%d %s", v.Marker, v.Indent, util.TruncateRunes(format.PlainText(v.Spans), 50))
	case *format.Blockquote:
		return util.TruncateRunes(format.PlainText(v.Spans), 60)
	case *format.Paragraph:
		return util.TruncateRunes(format.PlainText(v.Spans), 60)
	case *format.CodeBlock:
		s := fmt.Sprintf("lang=%q lines=%d", v.Language, strings.Count(v.Code, "\n")+1)
		if !v.Complete {
			s += " unterminated"
		}
		if len(v.Explanation) > 0 {
			s += fmt.Sprintf(" explanation=%d", len(v.Explanation))
		}
		return s
	case *format.Table:
		return fmt.Sprintf("%d columns, %d rows", v.Columns(), len(v.Rows))
	case *format.Chart:
		if v.Err != nil {
			return "invalid: " + v.Err.Error()
		}
		return fmt.Sprintf("%s %q, %d records", v.Spec.Type, v.Spec.Title, len(v.Spec.Data))
	case *format.MathBlock:
		return util.TruncateRunes(util.CollapseWhitespace(v.Source), 60)
	}
	return ""
}
