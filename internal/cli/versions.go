// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orphion/orphion/internal/diff"
	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/session"
)

// errSingleVersion is returned when a message was never regenerated.
var errSingleVersion = errors.New("message has only one version")

// versionDiff compares two 1-based versions of m. Zero picks the defaults:
// the version before the current one against the current one.
func versionDiff(m model.Message, from, to int) (*diff.Result, string, string, error) {
	if !m.HasVersions() {
		return nil, "", "", errSingleVersion
	}
	n := m.VersionCount()
	if to == 0 {
		to = m.CurrentVersionIndex + 1
	}
	if from == 0 {
		from = to - 1
		if from < 1 {
			from = 2
		}
	}
	for _, v := range []int{from, to} {
		if v < 1 || v > n {
			return nil, "", "", fmt.Errorf("%w: %d of %d", session.ErrVersionOutOfRange, v, n)
		}
	}
	d := diff.Compare(m.Versions[from-1].Content, m.Versions[to-1].Content)
	return d, fmt.Sprintf("version %d", from), fmt.Sprintf("version %d", to), nil
}

// printDiff writes a coloured unified diff.
func printDiff(a *App, d *diff.Result, oldLabel, newLabel string) {
	st := a.Styles
	if d.Identical() {
		fmt.Fprintf(a.Out, "%s and %s are identical\n", oldLabel, newLabel)
		return
	}
	for _, line := range strings.Split(strings.TrimSuffix(diff.Unified(d, oldLabel, newLabel), "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			line = st.Prompt.Render(line)
		case strings.HasPrefix(line, "+"):
			line = st.Success.UnsetBold().Render(line)
		case strings.HasPrefix(line, "-"):
			line = st.Error.UnsetBold().Render(line)
		}
		fmt.Fprintln(a.Out, line)
	}
	fmt.Fprintln(a.Out, st.Dim.Render(d.Summary()))
}

func newSessionsDiffCommand(flags *GlobalFlags) *cobra.Command {
	var (
		messageID string
		from, to  int
	)
	cmd := &cobra.Command{
		Use:   "diff <id>",
		Short: "Compare versions of a regenerated answer",
		Long: `Compare two versions of a regenerated answer. By default the last
regenerated answer of the session is used, comparing the version before
the selected one with the selected one.

Examples:
  orphion sessions diff 3f2a
  orphion sessions diff 3f2a --from 1 --to 3`,
		Args: exactArgs(1, "orphion sessions diff 3f2a"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, flags, func(ctx context.Context, a *App) error {
				cs, err := a.Sessions.ResolveSession(ctx, args[0])
				if err != nil {
					return err
				}
				m, ok := regenerated(cs, messageID)
				if !ok {
					return fmt.Errorf("no regenerated answer in session %s", shortID(cs.ID))
				}
				d, oldLabel, newLabel, err := versionDiff(m, from, to)
				if err != nil {
					return &UsageError{Reason: err.Error()}
				}
				printDiff(a, d, oldLabel, newLabel)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&messageID, "message", "", "message ID (default: last regenerated answer)")
	cmd.Flags().IntVar(&from, "from", 0, "older version, 1-based")
	cmd.Flags().IntVar(&to, "to", 0, "newer version, 1-based (default: selected)")
	return cmd
}

// regenerated finds message id, or the last message with versions.
func regenerated(cs model.ChatSession, id string) (model.Message, bool) {
	if id != "" {
		if i := cs.FindMessage(id); i >= 0 {
			return cs.Messages[i], true
		}
		return model.Message{}, false
	}
	for i := len(cs.Messages) - 1; i >= 0; i-- {
		if cs.Messages[i].HasVersions() {
			return cs.Messages[i], true
		}
	}
	return model.Message{}, false
}
