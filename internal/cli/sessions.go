// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/orphion/orphion/internal/export"
	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/util"
)

func newSessionsCommand(flags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session", "s"},
		Short:   "Manage saved chat sessions",
		Long: `Manage saved chat sessions.

Sessions are addressed by ID or by a unique ID prefix.

Examples:
  orphion sessions list
  orphion sessions show 3f2a
  orphion sessions search "borrow checker"
  orphion sessions export 3f2a --format html --open
  orphion sessions diff 3f2a --from 1 --to 2
  orphion sessions delete 3f2a 9c1b --yes`,
	}
	cmd.AddCommand(
		newSessionsListCommand(flags),
		newSessionsShowCommand(flags),
		newSessionsSearchCommand(flags),
		newSessionsRenameCommand(flags),
		newSessionsDeleteCommand(flags),
		newSessionsClearCommand(flags),
		newSessionsExportCommand(flags),
		newSessionsStatsCommand(flags),
		newSessionsDiffCommand(flags),
	)
	return cmd
}

// =============================================================================
// LIST
// =============================================================================

// sessionInfo is the JSON form of a listed session.
type sessionInfo struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Preview      string    `json:"preview,omitempty"`
}

func newSessionsListCommand(flags *GlobalFlags) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls", "l"},
		Short:   "List sessions, most recently updated first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithApp(cmd, flags, func(ctx context.Context, a *App) error {
				all, err := a.Sessions.GetAllSessions(ctx)
				if err != nil {
					return wrapCmd("sessions list", "load sessions", err)
				}
				model.SortByUpdated(all)
				if limit > 0 && len(all) > limit {
					all = all[:limit]
				}
				if asJSON {
					return writeSessionsJSON(a.Out, all)
				}
				if len(all) == 0 {
					fmt.Fprintln(a.Out, a.Styles.Dim.Render("No saved sessions. Start one with: orphion chat"))
					return nil
				}
				printSessionTable(a.Out, a.Styles, all, a.Width)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n sessions")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func writeSessionsJSON(w io.Writer, sessions []model.ChatSession) error {
	out := make([]sessionInfo, 0, len(sessions))
	for _, cs := range sessions {
		out = append(out, sessionInfo{
			ID:           cs.ID,
			Title:        cs.Title,
			MessageCount: len(cs.Messages),
			CreatedAt:    cs.CreatedAt,
			UpdatedAt:    cs.UpdatedAt,
			Preview:      util.TruncateRunes(util.CollapseWhitespace(cs.Preview()), 80),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// printSessionTable prints one line per session fitted to width.
func printSessionTable(w io.Writer, st Styles, sessions []model.ChatSession, width int) {
	const (
		idWidth   = 8
		msgsWidth = 5
		agoWidth  = 14
	)
	titleWidth := width - idWidth - msgsWidth - agoWidth - 3
	if titleWidth < 10 {
		titleWidth = 10
	}

	fmt.Fprintf(w, "%s %s %s %s\n",
		st.Label.UnsetWidth().Render(util.PadRight("ID", idWidth)),
		st.Label.UnsetWidth().Render(util.PadRight("Title", titleWidth)),
		st.Label.UnsetWidth().Render(util.PadRight("Msgs", msgsWidth)),
		st.Label.UnsetWidth().Render("Updated"))
	fmt.Fprintln(w, st.separator(idWidth+titleWidth+msgsWidth+agoWidth+3))
	for _, cs := range sessions {
		fmt.Fprintf(w, "%s %s %s %s\n",
			st.ID.Render(shortID(cs.ID)),
			st.Value.Render(util.PadRight(util.TruncateWidth(cs.Title, titleWidth), titleWidth)),
			util.PadRight(fmt.Sprintf("%d", len(cs.Messages)), msgsWidth),
			st.Dim.Render(timeAgo(cs.UpdatedAt)))
	}
	fmt.Fprintf(w, "\n%s\n", st.Dim.Render(fmt.Sprintf("%d session(s)", len(sessions))))
}

// =============================================================================
// SHOW / SEARCH / RENAME
// =============================================================================

func newSessionsShowCommand(flags *GlobalFlags) *cobra.Command {
	var reasoning bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a session",
		Args:  exactArgs(1, "orphion sessions show 3f2a"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, flags, func(ctx context.Context, a *App) error {
				cs, err := a.Sessions.ResolveSession(ctx, args[0])
				if err != nil {
					return err
				}
				if reasoning {
					a.View.ShowReasoning = true
				}
				fmt.Fprintln(a.Out, a.View.RenderSession(cs))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reasoning, "reasoning", false, "show full model reasoning")
	return cmd
}

func newSessionsSearchCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "search <text>",
		Short: "Find sessions by title or message text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runWithApp(cmd, flags, func(ctx context.Context, a *App) error {
				hits, err := a.Sessions.Search(ctx, query)
				if err != nil {
					return wrapCmd("sessions search", "search sessions", err)
				}
				if len(hits) == 0 {
					fmt.Fprintf(a.Out, "No sessions match %q.\n", query)
					return nil
				}
				for _, h := range hits {
					fmt.Fprintf(a.Out, "%s %s\n", a.Styles.ID.Render(shortID(h.Session.ID)), a.Styles.Value.Render(h.Session.Title))
					if h.Snippet != "" {
						fmt.Fprintf(a.Out, "    %s\n", a.Styles.Dim.Render(h.Snippet))
					}
					if n := len(h.MessageIDs); n > 0 {
						fmt.Fprintf(a.Out, "    %s\n", a.Styles.Dim.Render(fmt.Sprintf("%d matching message(s)", n)))
					}
				}
				return nil
			})
		},
	}
}

func newSessionsRenameCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Set a session title",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(strings.Join(args[1:], " "))
			if title == "" {
				return &UsageError{Reason: "title must not be empty", Example: `orphion sessions rename 3f2a "Rust lifetimes"`}
			}
			return runWithApp(cmd, flags, func(ctx context.Context, a *App) error {
				cs, err := a.Sessions.ResolveSession(ctx, args[0])
				if err != nil {
					return err
				}
				cs.Title = title
				// A manual title is final; background generation must not replace it.
				cs.TitleGenerated = true
				if err := a.Sessions.SaveSession(ctx, cs); err != nil {
					return wrapCmd("sessions rename", "save session", err)
				}
				fmt.Fprintf(a.Out, "%s %s\n", a.Styles.Success.Render("Renamed"), a.Styles.ID.Render(shortID(cs.ID)))
				return nil
			})
		},
	}
}

// =============================================================================
// DELETE / CLEAR
// =============================================================================

func newSessionsDeleteCommand(flags *GlobalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete sessions",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, flags, func(ctx context.Context, a *App) error {
				ids := make([]string, 0, len(args))
				for _, arg := range args {
					cs, err := a.Sessions.ResolveSession(ctx, arg)
					if err != nil {
						return err
					}
					ids = append(ids, cs.ID)
				}
				ok, err := confirm(a, yes, fmt.Sprintf("Delete %d session(s)?", len(ids)))
				if err != nil || !ok {
					return err
				}
				n, err := a.Sessions.DeleteSessions(ctx, ids...)
				if err != nil {
					return wrapCmd("sessions delete", "delete sessions", err)
				}
				fmt.Fprintf(a.Out, "%s %d session(s)\n", a.Styles.Success.Render("Deleted"), n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newSessionsClearCommand(flags *GlobalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithApp(cmd, flags, func(ctx context.Context, a *App) error {
				ok, err := confirm(a, yes, "Delete ALL sessions? This cannot be undone.")
				if err != nil || !ok {
					return err
				}
				if err := a.Sessions.DeleteAllSessions(ctx); err != nil {
					return wrapCmd("sessions clear", "delete sessions", err)
				}
				fmt.Fprintln(a.Out, a.Styles.Success.Render("All sessions deleted"))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// confirm asks a yes/no question on the terminal. Without a terminal the
// --yes flag is required.
func confirm(a *App, yes bool, question string) (bool, error) {
	if yes {
		return true, nil
	}
	if !isTerminalReader(a.In) {
		return false, &UsageError{Reason: "confirmation required; pass --yes when not running interactively"}
	}
	fmt.Fprintf(a.Out, "%s [y/N]: ", a.Styles.Warning.Render(question))
	line, err := bufio.NewReader(a.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	fmt.Fprintln(a.Out, a.Styles.Dim.Render("Cancelled"))
	return false, nil
}

// =============================================================================
// EXPORT
// =============================================================================

func newSessionsExportCommand(flags *GlobalFlags) *cobra.Command {
	var (
		format      string
		outDir      string
		all         bool
		open        bool
		noReasoning bool
		noMetadata  bool
		images      bool
		theme       string
	)
	cmd := &cobra.Command{
		Use:   "export [id]",
		Short: "Export sessions to markdown, json, yaml or html",
		Long: `Export a session, or every session with --all, to a file.

Examples:
  orphion sessions export 3f2a
  orphion sessions export 3f2a --format html --theme light --open
  orphion sessions export --all --format json --out ./backup`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return &UsageError{Reason: "give a session ID or --all", Example: "orphion sessions export 3f2a"}
			}
			opts := export.DefaultOptions()
			opts.OutputDir = outDir
			opts.OpenAfterExport = open
			opts.IncludeReasoning = !noReasoning
			opts.IncludeMetadata = !noMetadata
			opts.IncludeImages = images
			opts.Theme = theme

			return runWithApp(cmd, flags, func(ctx context.Context, a *App) error {
				if all {
					sessions, err := a.Sessions.GetAllSessions(ctx)
					if err != nil {
						return wrapCmd("sessions export", "load sessions", err)
					}
					paths, err := export.ExportAll(ctx, sessions, format, opts)
					if err != nil {
						return wrapCmd("sessions export", "export sessions", err)
					}
					fmt.Fprintf(a.Out, "%s %d session(s) to %s\n", a.Styles.Success.Render("Exported"), len(paths), outDir)
					return nil
				}

				ex, err := export.New(format, opts)
				if err != nil {
					return &UsageError{Reason: err.Error()}
				}
				cs, err := a.Sessions.ResolveSession(ctx, args[0])
				if err != nil {
					return err
				}
				path, err := export.ExportToFile(cs, ex, opts)
				if err != nil {
					return wrapCmd("sessions export", "export session", err)
				}
				fmt.Fprintf(a.Out, "%s %s\n", a.Styles.Success.Render("Exported"), path)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", "markdown", "markdown, json, yaml or html")
	f.StringVarP(&outDir, "out", "o", ".", "output directory")
	f.BoolVar(&all, "all", false, "export every session")
	f.BoolVar(&open, "open", false, "open the file after exporting")
	f.BoolVar(&noReasoning, "no-reasoning", false, "leave out model reasoning")
	f.BoolVar(&noMetadata, "no-metadata", false, "leave out session and message details")
	f.BoolVar(&images, "images", false, "embed attached images (json, yaml, html)")
	f.StringVar(&theme, "theme", "dark", "html theme: dark or light")
	return cmd
}

// =============================================================================
// STATS
// =============================================================================

// sessionStats summarises the store.
type sessionStats struct {
	Sessions      int       `json:"sessions"`
	Messages      int       `json:"messages"`
	UserMessages  int       `json:"user_messages"`
	Regenerated   int       `json:"regenerated_messages"`
	Versions      int       `json:"versions"`
	WithImages    int       `json:"messages_with_images"`
	WithSearch    int       `json:"messages_with_search"`
	TitlesPending int       `json:"titles_pending"`
	Oldest        time.Time `json:"oldest,omitempty"`
	Newest        time.Time `json:"newest,omitempty"`
	Backend       string    `json:"backend"`
	StorageKey    string    `json:"storage_key"`
}

func calculateStats(sessions []model.ChatSession) sessionStats {
	var s sessionStats
	s.Sessions = len(sessions)
	for _, cs := range sessions {
		if s.Oldest.IsZero() || cs.CreatedAt.Before(s.Oldest) {
			s.Oldest = cs.CreatedAt
		}
		if cs.UpdatedAt.After(s.Newest) {
			s.Newest = cs.UpdatedAt
		}
		if !cs.TitleGenerated && cs.UserMessageCount() > 0 {
			s.TitlesPending++
		}
		for _, m := range cs.Messages {
			s.Messages++
			if m.IsUser() {
				s.UserMessages++
			}
			if m.HasVersions() {
				s.Regenerated++
				s.Versions += m.VersionCount()
			}
			if m.ImageData != "" {
				s.WithImages++
			}
			if m.WebSearchMetadata != nil {
				s.WithSearch++
			}
		}
	}
	return s
}

func newSessionsStatsCommand(flags *GlobalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show session statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithApp(cmd, flags, func(ctx context.Context, a *App) error {
				sessions, err := a.Sessions.GetAllSessions(ctx)
				if err != nil {
					return wrapCmd("sessions stats", "load sessions", err)
				}
				stats := calculateStats(sessions)
				stats.Backend = a.Config.Storage.Backend
				stats.StorageKey = a.Repo.Key()
				if asJSON {
					enc := json.NewEncoder(a.Out)
					enc.SetIndent("", "  ")
					return enc.Encode(stats)
				}

				st := a.Styles
				fmt.Fprintln(a.Out, st.Title.Render("Session Statistics"))
				fmt.Fprintln(a.Out, st.separator(40))
				fmt.Fprintln(a.Out, st.field("Sessions:", fmt.Sprint(stats.Sessions)))
				fmt.Fprintln(a.Out, st.field("Messages:", fmt.Sprintf("%d (%d from you)", stats.Messages, stats.UserMessages)))
				fmt.Fprintln(a.Out, st.field("Regenerated:", fmt.Sprintf("%d (%d versions)", stats.Regenerated, stats.Versions)))
				fmt.Fprintln(a.Out, st.field("With images:", fmt.Sprint(stats.WithImages)))
				fmt.Fprintln(a.Out, st.field("With search:", fmt.Sprint(stats.WithSearch)))
				fmt.Fprintln(a.Out, st.field("Untitled:", fmt.Sprint(stats.TitlesPending)))
				if stats.Sessions > 0 {
					fmt.Fprintln(a.Out, st.field("Oldest:", stats.Oldest.Local().Format("2006-01-02 15:04")))
					fmt.Fprintln(a.Out, st.field("Newest:", stats.Newest.Local().Format("2006-01-02 15:04")))
				}
				fmt.Fprintln(a.Out, st.field("Backend:", stats.Backend))
				fmt.Fprintln(a.Out, st.field("Key:", stats.StorageKey))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

// =============================================================================
// HELPERS
// =============================================================================

// shortID is the first eight characters of a session ID.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// timeAgo renders t relative to now for listings.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour") + " ago"
	case d < 7*24*time.Hour:
		return plural(int(d.Hours()/24), "day") + " ago"
	default:
		return t.Local().Format("2006-01-02")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
