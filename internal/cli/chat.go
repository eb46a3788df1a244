// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/orphion/orphion/internal/config"
	"github.com/orphion/orphion/internal/export"
	"github.com/orphion/orphion/internal/inference"
	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/vision"
)

// historyFileName is the liner history kept in the config directory.
const historyFileName = "chat_history"

func newChatCommand(flags *GlobalFlags) *cobra.Command {
	var resume string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Long: `Start an interactive chat. Every exchange is saved as a session.

Type /help inside the chat for the list of commands.

Examples:
  orphion chat
  orphion chat --resume 3f2a`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !IsTTY() {
				return &UsageError{Reason: "chat needs an interactive terminal", Example: `echo "question" | orphion ask`}
			}
			// SIGINT cancels the reply in flight, not the chat.
			ctx := context.WithoutCancel(cmd.Context())
			return runWithApp(cmd, flags, func(_ context.Context, a *App) error {
				in := newLinerInput()
				defer in.Close()
				r := newChatREPL(a, in)
				if resume != "" {
					if err := r.open(ctx, resume); err != nil {
						return err
					}
				}
				return r.run(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&resume, "resume", "", "continue a saved session (ID or prefix)")
	return cmd
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineInput reads prompted lines. liner.State implements it.
type lineInput interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// linerInput adds persistent history to liner.
type linerInput struct {
	*liner.State
	historyFile string
}

func newLinerInput() *linerInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetTabCompletionStyle(liner.TabPrints)
	line.SetCompleter(completeLine)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	in := &linerInput{State: line, historyFile: filepath.Join(dir, historyFileName)}
	if f, err := os.Open(in.historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return in
}

// Close saves history with owner-only permissions and restores the
// terminal.
func (l *linerInput) Close() error {
	if err := config.EnsureConfigDir(); err == nil {
		if f, err := os.OpenFile(l.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = l.WriteHistory(f)
			f.Close()
		}
	}
	return l.State.Close()
}

// slashCommands are the completion candidates for a leading "/".
var slashCommands = []string{
	"/diff", "/export", "/help", "/image", "/new", "/next", "/open",
	"/prev", "/quit", "/reasoning", "/regen", "/search", "/sessions", "/title",
}

// completeLine completes command names, then the arguments of commands
// with a fixed vocabulary.
func completeLine(line string) []string {
	if !strings.HasPrefix(line, "/") {
		return nil
	}
	name, arg, hasArg := strings.Cut(line, " ")
	if !hasArg {
		var out []string
		for _, c := range slashCommands {
			if strings.HasPrefix(c, name) {
				out = append(out, c)
			}
		}
		return out
	}

	var words []string
	switch name {
	case "/search":
		words = []string{"general", "deep"}
	case "/export":
		words = export.Formats
	default:
		return nil
	}
	var out []string
	for _, w := range words {
		if strings.HasPrefix(w, strings.TrimSpace(arg)) {
			out = append(out, name+" "+w)
		}
	}
	return out
}

// =============================================================================
// REPL
// =============================================================================

type chatREPL struct {
	app     *App
	in      lineInput
	session model.ChatSession
	mode    model.SearchMode
	pending *Attachment

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newChatREPL(a *App, in lineInput) *chatREPL {
	return &chatREPL{
		app:     a,
		in:      in,
		session: a.Sessions.CreateSession(),
		mode:    a.SearchMode(),
	}
}

func (r *chatREPL) run(ctx context.Context) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		for range sig {
			if r.cancelTurn() {
				fmt.Fprintln(r.app.ErrOut, "\n"+r.app.Styles.Warning.Render("[Cancelled]"))
			}
		}
	}()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	r.app.WatchStore(watchCtx)

	r.printWelcome()
	for {
		line, err := r.in.Prompt("orphion> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.app.Out)
				r.printGoodbye()
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.in.AppendHistory(line)

		quit, err := r.handle(ctx, line)
		if err != nil {
			fmt.Fprintf(r.app.ErrOut, "%s %v\n", r.app.Styles.Error.Render("[Error]"), err)
		}
		if quit {
			r.printGoodbye()
			return nil
		}
	}
}

// handle processes one line of input. It reports whether to exit.
func (r *chatREPL) handle(ctx context.Context, line string) (bool, error) {
	if strings.HasPrefix(line, "/") {
		return r.command(ctx, line)
	}
	if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
		return true, nil
	}
	return false, r.turn(ctx, func(ctx context.Context, opts inference.Options) (model.ChatSession, error) {
		img := r.pending
		r.pending = nil
		return r.app.send(ctx, r.session, line, img, opts)
	})
}

// turn runs one cancellable generation and prints the newest AI message.
func (r *chatREPL) turn(ctx context.Context, fn func(context.Context, inference.Options) (model.ChatSession, error)) error {
	tctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
		cancel()
	}()

	live := r.app.newLiveOutput(r.app.Config.UI.Stream)
	live.begin(r.app.Styles)
	cs, err := fn(tctx, live.options(r.mode, r.app.Styles))
	live.finish()

	// Keep the user message even when the reply failed.
	r.session = cs
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	if m, ok := lastAI(cs); ok {
		r.app.printMessage(m)
	}
	return nil
}

func (r *chatREPL) cancelTurn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	r.cancel = nil
	return true
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

func (r *chatREPL) command(ctx context.Context, line string) (bool, error) {
	parts := strings.Fields(line)
	name := strings.ToLower(parts[0])
	args := parts[1:]
	st := r.app.Styles
	out := r.app.Out

	switch name {
	case "/help", "/h", "/?", "/":
		r.printHelp()

	case "/quit", "/q", "/exit":
		return true, nil

	case "/new":
		r.session = r.app.Sessions.CreateSession()
		r.pending = nil
		fmt.Fprintln(out, st.Success.Render("[New session]"))

	case "/sessions", "/ls":
		all, err := r.app.Sessions.GetAllSessions(ctx)
		if err != nil {
			return false, err
		}
		model.SortByUpdated(all)
		if len(all) > 10 {
			all = all[:10]
		}
		printSessionTable(out, st, all, r.app.Width)

	case "/open":
		if len(args) != 1 {
			return false, &UsageError{Reason: "usage: /open <id>"}
		}
		return false, r.open(ctx, args[0])

	case "/regen", "/regenerate":
		return false, r.turn(ctx, func(ctx context.Context, opts inference.Options) (model.ChatSession, error) {
			return r.app.regenerate(ctx, r.session, opts)
		})

	case "/prev", "/next":
		cs, err := r.app.stepVersion(ctx, r.session, name == "/next")
		if err != nil {
			return false, err
		}
		r.session = cs
		if m, ok := lastAI(cs); ok {
			r.app.printMessage(m)
		}

	case "/diff":
		m, ok := lastAI(r.session)
		if !ok {
			return false, errors.New("no answer to compare yet")
		}
		d, oldLabel, newLabel, err := versionDiff(m, 0, 0)
		if err != nil {
			return false, err
		}
		printDiff(r.app, d, oldLabel, newLabel)

	case "/search":
		if len(args) > 0 {
			r.mode = model.ParseSearchMode(strings.Join(args, " "))
		}
		fmt.Fprintf(out, "%s %s\n", st.Dim.Render("Search mode:"), r.mode)

	case "/image":
		if len(args) == 0 {
			r.pending = nil
			fmt.Fprintln(out, st.Dim.Render("Attachment cleared"))
			break
		}
		path := strings.Join(args, " ")
		data, mime, err := vision.LoadImage(path)
		if err != nil {
			return false, err
		}
		r.pending = &Attachment{Path: path, Data: data, Mime: mime}
		fmt.Fprintf(out, "%s %s (%s)\n", st.Success.Render("[Attached]"), filepath.Base(path), mime)

	case "/title":
		if len(r.session.Messages) < 2 {
			return false, errors.New("the session needs a reply before it can be titled")
		}
		cs, err := r.app.Sessions.GenerateAndUpdateTitle(ctx, r.session)
		if err != nil {
			return false, err
		}
		r.session = cs
		fmt.Fprintf(out, "%s %s\n", st.Dim.Render("Title:"), cs.Title)

	case "/reasoning":
		r.app.View.ShowReasoning = !r.app.View.ShowReasoning
		fmt.Fprintf(out, "%s %v\n", st.Dim.Render("Show reasoning:"), r.app.View.ShowReasoning)

	case "/export":
		if len(r.session.Messages) == 0 {
			return false, errors.New("nothing to export yet")
		}
		format := "markdown"
		if len(args) > 0 {
			format = args[0]
		}
		opts := export.DefaultOptions()
		ex, err := export.New(format, opts)
		if err != nil {
			return false, err
		}
		path, err := export.ExportToFile(r.session, ex, opts)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "%s %s\n", st.Success.Render("[Exported]"), path)

	default:
		return false, fmt.Errorf("unknown command: %s (type /help for commands)", name)
	}
	return false, nil
}

// open switches to a saved session and prints it.
func (r *chatREPL) open(ctx context.Context, id string) error {
	cs, err := r.app.Sessions.ResolveSession(ctx, id)
	if err != nil {
		return err
	}
	r.session = cs
	r.pending = nil
	fmt.Fprintln(r.app.Out, r.app.View.RenderSession(cs))
	fmt.Fprintln(r.app.Out)
	return nil
}

// =============================================================================
// DISPLAY
// =============================================================================

func (r *chatREPL) printWelcome() {
	st := r.app.Styles
	out := r.app.Out
	fmt.Fprintln(out, st.Title.Render("Orphion chat"))
	fmt.Fprintln(out, st.separator(30))
	fmt.Fprintln(out, st.field("Model:", r.app.Client.Model()))
	fmt.Fprintln(out, st.field("Search:", string(r.mode)))
	if !r.app.Client.IsConfigured() {
		fmt.Fprintln(out, st.Warning.Render("No API key configured. Set ORPHION_API_KEY or run: orphion config set inference.api_key <key>"))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, st.Dim.Render("Type a message and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(out)
}

func (r *chatREPL) printHelp() {
	st := r.app.Styles
	commands := []struct{ cmd, desc string }{
		{"/new", "Start a new session"},
		{"/sessions", "List recent sessions"},
		{"/open <id>", "Continue a saved session"},
		{"/regen", "Regenerate the last answer as a new version"},
		{"/prev, /next", "Show the previous or next version"},
		{"/diff", "Compare the shown version with the one before it"},
		{"/search [mode]", "Show or set the search mode (general, deep)"},
		{"/image [path]", "Attach an image to the next message"},
		{"/title", "Generate a title now"},
		{"/reasoning", "Toggle full reasoning display"},
		{"/export [format]", "Export the session (markdown, json, yaml, html)"},
		{"/quit", "Exit"},
	}
	fmt.Fprintln(r.app.Out, st.Title.Render("Commands"))
	for _, c := range commands {
		fmt.Fprintf(r.app.Out, "  %s %s\n", st.Prompt.Render(fmt.Sprintf("%-18s", c.cmd)), st.Dim.Render(c.desc))
	}
	fmt.Fprintln(r.app.Out)
}

func (r *chatREPL) printGoodbye() {
	if len(r.session.Messages) == 0 {
		return
	}
	fmt.Fprintf(r.app.Out, "%s %s %s\n",
		r.app.Styles.Dim.Render("Saved session"),
		r.app.Styles.ID.Render(shortID(r.session.ID)),
		r.session.Title)
}
