// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/vision"
)

// maxStdinQuestion caps how much piped input is read.
const maxStdinQuestion = 1 << 20

type askOptions struct {
	search    string
	image     string
	sessionID string
	save      bool
	raw       bool
	noStream  bool
}

func newAskCommand(flags *GlobalFlags) *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question",
		Long: `Ask a single question and print the formatted answer.

The question is read from the arguments, or from stdin when none are given.

Examples:
  orphion ask "explain goroutines"
  orphion ask --search deep "latest Go release notes"
  orphion ask --image diagram.png "what does this show?"
  git diff | orphion ask "review this change"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, flags, func(ctx context.Context, a *App) error {
				return runAsk(ctx, a, args, opts)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.search, "search", "", "search mode if the model searches: general or deep")
	f.StringVar(&opts.image, "image", "", "attach an image file")
	f.StringVar(&opts.sessionID, "session", "", "continue a saved session (ID or prefix)")
	f.BoolVar(&opts.save, "save", false, "save the exchange as a new session")
	f.BoolVar(&opts.raw, "raw", false, "print the answer without formatting")
	f.BoolVar(&opts.noStream, "no-stream", false, "wait for the full answer")
	return cmd
}

func runAsk(ctx context.Context, a *App, args []string, opts askOptions) error {
	question, err := readQuestion(a.In, args)
	if err != nil {
		return err
	}

	var img *Attachment
	if opts.image != "" {
		data, mime, err := vision.LoadImage(opts.image)
		if err != nil {
			return wrapCmd("ask", "image", err)
		}
		img = &Attachment{Path: opts.image, Data: data, Mime: mime}
	}

	cs := a.Sessions.CreateSession()
	if opts.sessionID != "" {
		if cs, err = a.Sessions.ResolveSession(ctx, opts.sessionID); err != nil {
			return err
		}
	}

	mode := a.SearchMode()
	if opts.search != "" {
		mode = model.ParseSearchMode(opts.search)
	}

	live := a.newLiveOutput(a.Config.UI.Stream && !opts.noStream)
	live.begin(a.Styles)
	cs, err = a.askOnce(ctx, cs, question, img, live, mode, opts.save || opts.sessionID != "")
	live.finish()
	if err != nil {
		return err
	}

	reply, _ := lastAI(cs)
	if opts.raw {
		fmt.Fprintln(a.Out, reply.Content)
		return nil
	}
	a.printMessage(reply)
	return nil
}

// askOnce runs one turn. Unsaved turns use a memory-only session service
// so nothing reaches the store.
func (a *App) askOnce(ctx context.Context, cs model.ChatSession, question string, img *Attachment, live *liveOutput, mode model.SearchMode, persist bool) (model.ChatSession, error) {
	if persist {
		return a.send(ctx, cs, question, img, live.options(mode, a.Styles))
	}
	return a.scratch().send(ctx, cs, question, img, live.options(mode, a.Styles))
}

// readQuestion joins args. Piped stdin is read too: alone it is the
// question, after args it is appended as context.
func readQuestion(in io.Reader, args []string) (string, error) {
	q := strings.TrimSpace(strings.Join(args, " "))
	if in != nil && !isTerminalReader(in) {
		data, err := io.ReadAll(io.LimitReader(in, maxStdinQuestion))
		if err != nil {
			return "", err
		}
		if piped := strings.TrimSpace(string(data)); piped != "" {
			if q == "" {
				q = piped
			} else {
				q += "\n\n" + piped
			}
		}
	}
	if q == "" {
		return "", &UsageError{Reason: "no question given", Example: `orphion ask "what is a goroutine?"`}
	}
	return q, nil
}
