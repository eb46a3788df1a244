// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/orphion/orphion/internal/events"
	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/storage"
	"github.com/orphion/orphion/internal/ui/pager"
)

func newViewCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "view [id]",
		Short: "Browse a session in a full-screen pager",
		Long: `Browse a session in a full-screen pager. Without an ID the most
recently updated session is shown.

The pager follows changes made by other orphion processes, so a session
can be watched while it is being continued elsewhere.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !IsTTY() {
				return &UsageError{Reason: "view needs an interactive terminal", Example: "orphion sessions show 3f2a"}
			}
			return runWithApp(cmd, flags, func(ctx context.Context, a *App) error {
				cs, err := a.latestOrResolve(ctx, args)
				if err != nil {
					return err
				}

				ctx, cancel := context.WithCancel(ctx)
				defer cancel()
				a.WatchStore(ctx)
				sub := a.Bus.Subscribe()
				defer sub.Cancel()

				return pager.Run(ctx, cs, a.View, a.reloadSession, sessionUpdates(ctx, sub, cs.ID))
			})
		},
	}
}

// latestOrResolve resolves args[0] or falls back to the newest session.
func (a *App) latestOrResolve(ctx context.Context, args []string) (model.ChatSession, error) {
	if len(args) == 1 {
		return a.Sessions.ResolveSession(ctx, args[0])
	}
	all, err := a.Sessions.GetAllSessions(ctx)
	if err != nil {
		return model.ChatSession{}, err
	}
	if len(all) == 0 {
		return model.ChatSession{}, storage.ErrSessionNotFound
	}
	model.SortByUpdated(all)
	return all[0], nil
}

// reloadSession is the pager's ReloadFunc. A missing session reports
// ok=false rather than an error.
func (a *App) reloadSession(ctx context.Context, id string) (model.ChatSession, bool, error) {
	cs, err := a.Sessions.GetSession(ctx, id)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return model.ChatSession{}, false, nil
	}
	if err != nil {
		return model.ChatSession{}, false, err
	}
	return cs, true, nil
}

// sessionUpdates forwards store changes that may concern id. Events
// without session IDs (watcher notices, clears, migrations) always qualify.
func sessionUpdates(ctx context.Context, sub *events.Subscription, id string) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-sub.C:
				if !ok {
					return
				}
				if !concerns(e, id) {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}

func concerns(e events.Event, id string) bool {
	if len(e.SessionIDs) == 0 {
		return true
	}
	for _, sid := range e.SessionIDs {
		if sid == id {
			return true
		}
	}
	return false
}
