// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/orphion/orphion/internal/inference"
	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/session"
	"github.com/orphion/orphion/internal/vision"
)

// =============================================================================
// CONVERSATION TURNS
// =============================================================================

// errNothingToRegenerate is returned when a session has no AI reply yet.
var errNothingToRegenerate = errors.New("no AI response to regenerate")

// Attachment is an image waiting to be sent with the next message.
type Attachment struct {
	Path string
	Data string // base64
	Mime string
}

// send appends a user message, produces the AI reply and saves the
// session. The returned session includes both messages.
func (a *App) send(ctx context.Context, cs model.ChatSession, text string, img *Attachment, opts inference.Options) (model.ChatSession, error) {
	var mopts session.MessageOptions
	if img != nil {
		mopts.ImageData = img.Data
	}
	cs = a.Sessions.AddMessage(cs, text, model.SenderUser, mopts)
	if err := a.Sessions.SaveSession(ctx, cs); err != nil {
		return cs, err
	}

	var (
		reply inference.Reply
		err   error
	)
	if img != nil {
		var res vision.Result
		res, err = a.Analyzer.Analyze(ctx, cs.Messages, opts)
		if err == nil {
			last := cs.Messages[len(cs.Messages)-1]
			cs = a.Sessions.UpdateMessage(cs, last.ID, session.MessagePatch{VisionMetadata: &res.Metadata})
			reply = res.Reply
		}
	} else {
		reply, err = a.Responder.Respond(ctx, cs.Messages, opts)
	}
	if err != nil {
		return cs, err
	}

	cs = a.Sessions.AddMessage(cs, reply.Content, model.SenderAI, session.MessageOptions{
		Reasoning:             reply.Reasoning,
		GenerationTimeSeconds: reply.GenerationSeconds(),
		WebSearchMetadata:     reply.Search,
	})
	return cs, a.Sessions.SaveSession(ctx, cs)
}

// regenerate produces a new version of the last AI message from the
// history before it.
func (a *App) regenerate(ctx context.Context, cs model.ChatSession, opts inference.Options) (model.ChatSession, error) {
	idx := -1
	for i := len(cs.Messages) - 1; i >= 0; i-- {
		if cs.Messages[i].Sender == model.SenderAI {
			idx = i
			break
		}
	}
	if idx < 0 {
		return cs, errNothingToRegenerate
	}

	reply, err := a.Responder.Respond(ctx, cs.Messages[:idx], opts)
	if err != nil {
		return cs, err
	}
	out, err := a.Sessions.RegenerateMessage(cs, cs.Messages[idx].ID, reply.Content, session.VersionOptions{
		Reasoning:             reply.Reasoning,
		GenerationTimeSeconds: reply.GenerationSeconds(),
		WebSearchMetadata:     reply.Search,
	})
	if err != nil {
		return cs, err
	}
	return out, a.Sessions.SaveSession(ctx, out)
}

// stepVersion moves the last AI message one version forward or back.
func (a *App) stepVersion(ctx context.Context, cs model.ChatSession, forward bool) (model.ChatSession, error) {
	last, ok := lastAI(cs)
	if !ok {
		return cs, errNothingToRegenerate
	}
	if !last.HasVersions() {
		return cs, fmt.Errorf("message has only one version")
	}
	var (
		out model.ChatSession
		err error
	)
	if forward {
		out, err = a.Sessions.NextVersion(cs, last.ID)
	} else {
		out, err = a.Sessions.PreviousVersion(cs, last.ID)
	}
	if err != nil {
		return cs, err
	}
	return out, a.Sessions.SaveSession(ctx, out)
}

func lastAI(cs model.ChatSession) (model.Message, bool) {
	for i := len(cs.Messages) - 1; i >= 0; i-- {
		if cs.Messages[i].Sender == model.SenderAI {
			return cs.Messages[i], true
		}
	}
	return model.Message{}, false
}
