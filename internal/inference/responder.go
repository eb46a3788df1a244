// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/orphion/orphion/internal/cloud"
	"github.com/orphion/orphion/internal/logging"
	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/search"
)

// DefaultSystemPrompt is sent when none is configured.
const DefaultSystemPrompt = `You are Orphion, a helpful assistant. Format answers in Markdown. Use $...$ for inline math and $$...$$ for display math. For charts, emit a fenced block tagged "chart" holding JSON with "type" (line, bar, pie or area), "title" and "data" (an array of objects whose first key is the label).`

// searchInstructions is appended to the system prompt when a searcher is
// available.
const searchInstructions = `If the question needs current or external information, reply with only [WEB_SEARCH "your query"] and nothing else. You will then receive the search results.`

// Completer is the part of the cloud client a Responder needs.
type Completer interface {
	ChatWithModel(ctx context.Context, model string, messages []cloud.ChatMessage) (*cloud.ChatResponse, error)
	ChatStream(ctx context.Context, model string, messages []cloud.ChatMessage, callback cloud.StreamCallback) (string, error)
}

// Reply is a finished AI answer.
type Reply struct {
	Content        string
	Reasoning      string
	GenerationTime time.Duration
	Search         *model.SearchMetadata
}

// GenerationSeconds returns the generation time for the message field.
func (r Reply) GenerationSeconds() *float64 {
	return model.Seconds(r.GenerationTime)
}

// Options tunes a single Respond call.
type Options struct {
	// SearchMode is used if the model asks for a web search.
	SearchMode model.SearchMode

	// OnDelta, when set, switches to streaming and receives each content
	// delta as it arrives.
	OnDelta func(delta string)

	// OnSearch is called before a requested search runs.
	OnSearch func(query string)
}

// Responder produces AI replies for a session.
type Responder struct {
	client       Completer
	searcher     search.Searcher
	guard        *Guard
	model        string
	systemPrompt string
	log          *logging.Logger
	now          func() time.Time
}

// Option configures a Responder.
type Option func(*Responder)

// WithSearcher enables [WEB_SEARCH] directives.
func WithSearcher(s search.Searcher) Option {
	return func(r *Responder) { r.searcher = s }
}

// WithModel sets the model; "" uses the client default.
func WithModel(m string) Option {
	return func(r *Responder) { r.model = m }
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(p string) Option {
	return func(r *Responder) {
		if strings.TrimSpace(p) != "" {
			r.systemPrompt = p
		}
	}
}

// WithGuard shares a guard between responders.
func WithGuard(g *Guard) Option {
	return func(r *Responder) { r.guard = g }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Responder) { r.log = l.OrNop().Named("inference") }
}

// WithClock replaces time.Now for generation timing.
func WithClock(now func() time.Time) Option {
	return func(r *Responder) { r.now = now }
}

// NewResponder creates a responder with its own Guard unless one is given.
func NewResponder(client Completer, opts ...Option) *Responder {
	r := &Responder{
		client:       client,
		systemPrompt: DefaultSystemPrompt,
		log:          logging.Nop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.guard == nil {
		r.guard = &Guard{}
	}
	return r
}

// Guard returns the responder's guard.
func (r *Responder) Guard() *Guard {
	return r.guard
}

// Respond answers the last message of history. It fails immediately with
// ErrAlreadyGenerating while another request holds the guard.
func (r *Responder) Respond(ctx context.Context, history []model.Message, opts Options) (Reply, error) {
	var reply Reply
	err := r.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		reply, err = r.Complete(ctx, history, opts)
		return err
	})
	return reply, err
}

// Complete is Respond without the guard, for callers already holding it.
func (r *Responder) Complete(ctx context.Context, history []model.Message, opts Options) (Reply, error) {
	start := r.now()
	messages := r.buildMessages(history)

	content, reasoning, err := r.ask(ctx, messages, opts)
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{Content: content, Reasoning: reasoning}
	if query, ok := ParseSearchDirective(content); ok && r.searcher != nil {
		reply, err = r.answerWithSearch(ctx, messages, content, query, opts)
		if err != nil {
			return Reply{}, err
		}
		if reply.Reasoning == "" {
			reply.Reasoning = reasoning
		}
	}
	reply.Content = StripSearchDirectives(reply.Content)
	reply.GenerationTime = r.now().Sub(start)
	r.log.Debug("reply generated", "duration", reply.GenerationTime, "searched", reply.Search != nil)
	return reply, nil
}

// answerWithSearch runs the requested search and asks again with the
// results. A failed search is reported to the model instead of failing the
// reply.
func (r *Responder) answerWithSearch(ctx context.Context, messages []cloud.ChatMessage, directive, query string, opts Options) (Reply, error) {
	if opts.OnSearch != nil {
		opts.OnSearch(query)
	}
	mode := opts.SearchMode
	if mode == "" {
		mode = model.SearchGeneral
	}

	var followUp string
	var meta *model.SearchMetadata
	result, err := r.searcher.Search(ctx, query, mode)
	if err != nil {
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		r.log.Warn("web search failed", "query", query, "error", err)
		followUp = fmt.Sprintf("The web search for %q failed (%v). Answer the original question from your own knowledge and say that the search was unavailable.", query, err)
	} else {
		meta = &result
		followUp = search.FormatResults(result) + "\nUsing these results, answer the original question. Cite sources by URL where relevant. Do not request another search."
	}

	messages = append(messages,
		cloud.NewAssistantMessage(directive),
		cloud.NewUserMessage(followUp),
	)
	content, reasoning, err := r.ask(ctx, messages, opts)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Content: content, Reasoning: reasoning, Search: meta}, nil
}

// ask performs one completion, streaming when opts.OnDelta is set, and
// splits out the reasoning.
func (r *Responder) ask(ctx context.Context, messages []cloud.ChatMessage, opts Options) (content, reasoning string, err error) {
	var raw, providerReasoning string
	if opts.OnDelta != nil {
		var rb strings.Builder
		raw, err = r.client.ChatStream(ctx, r.model, messages, func(chunk cloud.StreamChunk) {
			if d := chunk.GetContent(); d != "" {
				opts.OnDelta(d)
			}
			rb.WriteString(chunk.GetReasoning())
		})
		providerReasoning = rb.String()
	} else {
		var resp *cloud.ChatResponse
		resp, err = r.client.ChatWithModel(ctx, r.model, messages)
		if resp != nil {
			raw, providerReasoning = resp.GetContent(), resp.GetReasoning()
		}
	}
	if err != nil {
		return "", "", err
	}

	content, reasoning = ExtractReasoning(raw)
	if strings.TrimSpace(providerReasoning) != "" {
		reasoning = strings.TrimSpace(strings.TrimSpace(providerReasoning) + "\n\n" + reasoning)
	}
	return content, reasoning, nil
}

// buildMessages maps the session history onto API messages. Image
// attachments are represented by their analysis, not the pixels.
func (r *Responder) buildMessages(history []model.Message) []cloud.ChatMessage {
	prompt := r.systemPrompt
	if r.searcher != nil {
		prompt += "\n\n" + searchInstructions
	}
	out := make([]cloud.ChatMessage, 0, len(history)+1)
	out = append(out, cloud.NewSystemMessage(prompt))
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if m.VisionMetadata != nil && m.VisionMetadata.Description != "" {
			content = strings.TrimSpace(content + "\n\n[Attached image: " + m.VisionMetadata.Description + "]")
		}
		if content == "" {
			continue
		}
		out = append(out, cloud.ChatMessage{Role: m.Sender.APIRole(), Content: content})
	}
	return out
}
