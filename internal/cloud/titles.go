// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"strings"

	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/util"
)

const titleSystemPrompt = `You name chat conversations. Reply with a short, specific title of 3 to 6 words for the conversation below. Reply with the title only: no quotes, no punctuation at the end, no explanation.`

// titleExcerptRunes caps each message quoted to the title model.
const titleExcerptRunes = 500

// TitleGenerator produces session titles with a (usually small) model.
type TitleGenerator struct {
	client *Client
	model  string
}

// NewTitleGenerator creates a generator. An empty model uses the client's
// default.
func NewTitleGenerator(client *Client, model string) *TitleGenerator {
	return &TitleGenerator{client: client, model: model}
}

// GenerateTitle returns the raw title suggested for messages. Callers are
// expected to clean it up.
func (g *TitleGenerator) GenerateTitle(ctx context.Context, messages []model.Message) (string, error) {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Sender.DisplayName())
		b.WriteString(": ")
		b.WriteString(util.TruncateRunes(strings.TrimSpace(m.Content), titleExcerptRunes))
		b.WriteString("\n\n")
	}

	resp, err := g.client.complete(ctx, ChatRequest{
		Model: g.model,
		Messages: []ChatMessage{
			NewSystemMessage(titleSystemPrompt),
			NewUserMessage(b.String()),
		},
		MaxTokens:   24,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	return resp.GetContent(), nil
}
