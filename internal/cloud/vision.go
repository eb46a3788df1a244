// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"strings"
)

// DefaultVisionPrompt is used when the caller gives no prompt.
const DefaultVisionPrompt = "Describe this image in detail. Include any visible text, objects, people, colors and context."

// ErrNoImage is returned when DescribeImage gets no image data.
var ErrNoImage = errors.New("no image data")

// ImageDataURL builds a data URL from base64 data. mime defaults to
// image/png. Data that already is a data URL is returned as is.
func ImageDataURL(base64Data, mime string) string {
	if strings.HasPrefix(base64Data, "data:") {
		return base64Data
	}
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64Data
}

// DescribeImage asks model for a description of the image. base64Data is
// the raw base64 payload (or a data URL).
func (c *Client) DescribeImage(ctx context.Context, model, base64Data, mime, prompt string) (string, error) {
	if strings.TrimSpace(base64Data) == "" {
		return "", ErrNoImage
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultVisionPrompt
	}
	msg := ChatMessage{
		Role: "user",
		Parts: []ContentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &ImageURL{URL: ImageDataURL(base64Data, mime)}},
		},
	}
	resp, err := c.ChatWithModel(ctx, model, []ChatMessage{msg})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.GetContent()), nil
}
