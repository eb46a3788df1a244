// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package vision analyzes attached images. A vision model describes the
// image, then the regular responder explains it in the conversation.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/orphion/orphion/internal/inference"
	"github.com/orphion/orphion/internal/logging"
	"github.com/orphion/orphion/internal/model"
)

// MaxImageSize is the largest image accepted for analysis.
const MaxImageSize = 20 * 1024 * 1024

var (
	// ErrImageTooLarge is returned by LoadImage for oversized files.
	ErrImageTooLarge = errors.New("image exceeds maximum size")

	// ErrNotImage is returned by LoadImage for files that are not images.
	ErrNotImage = errors.New("file is not a supported image")
)

// Describer produces a textual description of an image.
type Describer interface {
	DescribeImage(ctx context.Context, model, base64Data, mime, prompt string) (string, error)
}

// Result is the outcome of Analyze.
type Result struct {
	Metadata model.VisionMetadata
	Reply    inference.Reply
}

// Analyzer runs image analysis followed by an explanation.
type Analyzer struct {
	describer Describer
	responder *inference.Responder
	model     string
	log       *logging.Logger
}

// NewAnalyzer creates an analyzer using visionModel for descriptions.
func NewAnalyzer(d Describer, responder *inference.Responder, visionModel string, log *logging.Logger) *Analyzer {
	return &Analyzer{
		describer: d,
		responder: responder,
		model:     visionModel,
		log:       log.OrNop().Named("vision"),
	}
}

// Analyze describes the image attached to the last message of history and
// asks the responder to answer it. Both calls run under the responder's
// guard, so Analyze fails with inference.ErrAlreadyGenerating while any
// other reply is in flight.
func (a *Analyzer) Analyze(ctx context.Context, history []model.Message, opts inference.Options) (Result, error) {
	if len(history) == 0 {
		return Result{}, fmt.Errorf("analyze: empty history")
	}
	last := history[len(history)-1]
	if !last.HasAttachedImage || last.ImageData == "" {
		return Result{}, fmt.Errorf("analyze: %w", errNoAttachment)
	}

	var res Result
	err := a.responder.Guard().Do(ctx, func(ctx context.Context) error {
		prompt := strings.TrimSpace(last.Content)
		desc, err := a.describer.DescribeImage(ctx, a.model, last.ImageData, mimeOf(last.ImageData), prompt)
		if err != nil {
			return fmt.Errorf("image analysis failed: %w", err)
		}
		res.Metadata = model.VisionMetadata{
			Model:       a.model,
			Prompt:      prompt,
			Description: desc,
			AnalyzedAt:  model.Now(),
		}
		a.log.Debug("image described", "model", a.model, "chars", len(desc))

		withVision := make([]model.Message, len(history))
		copy(withVision, history)
		meta := res.Metadata
		withVision[len(withVision)-1].VisionMetadata = &meta
		if withVision[len(withVision)-1].Content == "" {
			withVision[len(withVision)-1].Content = "Explain this image."
		}

		res.Reply, err = a.responder.Complete(ctx, withVision, opts)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

var errNoAttachment = errors.New("last message has no attached image")

// LoadImage reads an image file and returns its base64 payload and MIME
// type.
func LoadImage(path string) (data, mime string, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", "", err
	}
	if info.Size() > MaxImageSize {
		return "", "", fmt.Errorf("%w: %d bytes", ErrImageTooLarge, info.Size())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	mime = http.DetectContentType(raw)
	if !strings.HasPrefix(mime, "image/") {
		return "", "", fmt.Errorf("%w: %s", ErrNotImage, mime)
	}
	return base64.StdEncoding.EncodeToString(raw), mime, nil
}

// mimeOf sniffs the MIME type of a base64 payload, defaulting to PNG.
func mimeOf(b64 string) string {
	head := b64
	if len(head) > 64 {
		head = head[:64]
	}
	raw, err := base64.StdEncoding.DecodeString(head[:len(head)/4*4])
	if err != nil {
		return "image/png"
	}
	if mime := http.DetectContentType(raw); strings.HasPrefix(mime, "image/") {
		return mime
	}
	return "image/png"
}
