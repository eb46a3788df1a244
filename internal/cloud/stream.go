// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MaxChunkSize is the largest SSE line accepted.
const MaxChunkSize = 64 * 1024

// =============================================================================
// STREAMING TYPES
// =============================================================================

// StreamChunk is one delta of a streaming completion.
type StreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning,omitempty"`
			Role      string `json:"role,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// GetContent returns the content delta of the first choice.
func (c *StreamChunk) GetContent() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// GetReasoning returns the reasoning delta of the first choice.
func (c *StreamChunk) GetReasoning() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Reasoning
	}
	return ""
}

// IsDone reports whether the chunk carries a finish reason.
func (c *StreamChunk) IsDone() bool {
	return len(c.Choices) > 0 && c.Choices[0].FinishReason != ""
}

// StreamCallback receives each chunk.
type StreamCallback func(chunk StreamChunk)

// StreamError is a failure after part of the reply was received.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a reader over r.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReaderSize(r, 4096)}
}

// ReadEvent returns the next event's type and data. Multi-line data is
// joined with newlines. It returns io.EOF at the end of the stream.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if len(line) > MaxChunkSize {
			return "", nil, fmt.Errorf("SSE line exceeds %d bytes", MaxChunkSize)
		}
		if err != nil && !(err == io.EOF && len(line) > 0) {
			if err == io.EOF && len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			if err == io.EOF {
				return "", nil, io.EOF
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[6:]))
		case bytes.HasPrefix(line, []byte("data:")):
			data := line[5:]
			if len(data) > 0 && data[0] == ' ' {
				data = data[1:]
			}
			dataLines = append(dataLines, data)
		}
		// id:, retry: and comments are ignored.

		if err == io.EOF {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			return "", nil, io.EOF
		}
	}
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream performs a streaming completion with model ("" for the
// default) and calls callback for every chunk. It returns the accumulated
// content. Transient failures are retried only until the first chunk
// arrives; a failure after that is returned as a *StreamError.
func (c *Client) ChatStream(ctx context.Context, model string, messages []ChatMessage, callback StreamCallback) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}
	if model == "" {
		model = c.model
	}
	reqBody := ChatRequest{
		Model:     model,
		Messages:  messages,
		Stream:    true,
		MaxTokens: c.maxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.calculateBackoff(attempt - 1)):
			}
		}

		resp, err := c.openStream(ctx, reqBody)
		if err != nil {
			if c.isRetryable(err) {
				lastErr = err
				continue
			}
			return "", err
		}

		var acc strings.Builder
		err = c.processStream(ctx, resp.Body, func(chunk StreamChunk) {
			acc.WriteString(chunk.GetContent())
			if callback != nil {
				callback(chunk)
			}
		})
		resp.Body.Close()
		if err == nil {
			return acc.String(), nil
		}
		if acc.Len() == 0 && c.isRetryable(err) {
			lastErr = err
			continue
		}
		return acc.String(), &StreamError{Partial: acc.String(), Err: err}
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// openStream sends the request and returns the response once the status
// is known to be 200.
func (c *Client) openStream(ctx context.Context, reqBody ChatRequest) (*http.Response, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	c.log.Debug("API stream request", "model", reqBody.Model, "key", c.KeyFingerprint())
	resp, err := c.streamClient.Do(req)
	req.Header.Del("Authorization")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := readResponse(resp)
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}
	return resp, nil
}

// processStream reads SSE events until [DONE], a finish reason or EOF.
func (c *Client) processStream(ctx context.Context, body io.Reader, callback StreamCallback) error {
	reader := NewSSEReader(body)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, data, err := reader.ReadEvent()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if bytes.Equal(data, []byte("[DONE]")) {
			return nil
		}

		// Some providers report failures mid-stream as an error object.
		var apiErr apiErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return &APIError{Message: apiErr.Error.Message, Status: http.StatusBadGateway}
		}

		var chunk StreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			c.log.Debug("skipping malformed stream chunk", "error", err)
			continue
		}
		callback(chunk)
		if chunk.IsDone() {
			return nil
		}
	}
}
