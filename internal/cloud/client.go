// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud is the client for OpenAI-compatible chat completion APIs
// (OpenRouter by default).
package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/orphion/orphion/internal/logging"
)

// Configuration constants for the completion API.
const (
	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultModel is used when no model is configured.
	DefaultModel = "openrouter/auto"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is how many times a transient failure is retried.
	DefaultMaxRetries = 2

	// DefaultMaxTokens caps the length of a reply.
	DefaultMaxTokens = 4096

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize is the maximum accepted response body size.
	// SECURITY: bounds memory use on hostile or broken upstreams.
	MaxResponseSize = 10 * 1024 * 1024
)

// Error variables for completion API failures.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("inference API key not configured")

	// ErrAuthFailed indicates the API key was rejected.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrInsufficientCredits indicates the account has run out of credits.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrEmptyResponse indicates a reply with no choices.
	ErrEmptyResponse = errors.New("empty response from model")
)

// APIError is an error reported by the completion API.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("inference API error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("inference API error (HTTP %d): %s", e.Status, e.Message)
}

// =============================================================================
// REQUEST AND RESPONSE TYPES
// =============================================================================

// ContentPart is one element of a multi-part message.
type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image, usually as a data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// ChatMessage is a single message in a completion request. When Parts is
// set it is sent instead of Content.
type ChatMessage struct {
	Role    string
	Content string
	Parts   []ContentPart
}

// MarshalJSON encodes Content as a string, or Parts as an array.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	if len(m.Parts) > 0 {
		return json.Marshal(struct {
			Role    string        `json:"role"`
			Content []ContentPart `json:"content"`
		}{m.Role, m.Parts})
	}
	return json.Marshal(struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{m.Role, m.Content})
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// ChatRequest is the body of a chat completions call.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatResponse is the reply to a non-streaming chat completions call.
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			Reasoning string `json:"reasoning,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// GetContent returns the content of the first choice, or "" if none.
func (r *ChatResponse) GetContent() string {
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content
	}
	return ""
}

// GetReasoning returns the separate reasoning field some providers send.
func (r *ChatResponse) GetReasoning() string {
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Reasoning
	}
	return ""
}

// ModelInfo describes a model offered by the API.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContextSize int    `json:"context_length"`
}

type apiErrorResponse struct {
	Error struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to an OpenAI-compatible completion API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	maxRetries int
	retryBase  time.Duration
	siteURL    string
	siteName   string

	httpClient   *http.Client
	streamClient *http.Client
	log          *logging.Logger
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

// NewClient creates a client. An empty key yields a client whose calls
// fail with ErrNotConfigured.
func NewClient(apiKey string) *Client {
	transport := newTransport()
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		maxTokens:  DefaultMaxTokens,
		maxRetries: DefaultMaxRetries,
		retryBase:  retryBaseDelay,
		siteURL:    "https://github.com/orphion/orphion",
		siteName:   "Orphion",
		httpClient: &http.Client{Transport: transport, Timeout: DefaultTimeout},
		// Streaming is bounded by the caller's context instead.
		streamClient: &http.Client{Transport: transport},
		log:          logging.Nop(),
	}
}

// WithBaseURL sets the API root.
func (c *Client) WithBaseURL(u string) *Client {
	if u != "" {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
	return c
}

// WithModel sets the default model.
func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

// WithMaxTokens sets max_tokens for chat requests.
func (c *Client) WithMaxTokens(n int) *Client {
	if n > 0 {
		c.maxTokens = n
	}
	return c
}

// WithTimeout sets the timeout for non-streaming requests.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithMaxRetries sets how many times transient failures are retried.
func (c *Client) WithMaxRetries(maxRetries int) *Client {
	if maxRetries >= 0 {
		c.maxRetries = maxRetries
	}
	return c
}

// WithRetryBaseDelay sets the first backoff delay.
func (c *Client) WithRetryBaseDelay(d time.Duration) *Client {
	c.retryBase = d
	return c
}

// WithHTTPClient replaces both HTTP clients.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(log *logging.Logger) *Client {
	c.log = log.OrNop().Named("cloud")
	return c
}

// Model returns the default model.
func (c *Client) Model() string {
	return c.model
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// APIKeyMasked describes the key without exposing any of it.
func (c *Client) APIKeyMasked() string {
	if c.apiKey == "" {
		return "[not set]"
	}
	return fmt.Sprintf("[REDACTED, length=%d, fingerprint=%s]", len(c.apiKey), c.KeyFingerprint())
}

// KeyFingerprint returns a short SHA-256 fingerprint of the key for logs.
func (c *Client) KeyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// setHeaders sets the headers every API request carries.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "orphion/"+Version)
	if c.siteURL != "" {
		req.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		req.Header.Set("X-Title", c.siteName)
	}
}

// Version is reported in the User-Agent header.
var Version = "dev"

// =============================================================================
// CHAT
// =============================================================================

// Chat performs a chat completion with the default model.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (*ChatResponse, error) {
	return c.ChatWithModel(ctx, c.model, messages)
}

// ChatWithModel performs a chat completion with model, retrying transient
// failures. Authentication failures are never retried.
func (c *Client) ChatWithModel(ctx context.Context, model string, messages []ChatMessage) (*ChatResponse, error) {
	return c.complete(ctx, ChatRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	})
}

func (c *Client) complete(ctx context.Context, reqBody ChatRequest) (*ChatResponse, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if reqBody.Model == "" {
		reqBody.Model = c.model
	}
	requestURL := c.baseURL + "/chat/completions"

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt - 1)
			c.log.Debug("retrying completion", "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.doRequest(ctx, requestURL, reqBody)
		if err == nil {
			if len(resp.Choices) == 0 {
				return nil, ErrEmptyResponse
			}
			return resp, nil
		}
		if !c.isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// readResponse reads the body up to MaxResponseSize.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// doRequest performs one chat completions request.
func (c *Client) doRequest(ctx context.Context, requestURL string, reqBody ChatRequest) (*ChatResponse, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	c.log.Debug("API request", "method", req.Method, "path", req.URL.Path, "model", reqBody.Model, "key", c.KeyFingerprint())
	resp, err := c.httpClient.Do(req)
	// SECURITY: the request may be logged by a transport wrapper later.
	req.Header.Del("Authorization")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	c.log.Debug("API response", "status", resp.StatusCode, "duration", time.Since(start))

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &chatResp, nil
}

// handleErrorResponse maps an HTTP failure onto the package errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	message := strings.TrimSpace(string(body))
	code := ""
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
		code = strings.Trim(string(apiErr.Error.Code), `"`)
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		c.log.Warn("API key rejected", "status", statusCode, "key", c.KeyFingerprint())
		return fmt.Errorf("%w: %s", ErrAuthFailed, message)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", ErrInsufficientCredits, message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrModelNotFound, message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, message)
	default:
		return &APIError{Code: code, Message: message, Status: statusCode}
	}
}

// isRetryable reports whether err is transient: rate limiting, a 5xx, or
// a network failure that is not a cancellation.
func (c *Client) isRetryable(err error) bool {
	if errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrNotConfigured) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status < 600
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// calculateBackoff returns the delay before retry number attempt+1.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := c.retryBase * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// =============================================================================
// MODELS
// =============================================================================

// ListModels returns the models the API offers.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	var out struct {
		Data []ModelInfo `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse models response: %w", err)
	}
	return out.Data, nil
}
