// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud is the client for OpenAI-compatible chat completion APIs.
//
// OpenRouter is the default endpoint; any service exposing
// /chat/completions with bearer-token auth works.
//
// # Key Types
//
//   - Client: chat, streaming chat, image description and model listing
//   - ChatMessage: a request message, plain text or multi-part with images
//   - TitleGenerator: session titles from a small model
//   - APIError: a non-2xx reply that maps onto no sentinel error
//
// # Usage
//
//	client := cloud.NewClient(apiKey).WithModel("openai/gpt-4o-mini")
//	resp, err := client.Chat(ctx, []cloud.ChatMessage{cloud.NewUserMessage("Hello")})
//
// # Retries
//
// Rate limiting, 5xx replies and network failures are retried up to two
// times with exponential backoff starting at 500ms. Authentication
// failures are never retried. Streaming requests are only retried before
// the first chunk arrives.
//
// # Security
//
// API keys are never logged; a SHA-256 fingerprint identifies them.
package cloud
