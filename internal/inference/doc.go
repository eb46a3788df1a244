// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package inference turns a session history into an AI reply.
//
// A Responder owns a Guard that allows one request in flight at a time; a
// second caller is rejected with ErrAlreadyGenerating rather than queued.
// Replies are post-processed:
//
//   - <think>...</think> segments become the message reasoning.
//   - A [WEB_SEARCH "query"] directive runs the search and asks the model
//     again with the results; the search is recorded as metadata.
package inference
