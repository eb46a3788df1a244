// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
//
// # Key Types
//
//   - ChatSession: titled, ordered list of messages plus title bookkeeping
//   - Message: one user or AI message, optionally carrying regenerated
//     versions, reasoning, web search and vision metadata
//   - MessageVersion: an immutable alternative of an AI message
//   - SearchMetadata, VisionMetadata: records of the collaborators that
//     informed a message
//
// All timestamps produced by this package are UTC with millisecond
// precision, see Now.
//
// # Usage
//
//	s := model.NewSession()
//	msg := model.NewMessage(model.SenderUser, "Hello")
package model
