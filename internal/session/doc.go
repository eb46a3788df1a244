// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session implements the chat session store.
//
// Sessions are values: AddMessage, UpdateMessage and the version methods
// return a new session and leave their input untouched. Callers persist
// the result with SaveSession.
//
// The first user message becomes the provisional title. After the first
// AI reply a background task asks a TitleGenerator for a better one;
// CleanupTitle normalizes it and KeywordTitle covers unusable results.
//
// # Usage
//
//	svc := session.NewService(repo, session.WithRunner(runner), session.WithTitleGenerator(client))
//	cs := svc.CreateSession()
//	cs = svc.AddMessage(cs, "Hello", model.SenderUser, session.MessageOptions{})
//	err := svc.SaveSession(ctx, cs)
package session
