// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists chat sessions.
//
// The whole session collection lives under one key of a string-keyed text
// store (KV) as a JSON array. Dates are written as tagged objects,
// {"__type":"Date","value":"2024-01-02T03:04:05.000Z"}, so they round-trip
// with millisecond precision.
//
// # Key Types
//
//   - KV: the text store; FileKV, SQLiteKV, RedisKV and MemoryKV implement it
//   - Repository: read-modify-write access to the session collection
//   - TaggedDate: the persisted date form
//   - StorageError: failures, matched with errors.Is against ErrSessionNotFound
//     and ErrCorrupt
//
// # Usage
//
//	kv, err := storage.Open(ctx, storage.OpenOptions{Backend: "file", Dir: dataDir})
//	repo := storage.NewRepository(kv, storage.WithLogger(log))
//	report, err := repo.MigrateLegacy(ctx)
//	err = repo.Put(ctx, session)
//
// # Storage Location
//
// The file backend keeps one file per key in ~/.orphion/data/.
package storage
