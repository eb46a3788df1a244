// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import "fmt"

// =============================================================================
// ERRORS
// =============================================================================

// ErrSessionNotFound is returned when no stored session has the given ID.
// Use errors.Is(err, ErrSessionNotFound) to check for this error.
var ErrSessionNotFound = &StorageError{Op: "lookup", Message: "session not found"}

// ErrCorrupt is returned when the persisted collection cannot be decoded.
var ErrCorrupt = &StorageError{Op: "decode", Message: "stored sessions are corrupt"}

// StorageError describes a failed storage operation.
type StorageError struct {
	Op      string
	Key     string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	msg := e.Message
	if e.Key != "" {
		msg = fmt.Sprintf("%s (key %q)", msg, e.Key)
	}
	if e.Err != nil {
		return fmt.Sprintf("storage %s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("storage %s: %s", e.Op, msg)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is matches StorageErrors by operation and message, so wrapped instances
// of the sentinels above compare equal.
func (e *StorageError) Is(target error) bool {
	t, ok := target.(*StorageError)
	if !ok {
		return false
	}
	return e.Op == t.Op && e.Message == t.Message
}

func corrupt(key string, err error) error {
	return &StorageError{Op: ErrCorrupt.Op, Key: key, Message: ErrCorrupt.Message, Err: err}
}
