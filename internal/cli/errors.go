// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/orphion/orphion/internal/cloud"
	"github.com/orphion/orphion/internal/config"
	"github.com/orphion/orphion/internal/inference"
	"github.com/orphion/orphion/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitNetworkError  = 5
	ExitBusyError     = 6
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError is a failed command with context.
type CommandError struct {
	Command string // e.g. "sessions"
	Action  string // e.g. "delete"
	Err     error
}

func (e *CommandError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UsageError is invalid command-line input.
type UsageError struct {
	Reason  string
	Example string
}

func (e *UsageError) Error() string {
	if e.Example != "" {
		return fmt.Sprintf("%s\nExample: %s", e.Reason, e.Example)
	}
	return e.Reason
}

func wrapCmd(command, action string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: command, Action: action, Err: err}
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	var (
		usage *UsageError
		cfg   config.ValidateErrors
		api   *cloud.APIError
		netE  net.Error
	)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &usage):
		return ExitUsageError
	case errors.As(err, &cfg):
		return ExitConfigError
	case errors.Is(err, cloud.ErrNotConfigured), errors.Is(err, cloud.ErrAuthFailed):
		return ExitAuthError
	case errors.As(err, &api) && (api.Status == 401 || api.Status == 403):
		return ExitAuthError
	case errors.Is(err, inference.ErrAlreadyGenerating):
		return ExitBusyError
	case errors.Is(err, storage.ErrSessionNotFound):
		return ExitNotFoundError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.As(err, &netE):
		return ExitNetworkError
	default:
		return ExitGeneralError
	}
}
