// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks runs fire-and-forget background jobs.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// TASK STATUS
// =============================================================================

// Status is the lifecycle state of a background task.
type Status string

const (
	StatusQueued   Status = "Queued"
	StatusRunning  Status = "Running"
	StatusComplete Status = "Complete"
	StatusFailed   Status = "Failed"
	StatusCanceled Status = "Canceled"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusCanceled
}

// Func is the work a task performs.
type Func func(ctx context.Context) error

// =============================================================================
// TASK
// =============================================================================

// Task tracks one submitted job.
type Task struct {
	ID string
	// Kind groups tasks by purpose, e.g. "title".
	Kind string
	// SessionID is the chat session the task works on, if any.
	SessionID string

	mu        sync.RWMutex
	status    Status
	err       error
	startTime time.Time
	endTime   time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

func newTask(kind, sessionID string) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		SessionID: sessionID,
		status:    StatusQueued,
		done:      make(chan struct{}),
	}
}

// transition moves the task to status if the move is valid. Valid moves
// are Queued -> Running|Canceled and Running -> any terminal status.
func (t *Task) transition(to Status, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.status == StatusQueued && (to == StatusRunning || to == StatusCanceled):
	case t.status == StatusRunning && to.Terminal():
	default:
		return false
	}

	t.status = to
	now := time.Now()
	if to == StatusRunning {
		t.startTime = now
	}
	if to.Terminal() {
		t.err = err
		t.endTime = now
		close(t.done)
	}
	return true
}

func (t *Task) setCancel(cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancel = cancel
}

// Status returns the current status.
func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Err returns the failure, if the task failed.
func (t *Task) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// Done is closed when the task reaches a terminal status.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel stops a queued or running task. It returns false when the task
// had already finished.
func (t *Task) Cancel() bool {
	t.mu.RLock()
	cancel := t.cancel
	status := t.status
	t.mu.RUnlock()

	if status.Terminal() {
		return false
	}
	if cancel != nil {
		cancel()
	}
	if status == StatusQueued {
		return t.transition(StatusCanceled, context.Canceled)
	}
	return true
}

// Duration returns how long the task ran, or has been running.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.startTime.IsZero() {
		return 0
	}
	if t.endTime.IsZero() {
		return time.Since(t.startTime)
	}
	return t.endTime.Sub(t.startTime)
}

// Summary returns a one-line description for listings.
func (t *Task) Summary() string {
	summary := fmt.Sprintf("[%s] %s", t.ID[:8], t.Kind)
	if t.SessionID != "" {
		summary += " session " + shortID(t.SessionID)
	}
	summary += " - " + t.Status().String()
	if d := t.Duration(); d > 0 {
		summary += fmt.Sprintf(" (%.1fs)", d.Seconds())
	}
	if err := t.Err(); err != nil && t.Status() == StatusFailed {
		summary += ": " + err.Error()
	}
	return summary
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
