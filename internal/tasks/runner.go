// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orphion/orphion/internal/logging"
)

// ErrStopped is returned by Submit after Stop was called.
var ErrStopped = errors.New("task runner stopped")

// =============================================================================
// TASK RUNNER
// =============================================================================

// Options configures a Runner.
type Options struct {
	// MaxConcurrent bounds how many tasks run at once. Default 4.
	MaxConcurrent int
	// Timeout bounds each task. Zero means no timeout.
	Timeout time.Duration
	// MaxHistory is how many finished tasks are kept for Tasks. Default 50.
	MaxHistory int
	Logger     *logging.Logger
}

// Runner executes submitted functions in the background with bounded
// concurrency. Submit never blocks; tasks wait for a slot in their own
// goroutine.
type Runner struct {
	log        *logging.Logger
	timeout    time.Duration
	maxHistory int
	semaphore  chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped atomic.Bool

	mu    sync.Mutex
	tasks []*Task
}

// NewRunner creates a runner.
func NewRunner(opts Options) *Runner {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 50
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		log:        opts.Logger.OrNop().Named("tasks"),
		timeout:    opts.Timeout,
		maxHistory: opts.MaxHistory,
		semaphore:  make(chan struct{}, opts.MaxConcurrent),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Submit schedules fn and returns its task immediately.
func (r *Runner) Submit(kind, sessionID string, fn Func) (*Task, error) {
	if r.stopped.Load() {
		return nil, ErrStopped
	}
	task := newTask(kind, sessionID)

	r.mu.Lock()
	r.tasks = append(r.tasks, task)
	r.trimLocked()
	r.mu.Unlock()

	r.wg.Add(1)
	go r.execute(task, fn)
	return task, nil
}

// Wait blocks until every submitted task has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Stop cancels running tasks, rejects new ones and waits for the rest to
// return.
func (r *Runner) Stop() {
	r.stopped.Store(true)
	r.cancel()
	r.wg.Wait()
}

// Tasks returns the retained tasks, oldest first.
func (r *Runner) Tasks() []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Task(nil), r.tasks...)
}

// Running returns the number of tasks currently running.
func (r *Runner) Running() int {
	n := 0
	for _, t := range r.Tasks() {
		if t.Status() == StatusRunning {
			n++
		}
	}
	return n
}

// =============================================================================
// TASK PROCESSING
// =============================================================================

func (r *Runner) execute(task *Task, fn Func) {
	defer r.wg.Done()

	var ctx context.Context
	var cancel context.CancelFunc
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(r.ctx, r.timeout)
	} else {
		ctx, cancel = context.WithCancel(r.ctx)
	}
	defer cancel()
	task.setCancel(cancel)

	// Wait for a slot.
	select {
	case r.semaphore <- struct{}{}:
	case <-ctx.Done():
		task.transition(StatusCanceled, ctx.Err())
		return
	}
	defer func() { <-r.semaphore }()

	if !task.transition(StatusRunning, nil) {
		// Canceled while queued.
		return
	}

	err := r.call(ctx, fn)

	switch {
	case err == nil:
		task.transition(StatusComplete, nil)
	case errors.Is(ctx.Err(), context.Canceled):
		task.transition(StatusCanceled, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("task timeout after %v: %w", r.timeout, err)
		task.transition(StatusFailed, err)
	default:
		task.transition(StatusFailed, err)
	}

	if err != nil {
		r.log.Warn("background task failed", "task", task.ID, "kind", task.Kind, "session", task.SessionID, "error", err)
	} else {
		r.log.Debug("background task complete", "task", task.ID, "kind", task.Kind, "duration", task.Duration())
	}
}

// call runs fn, turning a panic into an error so one bad job cannot take
// the process down.
func (r *Runner) call(ctx context.Context, fn Func) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return fn(ctx)
}

// trimLocked drops the oldest finished tasks beyond maxHistory.
func (r *Runner) trimLocked() {
	excess := len(r.tasks) - r.maxHistory
	if excess <= 0 {
		return
	}
	kept := r.tasks[:0]
	for _, t := range r.tasks {
		if excess > 0 && t.Status().Terminal() {
			excess--
			continue
		}
		kept = append(kept, t)
	}
	r.tasks = kept
}
