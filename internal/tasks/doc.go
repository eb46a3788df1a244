// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks runs fire-and-forget background jobs, such as generating a
// session title after the first AI reply.
//
// # Key Types
//
//   - Runner: executes submitted functions with bounded concurrency and an
//     optional per-task timeout
//   - Task: status, error and timing of one job
//
// # Usage
//
//	runner := tasks.NewRunner(tasks.Options{Timeout: time.Minute})
//	defer runner.Stop()
//	task, err := runner.Submit("title", sessionID, func(ctx context.Context) error {
//	    _, err := svc.GenerateAndUpdateTitle(ctx, session)
//	    return err
//	})
//	<-task.Done()
package tasks
