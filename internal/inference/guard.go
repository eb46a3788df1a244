// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrAlreadyGenerating is returned when a request is already in flight.
var ErrAlreadyGenerating = errors.New("a response is already being generated")

// State is the guard state.
type State int32

const (
	Idle State = iota
	InFlight
)

// String returns the state name.
func (s State) String() string {
	if s == InFlight {
		return "in-flight"
	}
	return "idle"
}

// Guard admits one request at a time. The zero value is Idle.
type Guard struct {
	state atomic.Int32
}

// State returns the current state.
func (g *Guard) State() State {
	return State(g.state.Load())
}

// TryAcquire moves the guard from Idle to InFlight. The returned release
// function moves it back and is safe to call more than once.
func (g *Guard) TryAcquire() (release func(), err error) {
	if !g.state.CompareAndSwap(int32(Idle), int32(InFlight)) {
		return nil, ErrAlreadyGenerating
	}
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			g.state.Store(int32(Idle))
		}
	}, nil
}

// Do runs fn while holding the guard.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := g.TryAcquire()
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}
