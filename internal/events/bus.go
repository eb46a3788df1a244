// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package events carries store change notifications to interested views.
package events

import (
	"sync"
	"time"
)

// Type names what changed.
type Type string

const (
	SessionSaved    Type = "session.saved"
	SessionsDeleted Type = "session.deleted"
	SessionsCleared Type = "session.cleared"
	TitleUpdated    Type = "session.title"
	Migrated        Type = "store.migrated"
	// StoreChanged means the backing store was written by someone else and
	// subscribers should reload.
	StoreChanged Type = "store.changed"
)

// Event is a single change notification.
type Event struct {
	Type       Type      `json:"type"`
	SessionIDs []string  `json:"sessionIds,omitempty"`
	At         time.Time `json:"at"`
	// Origin identifies the process that published the event, so bridged
	// events can be told apart from local ones.
	Origin string `json:"origin,omitempty"`
}

// Publisher accepts events.
type Publisher interface {
	Publish(Event)
}

// Nop is a Publisher that drops everything.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Event) {}

// =============================================================================
// IN-PROCESS BUS
// =============================================================================

// Bus fans events out to subscribers. Every subscriber receives every
// event published after it subscribed, in order; a slow subscriber queues
// rather than losing events or blocking the publisher.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscription delivers events on C until Cancel is called or the bus is
// closed, after which C is closed.
type Subscription struct {
	C <-chan Event

	bus    *Bus
	out    chan Event
	mu     sync.Mutex
	queue  []Event
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

// Subscribe registers a new subscriber.
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{
		bus:  b,
		out:  make(chan Event),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.C = s.out

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.out)
		return s
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.pump()
	return s
}

// Publish queues e for every current subscriber. It never blocks.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		s.enqueue(e)
	}
}

// Close stops every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.closed = true
	b.mu.Unlock()
	for s := range subs {
		s.stop()
	}
}

// Cancel unsubscribes. Pending events are discarded.
func (s *Subscription) Cancel() {
	if s.bus != nil {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
	}
	s.stop()
}

func (s *Subscription) enqueue(e Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}
