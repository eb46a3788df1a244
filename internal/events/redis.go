// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package events

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/orphion/orphion/internal/logging"
)

// DefaultRedisChannel is the pub/sub channel used when none is configured.
const DefaultRedisChannel = "orphion.events"

// RedisBridge mirrors local events onto a Redis channel and feeds events
// published by other processes back into the local bus. It is used when
// sessions live in Redis and several clients share them.
type RedisBridge struct {
	local   *Bus
	rdb     *goredis.Client
	channel string
	origin  string
	log     *logging.Logger
}

// NewRedisBridge wires local to rdb. origin must be unique per process.
func NewRedisBridge(local *Bus, rdb *goredis.Client, channel, origin string, log *logging.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisBridge{
		local:   local,
		rdb:     rdb,
		channel: channel,
		origin:  origin,
		log:     log.OrNop().With("component", "redis-bridge"),
	}
}

// Publish delivers e locally and to Redis. Redis failures are logged; the
// local delivery always happens.
func (b *RedisBridge) Publish(e Event) {
	e.Origin = b.origin
	b.local.Publish(e)

	raw, err := json.Marshal(e)
	if err != nil {
		b.log.Warn("failed to encode event", "error", err)
		return
	}
	if err := b.rdb.Publish(context.Background(), b.channel, raw).Err(); err != nil {
		b.log.Warn("failed to publish event to redis", "error", err)
	}
}

// Start subscribes to the channel and forwards remote events until ctx is
// done.
func (b *RedisBridge) Start(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
					b.log.Warn("bad event payload", "error", err)
					continue
				}
				if e.Origin == b.origin {
					continue
				}
				b.local.Publish(e)
			}
		}
	}()
	return nil
}
