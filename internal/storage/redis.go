// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisKV stores keys as plain Redis strings under an optional prefix.
type RedisKV struct {
	rdb    *redis.Client
	prefix string
}

// OpenRedis connects to addr and verifies the connection with PING.
func OpenRedis(ctx context.Context, addr string, db int, prefix string) (*RedisKV, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, &StorageError{Op: "open", Message: "redis unreachable", Err: err}
	}
	return NewRedisKV(rdb, prefix), nil
}

// NewRedisKV wraps an existing client.
func NewRedisKV(rdb *redis.Client, prefix string) *RedisKV {
	return &RedisKV{rdb: rdb, prefix: prefix}
}

// Client exposes the underlying connection so the event bridge can share it.
func (r *RedisKV) Client() *redis.Client {
	return r.rdb
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StorageError{Op: "read", Key: key, Message: "redis GET failed", Err: err}
	}
	return v, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return &StorageError{Op: "write", Key: key, Message: "redis SET failed", Err: err}
	}
	return nil
}

func (r *RedisKV) Remove(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		return &StorageError{Op: "remove", Key: key, Message: "redis DEL failed", Err: err}
	}
	return nil
}

func (r *RedisKV) Close() error {
	return r.rdb.Close()
}
