// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// KV is a string-keyed text store. Values are opaque strings; the session
// repository keeps one JSON document per key.
type KV interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// OpenOptions selects and configures a backend.
type OpenOptions struct {
	Backend    string
	Dir        string // file backend
	SQLitePath string
	RedisAddr  string
	RedisDB    int
	// RedisPrefix namespaces keys in a shared Redis.
	RedisPrefix string
}

// Open creates the KV backend named in opts.
func Open(ctx context.Context, opts OpenOptions) (KV, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendFile:
		return NewFileKV(opts.Dir)
	case BackendSQLite:
		return OpenSQLite(ctx, opts.SQLitePath)
	case BackendRedis:
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisDB, opts.RedisPrefix)
	case BackendMemory:
		return NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

// =============================================================================
// MEMORY BACKEND
// =============================================================================

// MemoryKV keeps values in a map. It backs tests and --ephemeral runs.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryKV) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryKV) Close() error { return nil }
