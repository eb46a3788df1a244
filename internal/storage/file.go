// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/orphion/orphion/internal/logging"
	"github.com/orphion/orphion/internal/util"
)

// =============================================================================
// FILE BACKEND
// =============================================================================

// FileKV stores each key as a JSON file under a directory. Writes are
// atomic (temp file + rename).
type FileKV struct {
	dir string

	mu sync.Mutex
	// written holds a digest of the last value this process wrote per key,
	// so the watcher can ignore its own writes.
	written map[string][sha256.Size]byte
}

// NewFileKV creates the directory if needed and returns a store over it.
func NewFileKV(dir string) (*FileKV, error) {
	if dir == "" {
		return nil, &StorageError{Op: "open", Message: "no data directory configured"}
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, &StorageError{Op: "open", Message: "failed to create data directory", Err: err}
	}
	return &FileKV{dir: dir, written: make(map[string][sha256.Size]byte)}, nil
}

// Dir returns the directory holding the key files.
func (f *FileKV) Dir() string {
	return f.dir
}

// Path returns the file that holds key.
func (f *FileKV) Path(key string) string {
	return filepath.Join(f.dir, fileName(key))
}

func (f *FileKV) Get(_ context.Context, key string) (string, bool, error) {
	data, err := os.ReadFile(f.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StorageError{Op: "read", Key: key, Message: "failed to read file", Err: err}
	}
	return string(data), true, nil
}

func (f *FileKV) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	f.written[key] = sha256.Sum256([]byte(value))
	f.mu.Unlock()

	if err := util.AtomicWriteFile(f.Path(key), []byte(value), 0600); err != nil {
		return &StorageError{Op: "write", Key: key, Message: "failed to write file", Err: err}
	}
	return nil
}

func (f *FileKV) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	delete(f.written, key)
	f.mu.Unlock()

	err := os.Remove(f.Path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return &StorageError{Op: "remove", Key: key, Message: "failed to remove file", Err: err}
	}
	return nil
}

func (f *FileKV) Close() error { return nil }

// fileName maps a key onto a safe file name.
func fileName(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String() + ".json"
}

// keyForFile reverses fileName for the keys in keys.
func keyForFile(name string, keys []string) (string, bool) {
	for _, k := range keys {
		if fileName(k) == name {
			return k, true
		}
	}
	return "", false
}

// ownWrite reports whether the file currently holds what this process last
// wrote for key.
func (f *FileKV) ownWrite(key string) bool {
	f.mu.Lock()
	sum, ok := f.written[key]
	f.mu.Unlock()
	if !ok {
		return false
	}
	data, err := os.ReadFile(f.Path(key))
	if err != nil {
		return false
	}
	return sha256.Sum256(data) == sum
}

// =============================================================================
// FILE WATCHER
// =============================================================================

// DefaultWatchDebounce is how long a key must stay quiet before a change
// is reported.
const DefaultWatchDebounce = 150 * time.Millisecond

// Watch reports changes made to the given keys by other processes. It
// blocks until ctx is cancelled. Bursts of events for one key are
// debounced into a single callback.
func (f *FileKV) Watch(ctx context.Context, keys []string, debounce time.Duration, log *logging.Logger, onChange func(key string)) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	log = log.OrNop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: atomic renames replace the file inode.
	if err := watcher.Add(f.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", f.dir, err)
	}

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			key, ok := keyForFile(filepath.Base(event.Name), keys)
			if !ok {
				continue
			}
			pending[key] = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("store watcher error", "error", err)

		case now := <-ticker.C:
			for key, last := range pending {
				if now.Sub(last) < debounce {
					continue
				}
				delete(pending, key)
				if f.ownWrite(key) {
					continue
				}
				log.Debug("store changed externally", "key", key)
				onChange(key)
			}
		}
	}
}
