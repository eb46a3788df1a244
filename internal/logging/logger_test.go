// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsSecretKeys(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))

	l.Info("request", "api_key", "sk-or-secret", "model", "gpt-4o")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["api_key"] != "[REDACTED]" {
		t.Errorf("api_key = %v, want redacted", fields["api_key"])
	}
	if fields["model"] != "gpt-4o" {
		t.Errorf("model = %v", fields["model"])
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := t.TempDir() + "/logs/orphion.log"
	l, err := New(Options{Level: "debug", Format: "json", File: path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	l.Debug("hello", "k", 1)
	l.Sync()
}

func TestOrNop(t *testing.T) {
	var l *Logger
	l.OrNop().Info("does not panic")
}
