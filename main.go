// Orphion - a terminal client for AI chat with versioned, searchable sessions.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/orphion/orphion/internal/cli"
)

// Version information (set at build time with -ldflags "-X main.Version=...").
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
	os.Exit(cli.Execute())
}
