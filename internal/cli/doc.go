// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the orphion command line.
//
// # Commands
//
//	orphion chat                      Interactive chat with saved sessions
//	orphion ask "question"            One-shot question
//	orphion render [file]             Format a response from a file or stdin
//	orphion sessions list|show|...    Manage saved sessions
//	orphion view <id>                 Full-screen session viewer
//	orphion migrate                   Convert legacy session data
//	orphion models                    List models offered by the API
//	orphion config show|init|get|set  Inspect and edit configuration
//	orphion doctor                    Check configuration, storage and API access
//	orphion version                   Print version information
//
// Every command builds its dependencies through App, which wires
// configuration, logging, storage, events and the inference stack.
package cli
