// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and saves the Orphion configuration file.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (ORPHION_*)
//   - ~/.orphion/config.toml (ORPHION_HOME moves the directory)
//   - Built-in defaults
//
// # Sections
//
//   - [inference]: API root, key, chat/title/vision models, retries
//   - [search]: provider (tavily or duckduckgo), key, default mode
//   - [storage]: backend (file, sqlite, redis, memory) and its location
//   - [ui]: render width, code style, colour
//   - [log]: level, format, file
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := cloud.NewClient(cfg.Inference.APIKey).WithModel(cfg.Inference.Model)
package config
