// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for ollamachat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, validation and hot reload.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - OllamaConfig: server URL, default model and timeouts
//   - StorageConfig: conversation store backend and data directory
//   - ChatConfig: turn policies
//   - UIConfig: theme and rendering
//   - LogConfig: log level and file
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (OLLAMACHAT_*)
//   - ~/.ollamachat/config.toml (or the path given with --config)
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = config.Watch(ctx, path, func(cfg *config.Config, err error) {
//	    // apply cfg.UI, cfg.Log ...
//	})
package config
