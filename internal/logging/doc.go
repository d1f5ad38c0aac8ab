// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the charmbracelet/log loggers used across
// ollamachat.
//
// The TUI owns the terminal, so interactive sessions log to a file in the
// data directory. Headless commands log to stderr when --verbose is given.
// Components receive a logger explicitly and tag it:
//
//	logger := logging.Component(root, "session")
//	logger.Warn("save failed", "err", err)
package logging
