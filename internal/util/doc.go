// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the ollamachat packages.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe file writing (temp file, fsync, rename)
//   - TruncateRunes: UTF-8 safe truncation with an ellipsis marker
//   - CollapseSpace: folds runs of whitespace into single spaces
//
// # Usage
//
//	title := util.TruncateRunes(util.CollapseSpace(prompt), 40)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
