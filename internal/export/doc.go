// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversations and single assistant replies to
// files.
//
// # Key Types
//
//   - Document: what gets exported, built by FromConversation or FromMessage
//   - Exporter: one implementation per Format
//   - Options: output directory, metadata and HTML theme
//
// # Supported Formats
//
//   - Markdown: human-readable with YAML frontmatter
//   - HTML: standalone page, code blocks highlighted with chroma
//   - JSON and YAML: machine-readable
//   - CSV: one row per message
//
// # Usage
//
//	doc, err := export.FromMessage(conv, export.LastReply(conv), model)
//	exporter, err := export.New(export.FormatHTML, nil)
//	path, err := export.ExportToFile(doc, exporter, nil)
package export
