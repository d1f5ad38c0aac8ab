// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ingest turns attached files into request content.
//
// Attachments are stored as references only. Every time a turn is sent, each
// referenced file is read again: images become base64 payloads, documents
// become labelled text blocks that are folded in front of the prompt.
//
// # Supported Files
//
//   - Images: jpg, jpeg, png, gif, webp (and other image/* types)
//   - Text: txt, md (and other text/* types)
//   - PDF: text layer extracted with github.com/ledongthuc/pdf
//   - DOCX: paragraph text from word/document.xml
//
// Unsupported or unreadable files are logged and skipped.
//
// # Usage
//
//	adapter := ingest.New(ingest.Config{Logger: logger})
//	att, err := ingest.Inspect("notes.md")
//	resolved := adapter.Resolve(ctx, []model.Attachment{att})
//	content := ingest.FoldContent(prompt, resolved)
package ingest
