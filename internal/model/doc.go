// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// A Conversation is an ordered, append-only list of Messages. The only
// mutations allowed on existing messages are on the trailing assistant
// message while a turn is in flight: it starts provisional, receives
// streamed deltas, and is then committed, failed, or rolled back.
//
// # Key Types
//
//   - Conversation: id, title, ordered messages, creation time
//   - Message: role, content, attachments and a lifecycle State
//   - Attachment: a file reference picked by the user (path, name, kind)
//   - Role: user or assistant
//   - MessageState: provisional, committed or failed
//
// # Usage
//
//	conv := model.NewConversation("Hello", nil)
//	conv.AppendUser("Hello", nil)
//	conv.AppendProvisional()
//	_ = conv.ApplyDelta("Hi")
//	_ = conv.ApplyDelta(" there")
//	_ = conv.CommitLast()
package model
