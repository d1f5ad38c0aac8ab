// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat screen.
//
// The screen is a thin view over a session.Controller: it subscribes to
// controller snapshots and renders them, and turns key presses and slash
// commands into controller calls. It never mutates conversation state
// itself.
//
// # Layout
//
//	+-----------+---------------------------+
//	| Chats     | transcript (viewport)     |
//	|  title    |                           |
//	|  title    | pending attachments       |
//	|           | input (textarea)          |
//	+-----------+---------------------------+
//	 status line / key help
//
// Assistant replies are rendered as markdown with glamour. While a reply
// streams, full renders are rate limited and the newest text is shown raw
// after the last render until the next one.
//
// # Usage
//
//	m := chat.New(chat.Options{Controller: ctrl, Config: cfg})
//	defer m.Close()
//	p := tea.NewProgram(m, tea.WithAltScreen())
//	_, err := p.Run()
package chat
