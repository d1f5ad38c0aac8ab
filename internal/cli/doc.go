// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the ollamachat command line.
//
// Commands are built with cobra. Every command loads the configuration,
// opens the conversation store and drives a session.Controller, so the
// full-screen UI, the line-mode REPL and the one-shot commands share the
// same turn and persistence rules.
//
// # Commands
//
//	ollamachat                 full-screen chat UI
//	ollamachat chat            line-mode chat with history (liner)
//	ollamachat ask <prompt>    one prompt, reply on stdout
//	ollamachat list            saved conversations
//	ollamachat show <ref>      print a conversation
//	ollamachat rename <ref>    rename a conversation
//	ollamachat delete <ref>    delete a conversation
//	ollamachat export <ref>    export the last reply or a conversation
//	ollamachat models          installed models
//	ollamachat config          config file path, show, init
//
// A <ref> is the 1-based number shown by list or a unique id prefix.
package cli
