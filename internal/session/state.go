// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"github.com/jeranaias/ollamachat/internal/model"
	"github.com/jeranaias/ollamachat/internal/ollama"
)

// =============================================================================
// TURN STATE
// =============================================================================

// TurnState is the position of the session in the turn state machine.
type TurnState int

const (
	StateIdle TurnState = iota
	StateSending
	StateStreaming
	StateCommitting
	StateCanceling
	StateFailed
)

// String returns the state name.
func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCommitting:
		return "committing"
	case StateCanceling:
		return "canceling"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Busy returns true while a turn is in flight. Committing and Canceling
// count: the trailing reply is still provisional in those snapshots.
func (s TurnState) Busy() bool {
	switch s {
	case StateSending, StateStreaming, StateCommitting, StateCanceling:
		return true
	}
	return false
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is a point-in-time copy of the session. Nothing in it aliases
// controller state.
type Snapshot struct {
	// Conversations in sidebar order, newest first.
	Conversations []*model.Conversation

	// ActiveID is empty for a new, unsaved conversation.
	ActiveID string

	State TurnState

	// Model is the selected model; empty when none is usable.
	Model  string
	Models []string

	// LastError is the cause of the most recent failed turn. It is cleared
	// when the next turn starts.
	LastError error

	// Stats describes the last completed turn.
	Stats *ollama.StreamStats
}

// Active returns the active conversation, or nil.
func (s Snapshot) Active() *model.Conversation {
	if s.ActiveID == "" {
		return nil
	}
	for _, conv := range s.Conversations {
		if conv.ID == s.ActiveID {
			return conv
		}
	}
	return nil
}

// Loading returns true while a turn is in flight.
func (s Snapshot) Loading() bool {
	return s.State.Busy()
}

// CanSend returns true when a prompt could be submitted right now.
func (s Snapshot) CanSend() bool {
	return !s.Loading() && !ollama.IsPlaceholder(s.Model)
}
