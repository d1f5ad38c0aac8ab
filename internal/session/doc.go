// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides the chat session controller.
//
// A Controller owns the in-memory conversation list and runs one turn at a
// time against the inference server. Each turn moves through
//
//	Idle -> Sending -> Streaming -> Committing -> Idle
//
// with Canceling and Failed as the alternate exits. Deltas are applied to
// the trailing provisional assistant message under the controller lock and
// only while their turn is still the active one, so a canceled turn can
// never write into a newer one.
//
// # Key Types
//
//   - Controller: conversation state and turn orchestration
//   - Snapshot: deep-copied read model for presentation
//   - TurnState: the turn state machine
//
// # Usage
//
//	ctrl := session.New(session.Options{
//	    Inference: client,
//	    Ingest:    ingest.New(ingest.Config{}),
//	    Store:     store,
//	})
//	ctrl.Load()
//	snaps, unsubscribe := ctrl.Subscribe()
//	defer unsubscribe()
//	if err := ctrl.SubmitPrompt("Hello", nil); err != nil {
//	    // ErrNoModel, ErrEmptyPrompt or ErrTurnInFlight
//	}
//
// # Persistence
//
// The full committed conversation set is saved exactly once per completed
// turn and after each rename or delete. Canceled turns leave nothing on
// disk. Failed turns are saved only when Options.PersistFailedTurns is set.
// Store errors are logged and never surfaced.
package session
