// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/ollamachat/internal/config"
	"github.com/jeranaias/ollamachat/internal/session"
)

// =============================================================================
// MESSAGES
// =============================================================================

// snapshotMsg carries the latest controller state.
type snapshotMsg struct {
	snap session.Snapshot
}

// snapshotClosedMsg is sent when the subscription ends.
type snapshotClosedMsg struct{}

// modelsMsg is the result of a model list refresh.
type modelsMsg struct {
	names []string
	err   error
}

// renderTickMsg asks for a full markdown render of a throttled frame.
type renderTickMsg struct{}

// statusMsg shows a transient line in the status bar.
type statusMsg struct {
	text  string
	isErr bool
}

// clearStatusMsg clears the status line if it still shows seq.
type clearStatusMsg struct {
	seq int
}

// ConfigReloadedMsg applies a reloaded configuration. Send it with
// Program.Send from a config.Watch callback.
type ConfigReloadedMsg struct {
	Config *config.Config
	Err    error
}

// =============================================================================
// COMMANDS
// =============================================================================

// waitForSnapshot blocks until the controller publishes a new snapshot.
func waitForSnapshot(ch <-chan session.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return snapshotClosedMsg{}
		}
		return snapshotMsg{snap: snap}
	}
}

// refreshModels reloads the installed model list.
func refreshModels(ctrl *session.Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		names, err := ctrl.RefreshModels(ctx)
		return modelsMsg{names: names, err: err}
	}
}

func renderTick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return renderTickMsg{}
	})
}

func clearStatusAfter(seq int, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return clearStatusMsg{seq: seq}
	})
}
