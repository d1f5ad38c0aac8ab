// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/ollamachat/internal/config"
	"github.com/jeranaias/ollamachat/internal/export"
	"github.com/jeranaias/ollamachat/internal/model"
	"github.com/jeranaias/ollamachat/internal/ollama"
	"github.com/jeranaias/ollamachat/internal/session"
	"github.com/jeranaias/ollamachat/internal/ui/styles"
)

// statusTTL is how long transient status lines stay visible.
const statusTTL = 4 * time.Second

// Update handles messages and key input.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.layout()
		m.refreshContent()
		return m, nil

	case snapshotMsg:
		cmd := m.applySnapshot(msg.snap)
		return m, tea.Batch(waitForSnapshot(m.snaps), cmd)

	case snapshotClosedMsg:
		return m, tea.Quit

	case modelsMsg:
		switch {
		case msg.err != nil:
			cmd := m.setStatus("Could not reach Ollama: "+msg.err.Error(), true)
			return m, cmd
		case len(msg.names) == 0 || (len(msg.names) == 1 && ollama.IsPlaceholder(msg.names[0])):
			cmd := m.setStatus("No models installed. Pull one with `ollama pull <model>`.", true)
			return m, cmd
		}
		return m, nil

	case renderTickMsg:
		m.renderPending = false
		m.md.flush()
		m.refreshContent()
		return m, nil

	case statusMsg:
		cmd := m.setStatus(msg.text, msg.isErr)
		return m, cmd

	case clearStatusMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
			m.statusErr = false
		}
		return m, nil

	case ConfigReloadedMsg:
		if msg.Err != nil {
			cmd := m.setStatus("Config reload failed: "+msg.Err.Error(), true)
			return m, cmd
		}
		m.applyConfig(msg.Config)
		cmd := m.setStatus("Configuration reloaded", false)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.snap.Loading() {
			m.refreshContent()
		}
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.focus == focusInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// applySnapshot installs a new controller snapshot.
func (m *Model) applySnapshot(snap session.Snapshot) tea.Cmd {
	prev := m.snap
	m.snap = snap
	m.clampCursor()

	var cmds []tea.Cmd
	if prev.Loading() && !snap.Loading() {
		m.md.resetLive()
	}
	// Failed is transient, so a finished turn is detected by its error.
	if !snap.Loading() && snap.LastError != nil && (prev.Loading() || prev.LastError == nil) {
		cmds = append(cmds, m.setStatus(describeError(snap.LastError), true))
	}
	if m.refreshContent() && !m.renderPending {
		m.renderPending = true
		cmds = append(cmds, renderTick(m.md.interval))
	}
	return tea.Batch(cmds...)
}

// applyConfig applies the parts of a reloaded config the screen owns.
func (m *Model) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	m.cfg = cfg
	m.theme = styles.NewTheme(cfg.UI.Theme)
	m.spinner.Style = m.theme.Spinner
	if m.theme.IsDark {
		m.exportOpts.Theme = "dark"
	} else {
		m.exportOpts.Theme = "light"
	}
	m.layout()
	m.refreshContent()
}

// setStatus shows a transient status line.
func (m *Model) setStatus(text string, isErr bool) tea.Cmd {
	m.statusSeq++
	m.status = text
	m.statusErr = isErr
	return clearStatusAfter(m.statusSeq, statusTTL)
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.ctrl.CancelActiveTurn()
		return m, tea.Quit
	}

	switch m.mode {
	case modeRename:
		return m.handleRenameKey(msg)
	case modeConfirmDelete:
		return m.handleDeleteKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		if m.ctrl.CancelActiveTurn() {
			cmd := m.setStatus("Reply stopped", false)
			return m, cmd
		}
		return m, nil

	case key.Matches(msg, m.keys.NewChat):
		m.startNew()
		return m, nil

	case key.Matches(msg, m.keys.Focus):
		m.toggleFocus()
		return m, nil

	case key.Matches(msg, m.keys.NextModel):
		cmd := m.cycleModel()
		return m, cmd

	case key.Matches(msg, m.keys.Refresh):
		return m, refreshModels(m.ctrl)

	case key.Matches(msg, m.keys.Export):
		cmd := m.exportReply(export.FormatMarkdown)
		return m, cmd

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.focus == focusSidebar {
		return m.handleSidebarKey(msg)
	}

	if key.Matches(msg, m.keys.Submit) {
		cmd := m.submit()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	convs := m.snap.Conversations
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(convs)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Open):
		if m.cursor < len(convs) {
			if err := m.ctrl.SelectConversation(convs[m.cursor].ID); err != nil {
				cmd := m.setStatus(err.Error(), true)
				return m, cmd
			}
			m.pending = nil
			m.toggleFocus()
		}
	case key.Matches(msg, m.keys.Rename):
		if m.cursor < len(convs) {
			m.beginRename(convs[m.cursor])
		}
	case key.Matches(msg, m.keys.Delete):
		if m.cursor < len(convs) {
			m.beginDelete(convs[m.cursor])
		}
	}
	return m, nil
}

func (m Model) handleRenameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.endMode()
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		id, title := m.renameID, m.input.Value()
		m.endMode()
		if err := m.ctrl.RenameConversation(id, title); err != nil {
			cmd := m.setStatus(err.Error(), true)
			return m, cmd
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleDeleteKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	id := m.deleteID
	m.endMode()
	if !key.Matches(msg, m.keys.Yes) {
		cmd := m.setStatus("Delete aborted", false)
		return m, cmd
	}
	if err := m.ctrl.DeleteConversation(id); err != nil {
		cmd := m.setStatus(err.Error(), true)
		return m, cmd
	}
	cmd := m.setStatus("Conversation deleted", false)
	return m, cmd
}

// =============================================================================
// ACTIONS
// =============================================================================

// submit sends the input as a prompt, or runs it as a slash command.
func (m *Model) submit() tea.Cmd {
	value := m.input.Value()
	if isCommand(value) {
		m.input.Reset()
		return m.runCommand(value)
	}

	err := m.ctrl.SubmitPrompt(value, m.pending)
	switch {
	case err == nil:
		m.input.Reset()
		m.pending = nil
		m.viewport.GotoBottom()
		return nil
	case errors.Is(err, session.ErrEmptyPrompt):
		return nil
	case errors.Is(err, session.ErrTurnInFlight):
		return m.setStatus("Wait for the reply to finish, or press esc to stop it", true)
	case errors.Is(err, session.ErrNoModel):
		return m.setStatus("No model selected. Pull a model and press C-r.", true)
	default:
		return m.setStatus(err.Error(), true)
	}
}

func (m *Model) startNew() {
	m.ctrl.StartNewConversation()
	m.pending = nil
	m.focus = focusInput
	m.input.Focus()
}

func (m *Model) toggleFocus() {
	if m.focus == focusInput {
		m.focus = focusSidebar
		m.input.Blur()
		return
	}
	m.focus = focusInput
	m.input.Focus()
}

func (m *Model) beginRename(conv *model.Conversation) {
	m.mode = modeRename
	m.renameID = conv.ID
	m.focus = focusInput
	m.input.Focus()
	m.input.SetValue(conv.Title)
}

func (m *Model) beginDelete(conv *model.Conversation) {
	m.mode = modeConfirmDelete
	m.deleteID = conv.ID
	m.statusSeq++
	m.status = "Delete \"" + conv.Title + "\"? (y/N)"
	m.statusErr = true
}

func (m *Model) endMode() {
	if m.mode == modeRename {
		m.input.Reset()
	}
	m.mode = modeCompose
	m.renameID = ""
	m.deleteID = ""
	m.status = ""
	m.statusErr = false
}

// cycleModel selects the next installed model.
func (m *Model) cycleModel() tea.Cmd {
	var names []string
	for _, name := range m.snap.Models {
		if !ollama.IsPlaceholder(name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return m.setStatus("No models installed", true)
	}
	next := names[0]
	for i, name := range names {
		if name == m.snap.Model {
			next = names[(i+1)%len(names)]
			break
		}
	}
	if err := m.ctrl.SetModel(next); err != nil {
		return m.setStatus(err.Error(), true)
	}
	return m.setStatus("Model: "+next, false)
}

// exportReply writes the latest assistant reply of the active conversation.
func (m *Model) exportReply(format export.Format) tea.Cmd {
	conv := m.snap.Active()
	doc, err := export.FromMessage(conv, export.LastReply(conv), m.snap.Model)
	if err != nil {
		return m.setStatus("Nothing to export", true)
	}
	exporter, err := export.New(format, m.exportOpts)
	if err != nil {
		return m.setStatus(err.Error(), true)
	}
	path, err := export.ExportToFile(doc, exporter, m.exportOpts)
	if err != nil {
		return m.setStatus("Export failed: "+err.Error(), true)
	}
	return m.setStatus("Exported to "+path, false)
}

func (m *Model) clampCursor() {
	n := len(m.snap.Conversations)
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// describeError turns a turn failure into a one-line status.
func describeError(err error) string {
	switch {
	case ollama.IsNotRunning(err):
		return "Ollama is not running at the configured URL"
	case ollama.IsModelNotFound(err):
		return "Model not found. Pull it with `ollama pull`."
	case ollama.IsTimeout(err):
		return "The reply timed out"
	}
	return "Reply failed: " + err.Error()
}
