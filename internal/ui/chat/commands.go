// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/ollamachat/internal/config"
	"github.com/jeranaias/ollamachat/internal/export"
	"github.com/jeranaias/ollamachat/internal/ingest"
	"github.com/jeranaias/ollamachat/internal/model"
	"github.com/jeranaias/ollamachat/internal/session"
)

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// commandHelp lists the slash commands in display order.
var commandHelp = []struct {
	Usage string
	Desc  string
}{
	{"/attach <path>", "attach a file to the next prompt"},
	{"/detach [name]", "drop one or all pending attachments"},
	{"/new", "start a new conversation"},
	{"/rename [title]", "rename the active conversation"},
	{"/delete", "delete the active conversation"},
	{"/model [name]", "show or select the model"},
	{"/models", "reload the installed model list"},
	{"/export [format]", "export the last reply (markdown, html, json, yaml, csv)"},
	{"/help", "show this help"},
	{"/quit", "exit"},
}

// isCommand returns true if input is a slash command rather than a prompt.
func isCommand(input string) bool {
	trimmed := strings.TrimSpace(input)
	return strings.HasPrefix(trimmed, "/") && !strings.HasPrefix(trimmed, "//")
}

// parseCommand splits "/name rest of line" into name and argument.
func parseCommand(input string) (name, arg string) {
	trimmed := strings.TrimSpace(input)
	trimmed = strings.TrimPrefix(trimmed, "/")
	name, arg, _ = strings.Cut(trimmed, " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

// runCommand executes a slash command.
func (m *Model) runCommand(input string) tea.Cmd {
	name, arg := parseCommand(input)

	switch name {
	case "attach", "a":
		return m.attach(arg)

	case "detach":
		return m.detach(arg)

	case "new", "n":
		m.startNew()
		return nil

	case "rename":
		conv := m.snap.Active()
		if conv == nil {
			return m.setStatus("No active conversation", true)
		}
		if arg == "" {
			m.beginRename(conv)
			return nil
		}
		if err := m.ctrl.RenameConversation(conv.ID, arg); err != nil {
			return m.setStatus(err.Error(), true)
		}
		return nil

	case "delete":
		conv := m.snap.Active()
		if conv == nil {
			return m.setStatus("No active conversation", true)
		}
		m.beginDelete(conv)
		return nil

	case "model", "m":
		if arg == "" {
			if m.snap.Model == "" {
				return m.setStatus("No model selected", true)
			}
			return m.setStatus("Model: "+m.snap.Model+" ("+strings.Join(m.snap.Models, ", ")+")", false)
		}
		if err := m.ctrl.SetModel(arg); err != nil {
			if errors.Is(err, session.ErrNoModel) {
				return m.setStatus("Not a usable model: "+arg, true)
			}
			return m.setStatus(err.Error(), true)
		}
		return m.setStatus("Model: "+arg, false)

	case "models":
		return refreshModels(m.ctrl)

	case "export", "e":
		if arg == "" {
			return m.exportReply(export.FormatMarkdown)
		}
		format, err := export.ParseFormat(arg)
		if err != nil {
			return m.setStatus(err.Error(), true)
		}
		return m.exportReply(format)

	case "help", "h", "?":
		m.help.ShowAll = true
		m.layout()
		return m.setStatus(commandSummary(), false)

	case "quit", "q", "exit":
		m.ctrl.CancelActiveTurn()
		return tea.Quit
	}

	return m.setStatus(fmt.Sprintf("Unknown command /%s (try /help)", name), true)
}

func (m *Model) attach(arg string) tea.Cmd {
	if arg == "" {
		return m.setStatus("Usage: /attach <path>", true)
	}
	path := config.ExpandHome(strings.Trim(arg, `"'`))
	att, err := ingest.Inspect(path)
	if err != nil {
		return m.setStatus("Cannot attach: "+err.Error(), true)
	}
	for _, existing := range m.pending {
		if existing.Path == att.Path {
			return m.setStatus(att.Name+" is already attached", false)
		}
	}
	m.pending = append(m.pending, att)
	m.layout()
	return m.setStatus("Attached "+att.Name, false)
}

func (m *Model) detach(name string) tea.Cmd {
	if name == "" {
		m.pending = nil
		m.layout()
		return m.setStatus("Attachments cleared", false)
	}
	kept := m.pending[:0]
	found := false
	for _, att := range m.pending {
		if att.Name == name {
			found = true
			continue
		}
		kept = append(kept, att)
	}
	if !found {
		return m.setStatus("Not attached: "+name, true)
	}
	m.pending = append([]model.Attachment(nil), kept...)
	m.layout()
	return m.setStatus("Detached "+name, false)
}

func commandSummary() string {
	parts := make([]string, 0, len(commandHelp))
	for _, c := range commandHelp {
		parts = append(parts, c.Usage)
	}
	return strings.Join(parts, "  ")
}
