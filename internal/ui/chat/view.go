// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/ollamachat/internal/model"
	"github.com/jeranaias/ollamachat/internal/ollama"
	"github.com/jeranaias/ollamachat/internal/session"
)

// Fixed layout rows.
const (
	headerRows     = 1
	statusRows     = 1
	attachmentRows = 1
	inputRows      = 3
	borderRows     = 2
	minSidebar     = 10
)

// =============================================================================
// LAYOUT
// =============================================================================

// layout sizes the components for the current window.
func (m *Model) layout() {
	if !m.ready {
		return
	}

	sidebar := m.cfg.UI.SidebarWidth
	if limit := m.width / 3; sidebar > limit {
		sidebar = limit
	}
	if sidebar < minSidebar {
		sidebar = minSidebar
	}
	m.sidebarWidth = sidebar

	mainWidth := m.width - sidebar
	if mainWidth < 10 {
		mainWidth = 10
	}

	m.help.Width = m.width
	helpRows := lipgloss.Height(m.help.View(m.keys))

	body := m.height - headerRows - statusRows - helpRows
	vpHeight := body - attachmentRows - inputRows - borderRows
	if vpHeight < 1 {
		vpHeight = 1
	}

	m.input.SetWidth(mainWidth - borderRows)
	m.viewport.Width = mainWidth
	m.viewport.Height = vpHeight
	m.md.configure(m.theme.GlamourStyle(), mainWidth-2, m.cfg.UI.Markdown)
}

// bodyHeight is the height shared by the sidebar and the main column.
func (m Model) bodyHeight() int {
	return m.viewport.Height + attachmentRows + inputRows + borderRows
}

// refreshContent rebuilds the transcript. It returns true when the
// streaming reply was drawn from a throttled frame.
func (m *Model) refreshContent() bool {
	if !m.ready {
		return false
	}
	atBottom := m.viewport.AtBottom()
	content, throttled := m.renderTranscript()
	m.viewport.SetContent(content)
	if atBottom || m.snap.Loading() {
		m.viewport.GotoBottom()
	}
	return throttled
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the chat screen.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	main := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.renderAttachments(),
		m.renderInput(),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), main)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderStatus(),
		m.theme.Help.Render(m.help.View(m.keys)),
	)
}

func (m Model) renderHeader() string {
	modelName := m.snap.Model
	if modelName == "" {
		modelName = ollama.NoModelsPlaceholder
	}
	title := "ollamachat"
	if conv := m.snap.Active(); conv != nil {
		title += " - " + conv.Title
	}
	line := fmt.Sprintf("%s  [%s]", title, modelName)
	if m.snap.Loading() {
		line += "  " + m.spinner.View() + " " + m.snap.State.String()
	}
	return m.theme.Header.Width(m.width).Render(runewidth.Truncate(line, m.width-2, "…"))
}

func (m Model) renderStatus() string {
	text := m.status
	style := m.theme.Status
	if m.statusErr {
		style = m.theme.StatusErr
	}
	if text == "" && m.snap.Stats != nil && !m.snap.Loading() {
		text = m.snap.Stats.Format()
	}
	return style.Width(m.width).Render(runewidth.Truncate(text, m.width-2, "…"))
}

func (m Model) renderSidebar() string {
	style := m.theme.Sidebar
	if m.focus == focusSidebar {
		style = m.theme.SidebarFocused
	}
	inner := m.sidebarWidth - 4
	height := m.bodyHeight() - borderRows

	lines := []string{m.theme.SidebarTitle.Render("Chats")}
	if len(m.snap.Conversations) == 0 {
		lines = append(lines, m.theme.SidebarEmpty.Render("No conversations"))
	}
	for i, conv := range m.snap.Conversations {
		if len(lines) >= height {
			break
		}
		lines = append(lines, m.renderSidebarItem(i, conv, inner))
	}

	return style.
		Width(m.sidebarWidth - 2).
		Height(height).
		Render(strings.Join(lines, "\n"))
}

func (m Model) renderSidebarItem(i int, conv *model.Conversation, width int) string {
	marker := "  "
	if i == m.cursor && m.focus == focusSidebar {
		marker = "> "
	}
	title := runewidth.Truncate(conv.Title, width-runewidth.StringWidth(marker), "…")
	title = runewidth.FillRight(title, width-runewidth.StringWidth(marker))

	style := m.theme.SidebarItem
	if conv.ID == m.snap.ActiveID {
		style = m.theme.SidebarActive
	}
	if i == m.cursor && m.focus == focusSidebar {
		style = style.Inherit(m.theme.SidebarSelected)
	}
	return style.Render(marker + title)
}

func (m Model) renderAttachments() string {
	if len(m.pending) == 0 {
		return ""
	}
	names := make([]string, len(m.pending))
	for i, att := range m.pending {
		names[i] = att.Name
	}
	line := "Attached: " + strings.Join(names, ", ")
	return m.theme.Attachment.Render(runewidth.Truncate(line, m.viewport.Width, "…"))
}

func (m Model) renderInput() string {
	style := m.theme.Input
	if m.focus == focusInput {
		style = m.theme.InputFocused
	}
	return style.Render(m.input.View())
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func (m *Model) renderTranscript() (string, bool) {
	conv := m.snap.Active()
	if conv == nil || conv.IsEmpty() {
		return m.renderEmpty(), false
	}

	throttled := false
	blocks := make([]string, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		block, t := m.renderMessage(msg)
		throttled = throttled || t
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n"), throttled
}

func (m *Model) renderMessage(msg *model.Message) (string, bool) {
	var b strings.Builder

	label := m.theme.AssistantLabel
	if msg.Role == model.RoleUser {
		label = m.theme.UserLabel
	}
	b.WriteString(label.Render(msg.Role.DisplayName()))
	b.WriteString("\n")

	for _, att := range msg.Files {
		b.WriteString(m.theme.Attachment.Render("+ " + att.Name))
		b.WriteString("\n")
	}

	throttled := false
	switch {
	case msg.Role != model.RoleAssistant:
		b.WriteString(m.md.plain(msg.Content))
	case msg.IsFailed():
		b.WriteString(m.theme.Failed.Render(msg.Content))
	case msg.IsProvisional() && msg.Content == "":
		b.WriteString(m.spinner.View() + " " + m.theme.Pending.Render("thinking"))
	case msg.IsProvisional():
		var out string
		out, throttled = m.md.renderLive(msg.Content)
		b.WriteString(out)
	default:
		b.WriteString(m.md.render(msg.Content))
	}
	return strings.TrimRight(b.String(), "\n"), throttled
}

func (m Model) renderEmpty() string {
	if m.snap.Model == "" {
		return m.theme.Empty.Render("No models available. Start Ollama and pull a model, then press C-r.")
	}
	if m.snap.State == session.StateIdle && m.snap.ActiveID == "" {
		return m.theme.Empty.Render("Start a new conversation by typing below.")
	}
	return ""
}
