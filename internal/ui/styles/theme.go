// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme modes accepted by NewTheme.
const (
	ModeAuto  = "auto"
	ModeDark  = "dark"
	ModeLight = "light"
)

// Theme holds the lipgloss styles for the chat screen.
type Theme struct {
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Layout
	Header    lipgloss.Style
	Status    lipgloss.Style
	StatusErr lipgloss.Style
	Help      lipgloss.Style

	// Sidebar
	Sidebar         lipgloss.Style
	SidebarFocused  lipgloss.Style
	SidebarTitle    lipgloss.Style
	SidebarItem     lipgloss.Style
	SidebarActive   lipgloss.Style
	SidebarSelected lipgloss.Style
	SidebarEmpty    lipgloss.Style

	// Transcript
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Failed         lipgloss.Style
	Attachment     lipgloss.Style
	Empty          lipgloss.Style

	// Input
	Input        lipgloss.Style
	InputFocused lipgloss.Style
	Pending      lipgloss.Style
	Spinner      lipgloss.Style
}

// NewTheme detects terminal capabilities and builds the styles. mode is
// "auto", "dark" or "light"; anything else means auto.
func NewTheme(mode string) *Theme {
	profile := termenv.ColorProfile()

	var isDark bool
	switch strings.ToLower(mode) {
	case ModeDark:
		isDark = true
		lipgloss.SetHasDarkBackground(true)
	case ModeLight:
		isDark = false
		lipgloss.SetHasDarkBackground(false)
	default:
		isDark = termenv.HasDarkBackground()
	}

	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,
	}
	t.initStyles()
	return t
}

// GlamourStyle returns the glamour standard style matching the theme.
func (t *Theme) GlamourStyle() string {
	if t.ColorProfile == termenv.Ascii {
		return "notty"
	}
	if t.IsDark {
		return "dark"
	}
	return "light"
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		Background(SurfaceDim).
		Padding(0, 1)

	t.Status = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(SurfaceDim).
		Padding(0, 1)

	t.StatusErr = t.Status.
		Foreground(Rose).
		Bold(true)

	t.Help = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.SidebarFocused = t.Sidebar.
		BorderForeground(Purple)

	t.SidebarTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple).
		MarginBottom(1)

	t.SidebarItem = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.SidebarActive = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.SidebarSelected = lipgloss.NewStyle().
		Background(SurfaceBright)

	t.SidebarEmpty = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.Failed = lipgloss.NewStyle().
		Foreground(Rose).
		Italic(true)

	t.Attachment = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	t.Empty = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true).
		Padding(1, 2)

	t.Input = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay)

	t.InputFocused = t.Input.
		BorderForeground(Cyan)

	t.Pending = lipgloss.NewStyle().
		Foreground(Emerald)

	t.Spinner = lipgloss.NewStyle().
		Foreground(Amber)
}
