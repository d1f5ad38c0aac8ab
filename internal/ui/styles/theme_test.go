// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"

	"github.com/muesli/termenv"
)

func TestNewTheme_ForcedModes(t *testing.T) {
	dark := NewTheme(ModeDark)
	if !dark.IsDark {
		t.Error("dark mode should set IsDark")
	}

	light := NewTheme(ModeLight)
	if light.IsDark {
		t.Error("light mode should clear IsDark")
	}
}

func TestGlamourStyle(t *testing.T) {
	tests := []struct {
		name  string
		theme Theme
		want  string
	}{
		{"dark", Theme{IsDark: true, ColorProfile: termenv.TrueColor}, "dark"},
		{"light", Theme{IsDark: false, ColorProfile: termenv.ANSI256}, "light"},
		{"no color", Theme{IsDark: true, ColorProfile: termenv.Ascii}, "notty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.theme.GlamourStyle(); got != tt.want {
				t.Errorf("GlamourStyle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStylesRender(t *testing.T) {
	theme := NewTheme(ModeAuto)
	if theme.Header.Render("x") == "" {
		t.Error("Header should render content")
	}
	if theme.SidebarFocused.GetBorderStyle() != theme.Sidebar.GetBorderStyle() {
		t.Error("focused sidebar should keep the sidebar border")
	}
}
