// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling for the ollamachat TUI.

All colors use Lip Gloss AdaptiveColor so they follow the terminal's light
or dark background. The Theme struct detects the color profile with termenv
and exposes ready-made styles for the sidebar, transcript, input and status
bar.

	theme := styles.NewTheme(cfg.UI.Theme)
	header := theme.Header.Render("ollamachat")
	renderer, _ := glamour.NewTermRenderer(glamour.WithStandardStyle(theme.GlamourStyle()))
*/
package styles
