// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/ollamachat/internal/model"
)

// =============================================================================
// CONVERSATION LIST FORMATTING
// =============================================================================

// FormatConversationList renders conversations as a plain-text table with
// index, short id, creation time, message count and title.
func FormatConversationList(convs []*model.Conversation) string {
	if len(convs) == 0 {
		return "No conversations found."
	}

	var sb strings.Builder
	sb.WriteString(pad("#", 4) + " " + pad("ID", 8) + " " + pad("Created", 16) + " " + pad("Msgs", 5) + " Title\n")
	sb.WriteString(strings.Repeat("-", 64) + "\n")

	for i, c := range convs {
		id := c.ID
		if len(id) > 8 {
			id = id[:8]
		}
		sb.WriteString(pad(strconv.Itoa(i+1), 4) + " " +
			pad(id, 8) + " " +
			pad(c.CreatedAt.Format("2006-01-02 15:04"), 16) + " " +
			pad(strconv.Itoa(len(c.Messages)), 5) + " " +
			runewidth.Truncate(c.Title, 40, "...") + "\n")
	}
	return sb.String()
}

// pad fills s with spaces to the given display width.
func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}
