// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import "strings"

// Ellipsis is appended by TruncateRunes when it shortens a string.
const Ellipsis = "..."

// TruncateRunes keeps the first maxRunes characters of s and appends
// Ellipsis when anything was cut. Counting is by rune so multi-byte
// characters are never split.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + Ellipsis
}

// CollapseSpace trims s and replaces every run of whitespace (including
// newlines) with a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RuneLen returns the number of runes in s.
func RuneLen(s string) int {
	return len([]rune(s))
}
