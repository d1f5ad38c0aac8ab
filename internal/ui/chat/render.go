// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/time/rate"
)

// DefaultRenderInterval is the minimum gap between full markdown renders of
// a streaming reply.
const DefaultRenderInterval = 100 * time.Millisecond

// maxCacheEntries bounds the rendered-message cache.
const maxCacheEntries = 256

// markdownRenderer renders assistant replies with glamour. Finished replies
// are cached by content. The streaming reply is re-rendered at most once per
// interval; in between, the last render is shown with the new raw text
// appended.
type markdownRenderer struct {
	style    string
	width    int
	enabled  bool
	interval time.Duration

	tr      *glamour.TermRenderer
	cache   map[string]string
	limiter *rate.Limiter

	liveSrc string
	liveOut string
}

func newMarkdownRenderer(style string, width int, enabled bool, interval time.Duration) *markdownRenderer {
	if interval <= 0 {
		interval = DefaultRenderInterval
	}
	r := &markdownRenderer{
		style:    style,
		width:    width,
		enabled:  enabled,
		interval: interval,
		cache:    make(map[string]string),
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
	r.rebuild()
	return r
}

func (r *markdownRenderer) rebuild() {
	r.cache = make(map[string]string)
	r.resetLive()
	r.tr = nil
	if !r.enabled || r.width <= 0 {
		return
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(r.style),
		glamour.WithWordWrap(r.width),
	)
	if err != nil {
		return
	}
	r.tr = tr
}

// configure updates style, width and the markdown switch, rebuilding the
// glamour renderer only when something changed.
func (r *markdownRenderer) configure(style string, width int, enabled bool) {
	if style == r.style && width == r.width && enabled == r.enabled {
		return
	}
	r.style = style
	r.width = width
	r.enabled = enabled
	r.rebuild()
}

// render renders finished content.
func (r *markdownRenderer) render(content string) string {
	if r.tr == nil {
		return r.plain(content)
	}
	if out, ok := r.cache[content]; ok {
		return out
	}
	out := r.full(content)
	if len(r.cache) >= maxCacheEntries {
		r.cache = make(map[string]string)
	}
	r.cache[content] = out
	return out
}

// renderLive renders the streaming reply. throttled reports whether a raw
// tail was shown, in which case the caller should schedule a flush.
func (r *markdownRenderer) renderLive(content string) (out string, throttled bool) {
	if r.tr == nil {
		return r.plain(content), false
	}
	if content == r.liveSrc {
		return r.liveOut, false
	}
	if r.liveSrc != "" && strings.HasPrefix(content, r.liveSrc) && !r.limiter.Allow() {
		tail := strings.TrimLeft(content[len(r.liveSrc):], "\n")
		return r.liveOut + "\n" + r.plain(tail), true
	}
	r.liveSrc = content
	r.liveOut = r.full(content)
	return r.liveOut, false
}

// flush forgets the live frame so the next renderLive renders in full.
func (r *markdownRenderer) flush() {
	r.resetLive()
	r.limiter = rate.NewLimiter(rate.Every(r.interval), 1)
}

func (r *markdownRenderer) resetLive() {
	r.liveSrc = ""
	r.liveOut = ""
}

func (r *markdownRenderer) full(content string) string {
	out, err := r.tr.Render(content)
	if err != nil {
		return r.plain(content)
	}
	return strings.Trim(out, "\n")
}

func (r *markdownRenderer) plain(content string) string {
	if r.width <= 0 {
		return content
	}
	return lipgloss.NewStyle().Width(r.width).Render(content)
}
