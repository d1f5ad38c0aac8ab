// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/ollamachat/internal/config"
	"github.com/jeranaias/ollamachat/internal/export"
	"github.com/jeranaias/ollamachat/internal/model"
	"github.com/jeranaias/ollamachat/internal/session"
	"github.com/jeranaias/ollamachat/internal/ui/styles"
)

// =============================================================================
// CHAT STATE
// =============================================================================

// focusArea is the pane receiving key input.
type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
)

// inputMode changes what Enter does in the input box.
type inputMode int

const (
	modeCompose       inputMode = iota // Enter sends the prompt
	modeRename                         // Enter renames renameID
	modeConfirmDelete                  // y deletes deleteID
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Options configures the chat screen.
type Options struct {
	Controller *session.Controller

	// Config supplies theme, markdown and sidebar settings. Nil uses defaults.
	Config *config.Config

	// ExportDir is where Ctrl+E and /export write files (default: ".").
	ExportDir string

	// RenderInterval throttles markdown renders while streaming.
	RenderInterval time.Duration
}

// Model is the Bubble Tea model for the chat screen. It renders controller
// snapshots and forwards user intents to the controller.
type Model struct {
	ctrl        *session.Controller
	snaps       <-chan session.Snapshot
	unsubscribe func()
	snap        session.Snapshot

	cfg   *config.Config
	theme *styles.Theme
	md    *markdownRenderer

	// UI Components
	keys     KeyMap
	help     help.Model
	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	// Dimensions
	width        int
	height       int
	sidebarWidth int
	ready        bool

	// Interaction
	focus    focusArea
	mode     inputMode
	cursor   int
	renameID string
	deleteID string
	pending  []model.Attachment

	// Status
	status    string
	statusErr bool
	statusSeq int

	renderPending bool
	exportOpts    *export.Options
}

// New creates the chat model and subscribes to the controller.
func New(opts Options) Model {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	theme := styles.NewTheme(cfg.UI.Theme)

	ta := textarea.New()
	ta.Placeholder = "Send a message, or /help"
	ta.ShowLineNumbers = false
	ta.Prompt = "> "
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	ta.Focus()

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(theme.Spinner),
	)

	exportOpts := export.DefaultOptions()
	if opts.ExportDir != "" {
		exportOpts.OutputDir = opts.ExportDir
	}
	if !theme.IsDark {
		exportOpts.Theme = "light"
	}

	m := Model{
		ctrl:       opts.Controller,
		cfg:        cfg,
		theme:      theme,
		md:         newMarkdownRenderer(theme.GlamourStyle(), 0, cfg.UI.Markdown, opts.RenderInterval),
		keys:       DefaultKeyMap(),
		help:       help.New(),
		input:      ta,
		viewport:   viewport.New(0, 0),
		spinner:    sp,
		exportOpts: exportOpts,
	}
	m.snaps, m.unsubscribe = opts.Controller.Subscribe()
	m.snap = opts.Controller.Snapshot()
	return m
}

// Init starts the snapshot loop, the model refresh and the cursor blink.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForSnapshot(m.snaps),
		refreshModels(m.ctrl),
		textarea.Blink,
		m.spinner.Tick,
	)
}

// Close ends the snapshot subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Snapshot returns the state the view was last rendered from.
func (m Model) Snapshot() session.Snapshot {
	return m.snap
}

// Pending returns the attachments queued for the next prompt.
func (m Model) Pending() []model.Attachment {
	return append([]model.Attachment(nil), m.pending...)
}
