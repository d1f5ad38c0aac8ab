// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ollamachat/internal/config"
	"github.com/jeranaias/ollamachat/internal/logging"
	"github.com/jeranaias/ollamachat/internal/ollama"
	"github.com/jeranaias/ollamachat/internal/session"
	"github.com/jeranaias/ollamachat/internal/storage"
)

// =============================================================================
// FAKES
// =============================================================================

// fakeInference replies with a fixed list of deltas, or holds the stream
// open until canceled when block is set.
type fakeInference struct {
	mu       sync.Mutex
	deltas   []string
	block    bool
	startErr error
	models   []string
	writers  []*io.PipeWriter
}

func (f *fakeInference) StartChat(ctx context.Context, _ string, _ []ollama.Message) (*ollama.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.startErr != nil {
		return nil, f.startErr
	}
	if f.block {
		pr, pw := io.Pipe()
		f.writers = append(f.writers, pw)
		return ollama.NewStream(ctx, pr, nil), nil
	}
	return ollama.NewStream(ctx, io.NopCloser(strings.NewReader(ndjson(f.deltas...))), nil), nil
}

func (f *fakeInference) ModelNames(context.Context) ([]string, error) {
	return f.models, nil
}

func (f *fakeInference) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.writers {
		_ = w.Close()
	}
}

func ndjson(deltas ...string) string {
	var b strings.Builder
	for _, d := range deltas {
		line, _ := json.Marshal(map[string]any{
			"message": map[string]string{"role": "assistant", "content": d},
			"done":    false,
		})
		b.Write(line)
		b.WriteByte('\n')
	}
	b.WriteString(`{"done":true}` + "\n")
	return b.String()
}

// =============================================================================
// HELPERS
// =============================================================================

type harness struct {
	ctrl      *session.Controller
	inf       *fakeInference
	exportDir string
}

func newTestModel(t *testing.T, inf *fakeInference) (Model, *harness) {
	t.Helper()

	store := storage.NewJSONStore(filepath.Join(t.TempDir(), "conversations.json"))
	ctrl := session.New(session.Options{
		Inference: inf,
		Store:     store,
		Logger:    logging.Discard(),
		Model:     "llama3.2:latest",
	})
	ctrl.Load()

	cfg := config.Default()
	cfg.UI.Markdown = false
	cfg.UI.Theme = "dark"

	h := &harness{ctrl: ctrl, inf: inf, exportDir: t.TempDir()}
	m := New(Options{Controller: ctrl, Config: cfg, ExportDir: h.exportDir})
	t.Cleanup(func() {
		inf.close()
		m.Close()
		ctrl.Close()
	})

	m = update(m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, h
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func updateCmd(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// settle waits for the turn to end and hands the final snapshot to m.
func settle(t *testing.T, m Model, h *harness) Model {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.ctrl.Wait(ctx))
	return update(m, snapshotMsg{snap: h.ctrl.Snapshot()})
}

func send(t *testing.T, m Model, h *harness, text string) Model {
	t.Helper()
	m.input.SetValue(text)
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	return settle(t, m, h)
}

// =============================================================================
// PROMPTS
// =============================================================================

func TestSubmit_ShowsReply(t *testing.T) {
	m, h := newTestModel(t, &fakeInference{deltas: []string{"Hi", " there"}})

	m = send(t, m, h, "Hello")

	assert.Empty(t, m.input.Value())
	conv := m.Snapshot().Active()
	require.NotNil(t, conv)
	require.Len(t, conv.Messages, 2)

	view := m.View()
	assert.Contains(t, view, "Hello")
	assert.Contains(t, view, "Hi there")
	assert.Contains(t, view, "You")
	assert.Contains(t, view, "Assistant")
}

func TestSubmit_EmptyPromptIgnored(t *testing.T) {
	m, h := newTestModel(t, &fakeInference{deltas: []string{"x"}})

	m.input.SetValue("   ")
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Empty(t, h.ctrl.Snapshot().Conversations)
	assert.Empty(t, m.status)
}

func TestSubmit_WhileStreamingKeepsInput(t *testing.T) {
	m, h := newTestModel(t, &fakeInference{block: true})

	m.input.SetValue("one")
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})

	m.input.SetValue("two")
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "two", m.input.Value())
	assert.True(t, m.statusErr)

	m = update(m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, "Reply stopped", m.status)

	m = settle(t, m, h)
	snap := m.Snapshot()
	assert.Equal(t, session.StateIdle, snap.State)
	require.NotNil(t, snap.Active())
	assert.Len(t, snap.Active().Messages, 1)
}

func TestSubmit_FailureShowsStatus(t *testing.T) {
	m, h := newTestModel(t, &fakeInference{startErr: ollama.ErrNotRunning})

	m = send(t, m, h, "Hello")

	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "not running")
	assert.Contains(t, m.View(), session.ApologyText)
}

func TestSubmit_NoModel(t *testing.T) {
	ctrl := session.New(session.Options{Logger: logging.Discard()})
	t.Cleanup(ctrl.Close)
	cfg := config.Default()
	cfg.UI.Markdown = false

	m := New(Options{Controller: ctrl, Config: cfg})
	m = update(m, tea.WindowSizeMsg{Width: 100, Height: 30})
	assert.Contains(t, m.View(), "No models available")

	m.input.SetValue("Hello")
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "No model")
	assert.Equal(t, "Hello", m.input.Value())
	assert.Empty(t, ctrl.Snapshot().Conversations)
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input    string
		wantCmd  bool
		wantName string
		wantArg  string
	}{
		{"/attach notes.txt", true, "attach", "notes.txt"},
		{"  /Rename   My chat ", true, "rename", "My chat"},
		{"/new", true, "new", ""},
		{"//not a command", false, "", ""},
		{"hello /attach", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.wantCmd, isCommand(tt.input))
			if !tt.wantCmd {
				return
			}
			name, arg := parseCommand(tt.input)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArg, arg)
		})
	}
}

func TestCommand_AttachDetach(t *testing.T) {
	m, _ := newTestModel(t, &fakeInference{})
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("FOO"), 0644))

	m.input.SetValue("/attach " + path)
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Len(t, m.Pending(), 1)
	assert.Equal(t, "notes.txt", m.Pending()[0].Name)
	assert.Contains(t, m.View(), "Attached: notes.txt")

	m.input.SetValue("/attach " + path)
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Len(t, m.Pending(), 1)

	m.input.SetValue("/detach notes.txt")
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, m.Pending())

	m.input.SetValue("/attach " + filepath.Join(dir, "missing.txt"))
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, m.Pending())
	assert.True(t, m.statusErr)
}

func TestCommand_AttachmentSentWithPrompt(t *testing.T) {
	m, h := newTestModel(t, &fakeInference{deltas: []string{"ok"}})
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("FOO"), 0644))

	m.input.SetValue("/attach " + path)
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	m = send(t, m, h, "Summarize")

	assert.Empty(t, m.Pending())
	conv := m.Snapshot().Active()
	require.NotNil(t, conv)
	require.Len(t, conv.Messages[0].Files, 1)
	assert.Equal(t, "Summarize", conv.Messages[0].Content)
	assert.Contains(t, m.View(), "+ notes.txt")
}

func TestCommand_Rename(t *testing.T) {
	m, h := newTestModel(t, &fakeInference{deltas: []string{"ok"}})
	m = send(t, m, h, "Hello")

	m.input.SetValue("/rename Project notes")
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, "Project notes", h.ctrl.Snapshot().Active().Title)
}

func TestCommand_RenamePrompt(t *testing.T) {
	m, h := newTestModel(t, &fakeInference{deltas: []string{"ok"}})
	m = send(t, m, h, "Hello")

	m.input.SetValue("/rename")
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, modeRename, m.mode)
	assert.Equal(t, "Hello", m.input.Value())

	m.input.SetValue("   ")
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, modeCompose, m.mode)
	assert.Equal(t, "New Chat", h.ctrl.Snapshot().Active().Title)
}

func TestCommand_Unknown(t *testing.T) {
	m, _ := newTestModel(t, &fakeInference{})

	m.input.SetValue("/frobnicate")
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "/frobnicate")
}

func TestCommand_Quit(t *testing.T) {
	m, _ := newTestModel(t, &fakeInference{})

	m.input.SetValue("/quit")
	_, cmd := updateCmd(m, tea.KeyMsg{Type: tea.KeyEnter})

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

// =============================================================================
// SIDEBAR
// =============================================================================

func TestSidebar_SelectAndDelete(t *testing.T) {
	m, h := newTestModel(t, &fakeInference{deltas: []string{"ok"}})
	m = send(t, m, h, "First")
	m = update(m, tea.KeyMsg{Type: tea.KeyCtrlN})
	m = send(t, m, h, "Second")

	convs := h.ctrl.Snapshot().Conversations
	require.Len(t, convs, 2)
	assert.Equal(t, "Second", convs[0].Title)

	m = update(m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, focusSidebar, m.focus)
	m = update(m, tea.KeyMsg{Type: tea.KeyDown})
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, convs[1].ID, h.ctrl.Snapshot().ActiveID)
	assert.Equal(t, focusInput, m.focus)

	m = update(m, snapshotMsg{snap: h.ctrl.Snapshot()})
	m = update(m, tea.KeyMsg{Type: tea.KeyTab})
	m = update(m, keyRunes("d"))
	assert.Equal(t, modeConfirmDelete, m.mode)
	m = update(m, keyRunes("y"))

	snap := h.ctrl.Snapshot()
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, "Second", snap.Conversations[0].Title)
	assert.Empty(t, snap.ActiveID)
}

func TestSidebar_DeleteAborted(t *testing.T) {
	m, h := newTestModel(t, &fakeInference{deltas: []string{"ok"}})
	m = send(t, m, h, "Keep me")

	m = update(m, tea.KeyMsg{Type: tea.KeyTab})
	m = update(m, keyRunes("d"))
	m = update(m, keyRunes("n"))

	assert.Equal(t, modeCompose, m.mode)
	assert.Len(t, h.ctrl.Snapshot().Conversations, 1)
}

func TestSidebar_TruncatesTitles(t *testing.T) {
	m, h := newTestModel(t, &fakeInference{deltas: []string{"ok"}})
	m = send(t, m, h, "A very long first prompt that will not fit in the sidebar")

	item := m.renderSidebarItem(0, m.Snapshot().Conversations[0], 16)
	assert.Contains(t, item, "…")
	assert.NotContains(t, item, "sidebar")
}

// =============================================================================
// MODELS, EXPORT, CONFIG
// =============================================================================

func TestNextModel(t *testing.T) {
	m, h := newTestModel(t, &fakeInference{models: []string{"a:latest", "b:latest"}})
	_, err := h.ctrl.RefreshModels(context.Background())
	require.NoError(t, err)
	m = update(m, snapshotMsg{snap: h.ctrl.Snapshot()})
	require.Equal(t, "a:latest", m.Snapshot().Model)

	m = update(m, tea.KeyMsg{Type: tea.KeyCtrlT})
	assert.Equal(t, "b:latest", h.ctrl.Snapshot().Model)

	m = update(m, snapshotMsg{snap: h.ctrl.Snapshot()})
	m = update(m, tea.KeyMsg{Type: tea.KeyCtrlT})
	assert.Equal(t, "a:latest", h.ctrl.Snapshot().Model)
}

func TestModelsMsg_NoModels(t *testing.T) {
	m, _ := newTestModel(t, &fakeInference{})

	m = update(m, modelsMsg{names: nil})

	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "No models installed")
}

func TestExportReply(t *testing.T) {
	m, h := newTestModel(t, &fakeInference{deltas: []string{"Exported **text**"}})
	m = send(t, m, h, "Hello")

	m = update(m, tea.KeyMsg{Type: tea.KeyCtrlE})
	require.False(t, m.statusErr, m.status)
	assert.Contains(t, m.status, "Exported to")

	files, err := filepath.Glob(filepath.Join(h.exportDir, "*.md"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "Exported **text**")
}

func TestExportReply_NothingToExport(t *testing.T) {
	m, _ := newTestModel(t, &fakeInference{})

	m.input.SetValue("/export json")
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.True(t, m.statusErr)
	assert.Equal(t, "Nothing to export", m.status)
}

func TestConfigReloaded(t *testing.T) {
	m, _ := newTestModel(t, &fakeInference{})

	cfg := config.Default()
	cfg.UI.Markdown = false
	cfg.UI.SidebarWidth = 20
	m = update(m, ConfigReloadedMsg{Config: cfg})
	assert.Equal(t, 20, m.sidebarWidth)
	assert.Equal(t, "Configuration reloaded", m.status)

	m = update(m, ConfigReloadedMsg{Err: assert.AnError})
	assert.True(t, m.statusErr)
}

func TestSnapshotClosedQuits(t *testing.T) {
	m, _ := newTestModel(t, &fakeInference{})

	_, cmd := updateCmd(m, snapshotClosedMsg{})

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestStatusExpires(t *testing.T) {
	m, _ := newTestModel(t, &fakeInference{})

	m = update(m, statusMsg{text: "one"})
	stale := m.statusSeq
	m = update(m, statusMsg{text: "two"})

	m = update(m, clearStatusMsg{seq: stale})
	assert.Equal(t, "two", m.status)
	m = update(m, clearStatusMsg{seq: m.statusSeq})
	assert.Empty(t, m.status)
}
