// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ollamachat/internal/model"
	"github.com/jeranaias/ollamachat/internal/ollama"
	"github.com/jeranaias/ollamachat/internal/session"
)

// =============================================================================
// FAKE OLLAMA
// =============================================================================

type fakeOllama struct {
	*httptest.Server

	mu       sync.Mutex
	requests []ollama.ChatRequest
	deltas   []string
	models   string
	status   int
}

func newFakeOllama(t *testing.T, deltas ...string) *fakeOllama {
	t.Helper()

	f := &fakeOllama{
		deltas: deltas,
		models: `{"models":[{"name":"llama3.2:latest","size":2019393189,"details":{"parameter_size":"3.2B"}}]}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		models := f.models
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, models)
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req ollama.ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		f.mu.Lock()
		f.requests = append(f.requests, req)
		status := f.status
		f.mu.Unlock()

		if status != 0 {
			http.Error(w, `{"error":"boom"}`, status)
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, d := range f.deltas {
			line, _ := json.Marshal(map[string]any{
				"message": map[string]string{"role": "assistant", "content": d},
				"done":    false,
			})
			fmt.Fprintf(w, "%s\n", line)
			if fl, ok := w.(http.Flusher); ok {
				fl.Flush()
			}
		}
		fmt.Fprintln(w, `{"done":true,"eval_count":2,"eval_duration":1000000}`)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeOllama) set(status int, models string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	if models != "" {
		f.models = models
	}
}

func (f *fakeOllama) lastRequest(t *testing.T) ollama.ChatRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

// =============================================================================
// HELPERS
// =============================================================================

type env struct {
	dir    string
	server *fakeOllama
}

func newEnv(t *testing.T, deltas ...string) *env {
	t.Helper()
	for _, key := range []string{"OLLAMACHAT_MODEL", "OLLAMACHAT_DATA_DIR", "OLLAMACHAT_STORE", "OLLAMACHAT_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	srv := newFakeOllama(t, deltas...)
	t.Setenv("OLLAMACHAT_OLLAMA_URL", srv.URL)
	return &env{dir: t.TempDir(), server: srv}
}

// run executes the CLI with the env's config and data dir.
func (e *env) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	args = append(args,
		"--config", filepath.Join(e.dir, "config.toml"),
		"--data-dir", e.dir,
	)
	cmd := NewRootCmd()
	cmd.SetArgs(args)

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *env) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, stderr, err := e.run(t, "", args...)
	require.NoError(t, err, stderr)
	return out
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_PrintsReplyAndSaves(t *testing.T) {
	e := newEnv(t, "Hi", " there")

	out := e.mustRun(t, "ask", "Hello")
	assert.Equal(t, "Hi there\n", out)

	req := e.server.lastRequest(t)
	assert.Equal(t, "llama3.2:latest", req.Model)
	assert.True(t, req.Stream)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "Hello", req.Messages[0].Content)

	list := e.mustRun(t, "list")
	assert.Contains(t, list, "Hello")
	assert.FileExists(t, filepath.Join(e.dir, "chats.json"))
}

func TestAsk_ContinueSendsHistory(t *testing.T) {
	e := newEnv(t, "Hi", " there")

	e.mustRun(t, "ask", "Hello")
	e.mustRun(t, "ask", "--continue", "1", "More please")

	req := e.server.lastRequest(t)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "assistant", req.Messages[1].Role)
	assert.Equal(t, "Hi there", req.Messages[1].Content)
	assert.Equal(t, "More please", req.Messages[2].Content)

	list := e.mustRun(t, "list")
	assert.Contains(t, list, "4 ")
	assert.NotContains(t, list, "More please")
}

func TestAsk_AttachmentFolded(t *testing.T) {
	e := newEnv(t, "ok")
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("FOO"), 0644))

	e.mustRun(t, "ask", "-f", path, "Summarize")

	req := e.server.lastRequest(t)
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content, "Summarize")
	assert.Contains(t, req.Messages[0].Content, "FOO")
	assert.Contains(t, req.Messages[0].Content, "notes.txt")

	shown := e.mustRun(t, "show", "1")
	assert.Contains(t, shown, "+ notes.txt")
	assert.NotContains(t, shown, "FOO")
}

func TestAsk_PromptFromStdin(t *testing.T) {
	e := newEnv(t, "ok")

	_, stderr, err := e.run(t, "From stdin\n", "ask")
	require.NoError(t, err, stderr)

	req := e.server.lastRequest(t)
	assert.Equal(t, "From stdin\n", req.Messages[0].Content)
}

func TestAsk_ServerErrorNotPersisted(t *testing.T) {
	e := newEnv(t, "unused")
	e.server.set(http.StatusInternalServerError, "")

	_, stderr, err := e.run(t, "", "ask", "Hello")
	require.Error(t, err)
	assert.Contains(t, stderr, session.ApologyText)

	assert.Contains(t, e.mustRun(t, "list"), "No conversations found.")
}

func TestAsk_NoModels(t *testing.T) {
	e := newEnv(t, "unused")
	e.server.set(0, `{"models":[]}`)

	_, _, err := e.run(t, "", "ask", "Hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no models installed")
}

func TestAsk_NothingToAsk(t *testing.T) {
	e := newEnv(t)

	_, _, err := e.run(t, "   ", "ask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to ask")
}

// =============================================================================
// CONVERSATION COMMANDS
// =============================================================================

func TestShowRenameExportDelete(t *testing.T) {
	e := newEnv(t, "Hi", " there")
	e.mustRun(t, "ask", "Hello")

	shown := e.mustRun(t, "show", "1")
	assert.Contains(t, shown, "You")
	assert.Contains(t, shown, "Hello")
	assert.Contains(t, shown, "Assistant")
	assert.Contains(t, shown, "Hi there")

	out := e.mustRun(t, "rename", "1", "Project", "notes")
	assert.Contains(t, out, "Project notes")
	assert.Contains(t, e.mustRun(t, "list"), "Project notes")

	outDir := t.TempDir()
	e.mustRun(t, "export", "1", "--format", "json", "--output", outDir)
	files, err := filepath.Glob(filepath.Join(outDir, "chat_*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "Hi there")
	assert.NotContains(t, string(data), `"role": "user"`)

	csv := e.mustRun(t, "export", "1", "--all", "--stdout", "--format", "csv")
	assert.True(t, strings.HasPrefix(csv, "role,content,attachments"))
	assert.Contains(t, csv, "user,Hello")

	aborted, _, err := e.run(t, "n\n", "delete", "1")
	require.NoError(t, err)
	assert.Contains(t, aborted, "Aborted.")

	e.mustRun(t, "delete", "1", "--yes")
	assert.Contains(t, e.mustRun(t, "list"), "No conversations found.")
}

func TestRename_BlankResetsTitle(t *testing.T) {
	e := newEnv(t, "ok")
	e.mustRun(t, "ask", "Hello")

	out := e.mustRun(t, "rename", "1")
	assert.Contains(t, out, model.DefaultTitle)
}

func TestShow_UnknownRef(t *testing.T) {
	e := newEnv(t, "ok")
	e.mustRun(t, "ask", "Hello")

	_, _, err := e.run(t, "", "show", "7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conversation #7")
}

func TestModels(t *testing.T) {
	e := newEnv(t)

	out := e.mustRun(t, "models")

	assert.Contains(t, out, "llama3.2:latest")
	assert.Contains(t, out, "1.9 GB")
	assert.Contains(t, out, "3.2B")
}

func TestConfigCommands(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(e.dir, "config.toml")

	assert.Equal(t, path+"\n", e.mustRun(t, "config", "path"))

	e.mustRun(t, "config", "init")
	assert.FileExists(t, path)

	_, _, err := e.run(t, "", "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	shown := e.mustRun(t, "config", "show", "--model", "qwen2.5:7b")
	assert.Contains(t, shown, e.server.URL)
	assert.Contains(t, shown, `model = "qwen2.5:7b"`)
}

// =============================================================================
// REFERENCES
// =============================================================================

func TestResolveConversation(t *testing.T) {
	convs := []*model.Conversation{
		{ID: "3f2a9c00-aaaa", Title: "First"},
		{ID: "3f2b1100-bbbb", Title: "Second"},
		{ID: "99000000-cccc", Title: "Third"},
	}

	tests := []struct {
		ref     string
		want    string
		wantErr string
	}{
		{"1", "First", ""},
		{"3", "Third", ""},
		{"3f2b", "Second", ""},
		{"99", "", "no conversation #99"},
		{"3f2", "", "ambiguous"},
		{"zz", "", "not found"},
		{"", "", "required"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			conv, err := resolveConversation(convs, tt.ref)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, conv.Title)
		})
	}
}
