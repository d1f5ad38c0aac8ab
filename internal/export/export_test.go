// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/ollamachat/internal/model"
)

func testConversation() *model.Conversation {
	return &model.Conversation{
		ID:        "c1",
		Title:     "Sorting in Go",
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Committed: true,
		Messages: []*model.Message{
			{Role: model.RoleUser, Content: "How do I sort?", State: model.StateCommitted,
				Files: []model.Attachment{{Path: "/tmp/a.txt", Name: "a.txt", Kind: model.KindText}}},
			{Role: model.RoleAssistant, Content: "Use sort.Slice:\n\n```go\nsort.Slice(xs, less)\n```", State: model.StateCommitted},
			{Role: model.RoleUser, Content: "Thanks", State: model.StateCommitted},
			{Role: model.RoleAssistant, Content: failedReply, State: model.StateFailed},
		},
	}
}

const failedReply = "Sorry, I couldn't connect."

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"md": FormatMarkdown, "Markdown": FormatMarkdown, ".html": FormatHTML,
		"json": FormatJSON, "yml": FormatYAML, "CSV": FormatCSV,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestNew_AllFormats(t *testing.T) {
	exts := map[Format]string{
		FormatMarkdown: ".md", FormatHTML: ".html", FormatJSON: ".json",
		FormatYAML: ".yaml", FormatCSV: ".csv",
	}
	for _, f := range Formats {
		e, err := New(f, nil)
		require.NoError(t, err)
		assert.Equal(t, exts[f], e.FileExtension())
		assert.NotEmpty(t, e.MimeType())
	}
	_, err := New("docx", nil)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestFromConversation(t *testing.T) {
	conv := testConversation()
	conv.Messages = append(conv.Messages[:3], model.NewProvisionalMessage())

	doc, err := FromConversation(conv, "llama3.2", false)
	require.NoError(t, err)
	require.Len(t, doc.Entries, 3, "provisional replies are not exported")
	assert.Equal(t, []string{"a.txt"}, doc.Entries[0].Files)

	failed := testConversation()
	doc, err = FromConversation(failed, "", false)
	require.NoError(t, err)
	assert.Len(t, doc.Entries, 3)

	doc, err = FromConversation(failed, "", true)
	require.NoError(t, err)
	assert.Len(t, doc.Entries, 4)

	_, err = FromConversation(&model.Conversation{}, "", false)
	assert.ErrorIs(t, err, ErrNothingToExport)
}

func TestFromMessage(t *testing.T) {
	conv := testConversation()

	assert.Equal(t, 1, LastReply(conv), "failed replies are skipped")
	doc, err := FromMessage(conv, 1, "llama3.2")
	require.NoError(t, err)
	require.Len(t, doc.Entries, 1)
	assert.Equal(t, "assistant", doc.Entries[0].Role)

	_, err = FromMessage(conv, 0, "")
	assert.ErrorIs(t, err, ErrNotAssistant)
	_, err = FromMessage(conv, 3, "")
	assert.ErrorIs(t, err, ErrNotAssistant)
	_, err = FromMessage(conv, 9, "")
	assert.ErrorIs(t, err, ErrNothingToExport)
	assert.Equal(t, -1, LastReply(&model.Conversation{}))
}

func TestMarkdownExport(t *testing.T) {
	doc, err := FromConversation(testConversation(), "llama3.2", false)
	require.NoError(t, err)

	out, err := NewMarkdownExporter(nil).Export(doc)
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\ntitle: Sorting in Go\n"))
	assert.Contains(t, md, "model: llama3.2")
	assert.Contains(t, md, "# Sorting in Go")
	assert.Contains(t, md, "### You")
	assert.Contains(t, md, "> Attached: `a.txt`")
	assert.Contains(t, md, "```go\nsort.Slice(xs, less)\n```")
}

func TestMarkdownExport_SingleReplyHasNoRoleHeadings(t *testing.T) {
	doc, err := FromMessage(testConversation(), 1, "")
	require.NoError(t, err)

	out, err := NewMarkdownExporter(&Options{}).Export(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "###")
	assert.NotContains(t, string(out), "generator:")
}

func TestMarkdownExport_YAMLInjection(t *testing.T) {
	doc := &Document{
		Title:      "Test\nInjection: malicious",
		ExportedAt: time.Now(),
		Entries:    []Entry{{Role: "user", Content: "x"}},
	}
	out, err := NewMarkdownExporter(nil).Export(doc)
	require.NoError(t, err)
	assert.Contains(t, string(out), `title: "Test\nInjection: malicious"`)
	assert.NotContains(t, string(out), "\nInjection: malicious\n")
}

func TestHTMLExport(t *testing.T) {
	doc, err := FromConversation(testConversation(), "llama3.2", false)
	require.NoError(t, err)

	out, err := NewHTMLExporter(nil).Export(doc)
	require.NoError(t, err)
	page := string(out)

	assert.Contains(t, page, "<title>Sorting in Go</title>")
	assert.Contains(t, page, `class="dark-theme"`)
	assert.Contains(t, page, `<div class="code-lang">go</div>`)
	assert.Contains(t, page, `class="chroma"`, "code blocks are highlighted")
	assert.Contains(t, page, "<li>a.txt</li>")
	assert.NotContains(t, page, "```")
}

func TestHTMLExport_Escapes(t *testing.T) {
	doc := &Document{
		Title:      "<b>t</b>",
		ExportedAt: time.Now(),
		Entries: []Entry{
			{Role: "assistant", Content: "```<script>alert('xss')</script>\ncode here\n```\n\n<img src=x onerror=alert(1)>"},
		},
	}
	out, err := NewHTMLExporter(&Options{Theme: "light"}).Export(doc)
	require.NoError(t, err)
	page := string(out)

	assert.NotContains(t, page, "<script>alert")
	assert.NotContains(t, page, "<img src=x")
	assert.Contains(t, page, "&lt;img src=x")
	assert.Contains(t, page, "&lt;b&gt;t&lt;/b&gt;")
	assert.Contains(t, page, `class="light-theme"`)
}

func TestFormatProse_InlineCode(t *testing.T) {
	got := formatProse("call `f(x)` now\nplease\n\nsecond")
	assert.Equal(t, "<p>call <code class=\"inline-code\">f(x)</code> now<br>\nplease</p>\n<p>second</p>\n", got)
}

func TestJSONExport(t *testing.T) {
	doc, err := FromMessage(testConversation(), 1, "llama3.2")
	require.NoError(t, err)

	out, err := NewJSONExporter(nil).Export(doc)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "Sorting in Go", decoded["title"])
	assert.Equal(t, "llama3.2", decoded["model"])
	assert.Len(t, decoded["messages"], 1)
}

func TestYAMLExport(t *testing.T) {
	doc, err := FromConversation(testConversation(), "", false)
	require.NoError(t, err)

	out, err := NewYAMLExporter(nil).Export(doc)
	require.NoError(t, err)

	var decoded struct {
		Title    string `yaml:"title"`
		Model    string `yaml:"model"`
		Messages []struct {
			Role  string   `yaml:"role"`
			Files []string `yaml:"files"`
		} `yaml:"messages"`
	}
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, "Sorting in Go", decoded.Title)
	assert.Empty(t, decoded.Model)
	require.Len(t, decoded.Messages, 3)
	assert.Equal(t, []string{"a.txt"}, decoded.Messages[0].Files)
	assert.NotContains(t, string(out), "model:", "empty model is omitted")
}

func TestCSVExport(t *testing.T) {
	doc, err := FromConversation(testConversation(), "", false)
	require.NoError(t, err)

	out, err := NewCSVExporter(nil).Export(doc)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"role", "content", "attachments"}, rows[0])
	assert.Equal(t, []string{"user", "How do I sort?", "a.txt"}, rows[1])
	assert.Contains(t, rows[2][1], "sort.Slice(xs, less)")
}

func TestExportToFile(t *testing.T) {
	dir := t.TempDir()
	doc, err := FromMessage(testConversation(), 1, "")
	require.NoError(t, err)
	doc.Title = `a/b: "c"?`

	path, err := ExportToFile(doc, NewMarkdownExporter(nil), &Options{OutputDir: dir})
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	base := filepath.Base(path)
	assert.True(t, strings.HasPrefix(base, "chat_a-b-_-c--_"), base)
	assert.True(t, strings.HasSuffix(base, ".md"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sort.Slice")
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "conversation"},
		{"plain", "plain"},
		{"with space\tand\nlines", "with_space_and_lines"},
		{`C:\x|y<z>`, "C--x-y-z-"},
		{strings.Repeat("é", 60), strings.Repeat("é", 50)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), tt.in)
	}
}
