// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ollamachat/internal/model"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func writeDocx(t *testing.T, dir, name, body string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return writeFile(t, dir, name, buf.Bytes())
}

// =============================================================================
// CLASSIFICATION TESTS
// =============================================================================

func TestKindOf(t *testing.T) {
	tests := []struct {
		path string
		want model.AttachmentKind
		ok   bool
	}{
		{"photo.JPG", model.KindImage, true},
		{"a.jpeg", model.KindImage, true},
		{"a.webp", model.KindImage, true},
		{"report.pdf", model.KindPDF, true},
		{"notes.md", model.KindText, true},
		{"notes.txt", model.KindText, true},
		{"letter.docx", model.KindDocx, true},
		{"archive.zip", "", false},
		{"Makefile", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			got, ok := KindOf(tc.path)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", []byte("FOO"))

	att, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", att.Name)
	assert.Equal(t, model.KindText, att.Kind)
	assert.True(t, filepath.IsAbs(att.Path))

	_, err = Inspect(writeFile(t, dir, "a.zip", []byte("PK")))
	assert.True(t, errors.Is(err, ErrUnsupported))

	_, err = Inspect(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)

	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.md"), 0755))
	_, err = Inspect(filepath.Join(dir, "folder.md"))
	assert.True(t, errors.Is(err, ErrIsDirectory))
}

// =============================================================================
// RESOLVE TESTS
// =============================================================================

func TestResolve_TextAndImages(t *testing.T) {
	dir := t.TempDir()
	png := []byte{0x89, 'P', 'N', 'G'}

	refs := []model.Attachment{
		{Path: writeFile(t, dir, "a.txt", []byte("FOO")), Name: "a.txt", Kind: model.KindText},
		{Path: writeFile(t, dir, "pic.png", png), Name: "pic.png", Kind: model.KindImage},
		{Path: writeFile(t, dir, "b.md", []byte("# BAR")), Name: "b.md"},
	}

	got := New(Config{}).Resolve(context.Background(), refs)

	assert.Equal(t, []string{
		"--- File: a.txt ---\nFOO",
		"--- File: b.md ---\n# BAR",
	}, got.TextBlocks)
	assert.Equal(t, []string{base64.StdEncoding.EncodeToString(png)}, got.Images)
}

func TestResolve_SkipsAndLogsFailures(t *testing.T) {
	dir := t.TempDir()
	var logBuf bytes.Buffer

	refs := []model.Attachment{
		{Path: filepath.Join(dir, "gone.txt"), Name: "gone.txt", Kind: model.KindText},
		{Path: writeFile(t, dir, "data.bin", []byte{1, 2, 3}), Name: "data.bin"},
		{Path: writeFile(t, dir, "fake.pdf", []byte("not a pdf")), Name: "fake.pdf", Kind: model.KindPDF},
		{Path: writeFile(t, dir, "ok.txt", []byte("kept")), Name: "ok.txt", Kind: model.KindText},
	}

	got := New(Config{Logger: log.New(&logBuf)}).Resolve(context.Background(), refs)

	assert.Equal(t, []string{"--- File: ok.txt ---\nkept"}, got.TextBlocks)
	assert.Empty(t, got.Images)
	assert.Contains(t, logBuf.String(), "gone.txt")
	assert.Contains(t, logBuf.String(), "data.bin")
	assert.Contains(t, logBuf.String(), "fake.pdf")
}

func TestResolve_SizeLimit(t *testing.T) {
	dir := t.TempDir()
	refs := []model.Attachment{
		{Path: writeFile(t, dir, "big.txt", bytes.Repeat([]byte("x"), 100)), Name: "big.txt", Kind: model.KindText},
	}

	got := New(Config{MaxFileSize: 10}).Resolve(context.Background(), refs)
	assert.True(t, got.Empty())
}

func TestResolve_Docx(t *testing.T) {
	dir := t.TempDir()
	body := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> world</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second</w:t><w:tab/><w:t>line</w:t></w:r></w:p>
  </w:body>
</w:document>`
	path := writeDocx(t, dir, "letter.docx", body)

	got := New(Config{}).Resolve(context.Background(), []model.Attachment{
		{Path: path, Name: "letter.docx", Kind: model.KindDocx},
	})

	require.Len(t, got.TextBlocks, 1)
	assert.Equal(t, "--- File: letter.docx ---\nHello world\nSecond\tline", got.TextBlocks[0])
}

func TestExtractDocx_NotAWordFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.Create("other.xml")
	require.NoError(t, zw.Close())
	path := writeFile(t, dir, "x.docx", buf.Bytes())

	_, err := extractDocx(path)
	assert.ErrorIs(t, err, errNoDocumentXML)
}

func TestResolve_StopsOnCancelledContext(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := New(Config{}).Resolve(ctx, []model.Attachment{
		{Path: writeFile(t, dir, "a.txt", []byte("FOO")), Name: "a.txt", Kind: model.KindText},
	})
	assert.True(t, got.Empty())
}

// =============================================================================
// FOLDING TESTS
// =============================================================================

func TestFoldContent(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		blocks []string
		want   string
	}{
		{"no attachments", "Summarize", nil, "Summarize"},
		{"one block", "Summarize", []string{Label("a.txt", "FOO")}, "--- File: a.txt ---\nFOO\n\nSummarize"},
		{"two blocks", "Compare", []string{"A", "B"}, "A\n\nB\n\nCompare"},
		{"blank prompt", "", []string{"A"}, "A"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FoldContent(tc.prompt, Resolved{TextBlocks: tc.blocks}))
		})
	}
}
