// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jeranaias/ollamachat/internal/model"
	"github.com/jeranaias/ollamachat/internal/util"
)

// Errors returned when selecting what to export.
var (
	ErrNothingToExport = errors.New("nothing to export")
	ErrNotAssistant    = errors.New("message is not a completed assistant reply")
	ErrUnknownFormat   = errors.New("unknown export format")
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter defines the interface for document exporters.
type Exporter interface {
	// Export converts a document to the target format and returns the content.
	Export(doc *Document) ([]byte, error)

	// FileExtension returns the appropriate file extension (e.g., ".md", ".html").
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

// Format names an export format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatCSV      Format = "csv"
)

// Formats lists every supported format.
var Formats = []Format{FormatMarkdown, FormatHTML, FormatJSON, FormatYAML, FormatCSV}

// ParseFormat accepts a format name or a common extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// New returns the exporter for format.
func New(format Format, opts *Options) (Exporter, error) {
	switch format {
	case FormatMarkdown:
		return NewMarkdownExporter(opts), nil
	case FormatHTML:
		return NewHTMLExporter(opts), nil
	case FormatJSON:
		return NewJSONExporter(opts), nil
	case FormatYAML:
		return NewYAMLExporter(opts), nil
	case FormatCSV:
		return NewCSVExporter(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// =============================================================================
// DOCUMENT
// =============================================================================

// Document is the exported view of a conversation or of a single reply.
type Document struct {
	Title      string    `json:"title" yaml:"title"`
	Model      string    `json:"model,omitempty" yaml:"model,omitempty"`
	CreatedAt  time.Time `json:"createdAt" yaml:"created_at"`
	ExportedAt time.Time `json:"exportedAt" yaml:"exported_at"`
	Entries    []Entry   `json:"messages" yaml:"messages"`
}

// Entry is one exported message.
type Entry struct {
	Role    string   `json:"role" yaml:"role"`
	Content string   `json:"content" yaml:"content"`
	Files   []string `json:"files,omitempty" yaml:"files,omitempty"`
}

func entryFor(msg *model.Message) Entry {
	e := Entry{Role: string(msg.Role), Content: msg.Content}
	for _, f := range msg.Files {
		e.Files = append(e.Files, f.Name)
	}
	return e
}

// FromConversation exports every settled message. Provisional replies are
// never exported; failed ones only when includeFailed is set.
func FromConversation(conv *model.Conversation, modelName string, includeFailed bool) (*Document, error) {
	if conv == nil {
		return nil, ErrNothingToExport
	}
	doc := &Document{
		Title:      conv.Title,
		Model:      modelName,
		CreatedAt:  conv.CreatedAt,
		ExportedAt: time.Now(),
	}
	for _, msg := range conv.Persistable(includeFailed) {
		doc.Entries = append(doc.Entries, entryFor(msg))
	}
	if len(doc.Entries) == 0 {
		return nil, ErrNothingToExport
	}
	return doc, nil
}

// FromMessage exports the assistant reply at index.
func FromMessage(conv *model.Conversation, index int, modelName string) (*Document, error) {
	if conv == nil || index < 0 || index >= len(conv.Messages) {
		return nil, ErrNothingToExport
	}
	msg := conv.Messages[index]
	if msg.Role != model.RoleAssistant || msg.IsProvisional() || msg.IsFailed() {
		return nil, ErrNotAssistant
	}
	return &Document{
		Title:      conv.Title,
		Model:      modelName,
		CreatedAt:  conv.CreatedAt,
		ExportedAt: time.Now(),
		Entries:    []Entry{entryFor(msg)},
	}, nil
}

// LastReply returns the index of the latest completed assistant reply, or -1.
func LastReply(conv *model.Conversation) int {
	if conv == nil {
		return -1
	}
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		msg := conv.Messages[i]
		if msg.Role == model.RoleAssistant && !msg.IsProvisional() && !msg.IsFailed() {
			return i
		}
	}
	return -1
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is the directory where files will be saved.
	// Default: current working directory
	OutputDir string

	// OpenAfterExport opens the file in the default application.
	OpenAfterExport bool

	// IncludeMetadata includes a metadata header (title, model, dates).
	IncludeMetadata bool

	// Theme for HTML export ("light" or "dark").
	// Default: "dark"
	Theme string
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:       ".",
		IncludeMetadata: true,
		Theme:           "dark",
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ExportToFile exports a document to a file using the specified exporter.
// Returns the output file path or an error.
func ExportToFile(doc *Document, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exporter.Export(doc)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("chat_%s_%s%s",
		sanitizeFilename(doc.Title),
		doc.ExportedAt.Format("20060102_150405"),
		exporter.FileExtension(),
	)

	outputPath := filepath.Join(opts.OutputDir, filename)
	if err := util.AtomicWriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	if opts.OpenAfterExport {
		if err := openFile(outputPath); err != nil {
			// Non-fatal - file was still created successfully
			return outputPath, fmt.Errorf("exported but could not open: %w", err)
		}
	}

	return outputPath, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	s = util.TruncateRunes(strings.TrimSpace(s), 50)
	s = strings.TrimSuffix(s, util.Ellipsis)

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return "conversation"
	}
	return b.String()
}

// openFile opens a file in the default application for the OS.
func openFile(path string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", `""`, path)
	case "darwin":
		cmd = exec.Command("open", path)
	case "linux":
		cmd = exec.Command("xdg-open", path)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// roleLabel returns a display label for a role.
func roleLabel(role string) string {
	if role == "" {
		return "Unknown"
	}
	return model.Role(role).DisplayName()
}
