// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/ollamachat/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnsupported is returned for file types that cannot be attached.
	ErrUnsupported = errors.New("unsupported file type")

	// ErrFileTooLarge is returned when a file exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrIsDirectory is returned when a directory is attached.
	ErrIsDirectory = errors.New("path is a directory")
)

// DefaultMaxFileSize is the largest file read by default (25MB).
const DefaultMaxFileSize = 25 * 1024 * 1024

// extensionKinds maps the extensions handled without MIME lookup.
var extensionKinds = map[string]model.AttachmentKind{
	".jpg":  model.KindImage,
	".jpeg": model.KindImage,
	".png":  model.KindImage,
	".gif":  model.KindImage,
	".webp": model.KindImage,
	".pdf":  model.KindPDF,
	".txt":  model.KindText,
	".md":   model.KindText,
	".docx": model.KindDocx,
}

// KindOf classifies a path by extension, falling back to the MIME table for
// image/* and text/* types.
func KindOf(path string) (model.AttachmentKind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if kind, ok := extensionKinds[ext]; ok {
		return kind, true
	}
	if ext == "" {
		return "", false
	}

	mimeType := mime.TypeByExtension(ext)
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return model.KindImage, true
	case strings.HasPrefix(mimeType, "text/"):
		return model.KindText, true
	}
	return "", false
}

// Inspect builds an attachment reference for path. The file must exist and
// be of a supported type; its content is not read.
func Inspect(path string) (model.Attachment, error) {
	kind, ok := KindOf(path)
	if !ok {
		return model.Attachment{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupported)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return model.Attachment{}, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return model.Attachment{}, err
	}
	if info.IsDir() {
		return model.Attachment{}, fmt.Errorf("%s: %w", path, ErrIsDirectory)
	}

	return model.Attachment{
		Path: abs,
		Name: filepath.Base(abs),
		Kind: kind,
	}, nil
}

// =============================================================================
// ADAPTER
// =============================================================================

// Resolved is the content produced from a list of attachments.
type Resolved struct {
	// TextBlocks are labelled text extracts in attachment order.
	TextBlocks []string

	// Images are base64 payloads in attachment order.
	Images []string
}

// Empty returns true if nothing was resolved.
func (r Resolved) Empty() bool {
	return len(r.TextBlocks) == 0 && len(r.Images) == 0
}

// Config holds adapter settings.
type Config struct {
	// MaxFileSize caps how much of any one file is read (default: 25MB).
	MaxFileSize int64

	// Logger receives skip warnings. Nil discards them.
	Logger *log.Logger
}

// Adapter resolves attachment references to content.
type Adapter struct {
	maxSize int64
	logger  *log.Logger
}

// New creates an Adapter.
func New(cfg Config) *Adapter {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	return &Adapter{
		maxSize: cfg.MaxFileSize,
		logger:  cfg.Logger,
	}
}

// Resolve reads every reference. Failures are logged and the file is
// skipped; neither list gains an entry for it.
func (a *Adapter) Resolve(ctx context.Context, refs []model.Attachment) Resolved {
	var out Resolved
	for _, ref := range refs {
		if ctx.Err() != nil {
			return out
		}

		name := ref.Name
		if name == "" {
			name = filepath.Base(ref.Path)
		}

		if ref.Kind == "" {
			k, ok := KindOf(ref.Path)
			if !ok {
				a.logger.Warn("skipping attachment", "file", name, "err", ErrUnsupported)
				continue
			}
			ref.Kind = k
		}
		kind := ref.Kind

		if ref.IsImage() {
			data, err := a.readFile(ref.Path)
			if err != nil {
				a.logger.Warn("skipping attachment", "file", name, "err", err)
				continue
			}
			out.Images = append(out.Images, base64.StdEncoding.EncodeToString(data))
			continue
		}

		text, err := a.extractText(ref.Path, kind)
		if err != nil {
			a.logger.Warn("skipping attachment", "file", name, "err", err)
			continue
		}
		out.TextBlocks = append(out.TextBlocks, Label(name, text))
	}
	return out
}

func (a *Adapter) extractText(path string, kind model.AttachmentKind) (string, error) {
	if err := a.checkSize(path); err != nil {
		return "", err
	}

	switch kind {
	case model.KindText:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case model.KindPDF:
		return extractPDF(path)
	case model.KindDocx:
		return extractDocx(path)
	default:
		return "", fmt.Errorf("%s: %w", kind, ErrUnsupported)
	}
}

func (a *Adapter) readFile(path string) ([]byte, error) {
	if err := a.checkSize(path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (a *Adapter) checkSize(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return ErrIsDirectory
	}
	if info.Size() > a.maxSize {
		return ErrFileTooLarge
	}
	return nil
}

// =============================================================================
// CONTENT FOLDING
// =============================================================================

// Label prefixes extracted text with the file it came from.
func Label(name, content string) string {
	return "--- File: " + name + " ---\n" + content
}

// FoldContent builds the transmitted text of a message: text blocks first,
// separated by blank lines, then the typed prompt.
func FoldContent(prompt string, r Resolved) string {
	if len(r.TextBlocks) == 0 {
		return prompt
	}
	parts := append([]string(nil), r.TextBlocks...)
	if prompt != "" {
		parts = append(parts, prompt)
	}
	return strings.Join(parts, "\n\n")
}
