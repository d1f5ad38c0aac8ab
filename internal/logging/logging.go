// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/ollamachat/internal/config"
)

// Options controls logger construction.
type Options struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string

	// File receives log output when set. Parent directories are created.
	File string

	// Writer is used when File is empty. Nil discards output.
	Writer io.Writer
}

// Logger wraps a *log.Logger with the file it writes to, if any.
type Logger struct {
	*log.Logger
	file *os.File
}

// New builds a logger. Close must be called to release a log file.
func New(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var (
		w    io.Writer = io.Discard
		file *os.File
	)
	switch {
	case opts.File != "":
		if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err = os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = file
	case opts.Writer != nil:
		w = opts.Writer
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          "ollamachat",
	})
	if file != nil {
		// Plain logfmt in files; no ANSI styling.
		logger.SetFormatter(log.LogfmtFormatter)
	}

	return &Logger{Logger: logger, file: file}, nil
}

// FromConfig builds the logger for a run. toFile selects the configured
// log file; otherwise output goes to w.
func FromConfig(cfg *config.Config, toFile bool, w io.Writer) (*Logger, error) {
	opts := Options{Level: cfg.Log.Level, Writer: w}
	if toFile {
		opts.File = cfg.LogFile()
	}
	return New(opts)
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Apply updates the level from a reloaded config.
func (l *Logger) Apply(cfg *config.Config) {
	if level, err := ParseLevel(cfg.Log.Level); err == nil {
		l.SetLevel(level)
	}
}

// ParseLevel maps a config level name to a log.Level.
func ParseLevel(s string) (log.Level, error) {
	if strings.TrimSpace(s) == "" {
		return log.InfoLevel, nil
	}
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return log.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// Component returns a child logger tagged with the component name.
func Component(l *log.Logger, name string) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l.With("component", name)
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
