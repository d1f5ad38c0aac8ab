// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ollamachat/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    log.Level
		wantErr bool
	}{
		{"", log.InfoLevel, false},
		{"debug", log.DebugLevel, false},
		{"WARN", log.WarnLevel, false},
		{" error ", log.ErrorLevel, false},
		{"loud", log.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNew_Writer(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "warn", Writer: &buf})
	require.NoError(t, err)
	defer l.Close()

	l.Info("hidden")
	l.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chat.log")
	l, err := New(Options{Level: "debug", File: path})
	require.NoError(t, err)

	Component(l.Logger, "session").Debug("turn started", "model", "llama3.2")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.Contains(t, line, "component=session")
	assert.Contains(t, line, "model=llama3.2")
	assert.False(t, strings.Contains(line, "\x1b["), "file output should not be styled")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Options{Level: "chatty"})
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "error", Writer: &buf})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Log.Level = "debug"
	l.Apply(cfg)

	l.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()

	l, err := FromConfig(cfg, true, nil)
	require.NoError(t, err)
	l.Info("hello")
	require.NoError(t, l.Close())

	_, err = os.Stat(cfg.LogFile())
	assert.NoError(t, err)
}

func TestComponent_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		Component(nil, "x").Info("dropped")
	})
}
