// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bodyOf(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

func TestStream_SkipsMalformedLines(t *testing.T) {
	var logBuf bytes.Buffer
	logger := log.New(&logBuf)

	input := strings.Join([]string{
		`{"message":{"content":"Hi"}}`,
		``,
		`not json at all`,
		`{"message":{"content":" there"}}`,
		`{"done":true}`,
		`{"message":{"content":"after done"}}`,
	}, "\n")

	text, last := collect(t, NewStream(context.Background(), bodyOf(input), logger))

	assert.Equal(t, "Hi there", text)
	assert.True(t, last.Done)
	assert.NoError(t, last.Err)
	assert.Contains(t, logBuf.String(), "skipping malformed stream line")
}

func TestStream_RecordWithoutContentIsNotDelta(t *testing.T) {
	input := `{"message":{"role":"assistant"}}` + "\n" +
		`{"model":"m"}` + "\n" +
		`{"message":{"content":"x"},"done":true}`

	var deltas []string
	s := NewStream(context.Background(), bodyOf(input), nil)
	for ev := range s.Events() {
		if ev.Delta != "" {
			deltas = append(deltas, ev.Delta)
		}
	}
	assert.Equal(t, []string{"x"}, deltas)
}

func TestStream_EOFWithoutDoneCompletes(t *testing.T) {
	text, last := collect(t, NewStream(context.Background(), bodyOf(`{"message":{"content":"partial"}}`), nil))
	assert.Equal(t, "partial", text)
	assert.True(t, last.Done)
}

func TestStream_ErrorRecord(t *testing.T) {
	input := `{"message":{"content":"a"}}` + "\n" + `{"error":"model ran out of memory"}` + "\n"
	_, last := collect(t, NewStream(context.Background(), bodyOf(input), nil))

	require.Error(t, last.Err)
	assert.Contains(t, last.Err.Error(), "out of memory")
	assert.False(t, last.Done)
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestStream_ReadErrorIsTerminal(t *testing.T) {
	body := io.NopCloser(io.MultiReader(
		strings.NewReader(`{"message":{"content":"a"}}`+"\n"),
		failingReader{err: io.ErrUnexpectedEOF},
	))
	text, last := collect(t, NewStream(context.Background(), body, nil))

	assert.Equal(t, "a", text)
	require.Error(t, last.Err)
	assert.ErrorIs(t, last.Err, io.ErrUnexpectedEOF)
}

func TestStream_CancelOverPipe(t *testing.T) {
	pr, pw := io.Pipe()
	s := NewStream(context.Background(), pr, nil)

	go func() {
		io.WriteString(pw, `{"message":{"content":"one"}}`+"\n")
	}()

	ev := <-s.Events()
	assert.Equal(t, "one", ev.Delta)

	s.Cancel()

	select {
	case _, ok := <-s.Events():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("stream not closed after Cancel")
	}

	// The reader side is closed, so further writes fail instead of blocking.
	_, err := io.WriteString(pw, `{"message":{"content":"two"}}`+"\n")
	assert.Error(t, err)
}

func TestStream_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pr, _ := io.Pipe()
	s := NewStream(ctx, pr, nil)

	cancel()

	select {
	case _, ok := <-s.Events():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("stream not closed after context cancel")
	}
}

func TestStreamStats_Format(t *testing.T) {
	stats := NewStreamStats()
	stats.finish(&chatRecord{TotalDuration: int64(1500 * time.Millisecond), EvalCount: 30, EvalDuration: int64(time.Second)})

	out := stats.Format()
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "30 tokens")
	assert.Contains(t, out, "30.0 tok/s")
}
