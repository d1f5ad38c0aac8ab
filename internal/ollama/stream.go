// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// maxLoggedLine bounds how much of a malformed line ends up in the log.
const maxLoggedLine = 200

// =============================================================================
// EVENTS
// =============================================================================

// Event is one item from a Stream. Exactly one of Delta, Done or Err is
// meaningful; Done and Err are terminal.
type Event struct {
	Delta string
	Done  bool
	Err   error

	// Stats is set on the Done event when the server sent final metadata.
	Stats *StreamStats
}

// =============================================================================
// STREAM
// =============================================================================

// Stream reads a newline-delimited JSON chat response in the background and
// delivers Events in receipt order. It is safe to call Cancel from any
// goroutine.
type Stream struct {
	events chan Event
	cancel context.CancelFunc
	ctx    context.Context
	body   io.ReadCloser
	logger *log.Logger
	stats  *StreamStats

	closeOnce sync.Once
}

// NewStream starts reading body. The stream ends when a done record
// arrives, the body is exhausted, a read fails, ctx is cancelled, or Cancel
// is called. A nil logger discards parse warnings.
func NewStream(ctx context.Context, body io.ReadCloser, logger *log.Logger) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	return newStream(ctx, cancel, body, logger)
}

func newStream(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser, logger *log.Logger) *Stream {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &Stream{
		events: make(chan Event),
		cancel: cancel,
		ctx:    ctx,
		body:   body,
		logger: logger,
		stats:  NewStreamStats(),
	}

	// Closing the body is what unblocks a pending read on cancellation.
	go func() {
		<-ctx.Done()
		s.closeBody()
	}()
	go s.run()

	return s
}

// Events returns the event channel. It is closed after the terminal event,
// or without one if the stream was cancelled.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Cancel stops the stream. No events are delivered once Cancel returns,
// other than one a receiver was already blocked on. Safe to call repeatedly.
func (s *Stream) Cancel() {
	s.cancel()
}

func (s *Stream) closeBody() {
	s.closeOnce.Do(func() {
		s.body.Close()
	})
}

// run is the reader loop. Each non-blank line is decoded on its own;
// malformed lines are logged and skipped.
func (s *Stream) run() {
	defer close(s.events)
	defer s.cancel()

	reader := bufio.NewReader(s.body)
	for {
		line, readErr := reader.ReadBytes('\n')

		if line = bytes.TrimSpace(line); len(line) > 0 {
			if terminal := s.handleLine(line); terminal {
				return
			}
		}

		if readErr != nil {
			if s.ctx.Err() != nil {
				return
			}
			if errors.Is(readErr, io.EOF) {
				// Server hung up without a done record; treat what we have
				// as the complete answer.
				s.stats.finish(nil)
				s.emit(Event{Done: true, Stats: s.stats})
				return
			}
			s.emit(Event{Err: &ClientError{
				Type:    ErrTypeConnection,
				Message: "stream read failed",
				Cause:   readErr,
			}})
			return
		}
	}
}

// handleLine processes one record and reports whether it ended the stream.
func (s *Stream) handleLine(line []byte) bool {
	var rec chatRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		s.logger.Warn("skipping malformed stream line", "err", err, "line", truncateLine(line))
		return false
	}

	if rec.Error != "" {
		s.emit(Event{Err: &ClientError{Type: ErrTypeInvalidResponse, Message: rec.Error}})
		return true
	}

	if delta := rec.delta(); delta != "" {
		s.stats.RecordFirstToken()
		if !s.emit(Event{Delta: delta}) {
			return true
		}
	}

	if rec.Done {
		s.stats.finish(&rec)
		s.emit(Event{Done: true, Stats: s.stats})
		return true
	}
	return false
}

// emit delivers ev unless the stream has been cancelled.
func (s *Stream) emit(ev Event) bool {
	if s.ctx.Err() != nil {
		return false
	}
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func truncateLine(line []byte) string {
	if len(line) > maxLoggedLine {
		return string(line[:maxLoggedLine]) + "..."
	}
	return string(line)
}

// =============================================================================
// STREAM STATISTICS
// =============================================================================

// StreamStats holds statistics collected during streaming.
type StreamStats struct {
	// Timing
	StartTime      time.Time
	FirstTokenTime time.Time
	EndTime        time.Time

	// Durations reported by Ollama
	TotalDuration time.Duration
	LoadDuration  time.Duration
	EvalDuration  time.Duration

	// Token counts
	PromptTokens     int
	CompletionTokens int

	// Computed
	TTFT            time.Duration // Time to first token
	TokensPerSecond float64
	Model           string
	DoneReason      string
}

// NewStreamStats creates a new StreamStats with start time set.
func NewStreamStats() *StreamStats {
	return &StreamStats{
		StartTime: time.Now(),
	}
}

// RecordFirstToken marks the time of first token arrival.
func (s *StreamStats) RecordFirstToken() {
	if s.FirstTokenTime.IsZero() {
		s.FirstTokenTime = time.Now()
		s.TTFT = s.FirstTokenTime.Sub(s.StartTime)
	}
}

// finish copies the final record's metadata. rec may be nil when the stream
// ended without one.
func (s *StreamStats) finish(rec *chatRecord) {
	s.EndTime = time.Now()
	if rec == nil {
		return
	}
	s.Model = rec.Model
	s.DoneReason = rec.DoneReason
	s.TotalDuration = time.Duration(rec.TotalDuration)
	s.LoadDuration = time.Duration(rec.LoadDuration)
	s.EvalDuration = time.Duration(rec.EvalDuration)
	s.PromptTokens = rec.PromptEvalCount
	s.CompletionTokens = rec.EvalCount

	if s.EvalDuration > 0 {
		s.TokensPerSecond = float64(s.CompletionTokens) / s.EvalDuration.Seconds()
	}
}

// Format returns a one-line summary for status bars.
func (s *StreamStats) Format() string {
	total := s.TotalDuration
	if total == 0 && !s.EndTime.IsZero() {
		total = s.EndTime.Sub(s.StartTime)
	}
	return fmt.Sprintf("%s | %d tokens | %.1f tok/s | TTFT %dms",
		total.Round(time.Millisecond), s.CompletionTokens, s.TokensPerSecond, s.TTFT.Milliseconds())
}
