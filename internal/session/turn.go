// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jeranaias/ollamachat/internal/ingest"
	"github.com/jeranaias/ollamachat/internal/model"
	"github.com/jeranaias/ollamachat/internal/ollama"
)

// turn is one request/response cycle. Every mutation it makes checks that
// it is still the controller's active turn.
type turn struct {
	id     uint64
	conv   *model.Conversation
	model  string
	ctx    context.Context
	cancel context.CancelFunc
	stream *ollama.Stream

	// stalled is set when the stall watchdog canceled the turn.
	stalled atomic.Bool
}

// stop cancels the request and stops stream consumption.
func (t *turn) stop() {
	t.cancel()
	if t.stream != nil {
		t.stream.Cancel()
	}
}

// =============================================================================
// TURN LOOP
// =============================================================================

func (c *Controller) runTurn(t *turn, history []*model.Message) {
	msgs := c.buildRequest(t.ctx, history)

	if c.inference == nil {
		c.failTurn(t, ErrNoModel)
		return
	}

	watchdog := time.AfterFunc(c.stallTimeout, func() {
		t.stalled.Store(true)
		t.cancel()
	})
	defer watchdog.Stop()

	stream, err := c.inference.StartChat(t.ctx, t.model, msgs)
	if err != nil {
		if t.stalled.Load() {
			err = c.stallError(err)
		}
		c.failTurn(t, err)
		return
	}
	if !c.attach(t, stream) {
		stream.Cancel()
		return
	}

	for ev := range stream.Events() {
		watchdog.Reset(c.stallTimeout)
		switch {
		case ev.Err != nil:
			c.failTurn(t, ev.Err)
			return
		case ev.Done:
			c.commitTurn(t, ev.Stats)
			return
		default:
			c.applyDelta(t, ev.Delta)
		}
	}

	// The stream closed without a terminal event: it was canceled.
	if t.stalled.Load() {
		c.failTurn(t, c.stallError(t.ctx.Err()))
		return
	}
	if errors.Is(t.ctx.Err(), context.DeadlineExceeded) {
		c.failTurn(t, &ollama.ClientError{
			Type:    ollama.ErrTypeTimeout,
			Message: "turn timed out",
			Cause:   t.ctx.Err(),
		})
	}
}

func (c *Controller) stallError(cause error) error {
	return &ollama.ClientError{
		Type:    ollama.ErrTypeTimeout,
		Message: "no response for " + c.stallTimeout.String(),
		Cause:   cause,
	}
}

// buildRequest converts history to wire messages. Attachments are resolved
// on every turn and folded into the transmitted content only; display
// content is untouched.
func (c *Controller) buildRequest(ctx context.Context, history []*model.Message) []ollama.Message {
	out := make([]ollama.Message, 0, len(history))
	for _, msg := range history {
		wire := ollama.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		if msg.HasFiles() {
			resolved := c.ingest.Resolve(ctx, msg.Files)
			wire.Content = ingest.FoldContent(msg.Content, resolved)
			if len(resolved.Images) > 0 {
				wire.Images = resolved.Images
			}
		}
		out = append(out, wire)
	}
	return out
}

// attach records the stream on t and enters Streaming.
func (c *Controller) attach(t *turn, stream *ollama.Stream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.turn != t {
		return false
	}
	t.stream = stream
	c.state = StateStreaming
	c.publishLocked()
	return true
}

func (c *Controller) applyDelta(t *turn, delta string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.turn != t {
		return
	}
	if err := t.conv.ApplyDelta(delta); err != nil {
		c.logger.Error("dropping delta", "turn", t.id, "err", err)
		return
	}
	c.publishLocked()
}

// commitTurn finalizes the reply and saves the full committed set once.
func (c *Controller) commitTurn(t *turn, stats *ollama.StreamStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.turn != t {
		return
	}
	c.state = StateCommitting
	c.publishLocked()

	if err := t.conv.CommitLast(); err != nil {
		c.logger.Error("commit without provisional reply", "turn", t.id, "err", err)
	}
	t.conv.Committed = true
	c.stats = stats
	c.saveLocked()

	if stats != nil {
		c.logger.Debug("turn completed", "turn", t.id, "stats", stats.Format())
	} else {
		c.logger.Debug("turn completed", "turn", t.id)
	}
	c.finishLocked(t)
}

// failTurn replaces the provisional reply with ApologyText.
func (c *Controller) failTurn(t *turn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.turn != t {
		return
	}
	c.state = StateFailed
	c.lastErr = err
	c.logger.Warn("turn failed", "turn", t.id, "conversation", t.conv.ID, "err", err)

	if ferr := t.conv.FailLast(ApologyText); ferr != nil {
		c.logger.Error("fail without provisional reply", "turn", t.id, "err", ferr)
	}
	c.publishLocked()

	if c.persistFailed {
		t.conv.Committed = true
		c.saveLocked()
	}
	c.finishLocked(t)
}
