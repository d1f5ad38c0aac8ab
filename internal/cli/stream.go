// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/ollamachat/internal/model"
	"github.com/jeranaias/ollamachat/internal/session"
	"github.com/jeranaias/ollamachat/internal/ui/styles"
)

// ErrReplyStopped is returned when the user interrupts a reply.
var ErrReplyStopped = errors.New("reply stopped")

// =============================================================================
// STREAMING
// =============================================================================

// turnResult is the outcome of one prompt.
type turnResult struct {
	Reply  *model.Message
	Conv   *model.Conversation
	Err    error
	Status string
}

// sendPrompt submits prompt and writes the reply to w as it grows. When ctx
// ends first the turn is canceled and ErrReplyStopped returned.
func sendPrompt(ctx context.Context, ctrl *session.Controller, prompt string, files []model.Attachment, w io.Writer) (*turnResult, error) {
	base := 0
	if conv := ctrl.Snapshot().Active(); conv != nil {
		base = len(conv.Messages)
	}
	if err := ctrl.SubmitPrompt(prompt, files); err != nil {
		return nil, err
	}
	activeID := ctrl.Snapshot().ActiveID

	snaps, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	// The reply follows the user message appended at base.
	replyIndex := base + 1
	printed := 0
	for {
		select {
		case <-ctx.Done():
			ctrl.CancelActiveTurn()
			return &turnResult{Err: ErrReplyStopped}, ErrReplyStopped

		case snap, ok := <-snaps:
			if !ok {
				return nil, ErrReplyStopped
			}
			conv := findConversation(snap.Conversations, activeID)
			var reply *model.Message
			if conv != nil && replyIndex < len(conv.Messages) {
				reply = conv.Messages[replyIndex]
			}
			if reply != nil && !reply.IsFailed() && len(reply.Content) > printed && w != nil {
				io.WriteString(w, reply.Content[printed:])
				printed = len(reply.Content)
			}
			if snap.Loading() {
				continue
			}

			res := &turnResult{Reply: reply, Conv: conv, Err: snap.LastError}
			if snap.Stats != nil && res.Err == nil {
				res.Status = snap.Stats.Format()
			}
			if reply == nil {
				return res, ErrReplyStopped
			}
			return res, nil
		}
	}
}

func findConversation(convs []*model.Conversation, id string) *model.Conversation {
	for _, c := range convs {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// =============================================================================
// CONVERSATION REFERENCES
// =============================================================================

// resolveConversation finds a conversation by its 1-based list number or a
// unique id prefix.
func resolveConversation(convs []*model.Conversation, ref string) (*model.Conversation, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("conversation number or id required")
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(convs) {
			return nil, fmt.Errorf("no conversation #%d (have %d)", n, len(convs))
		}
		return convs[n-1], nil
	}

	var match *model.Conversation
	for _, c := range convs {
		if strings.HasPrefix(c.ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("id prefix %q is ambiguous", ref)
			}
			match = c
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", session.ErrUnknownConversation, ref)
	}
	return match, nil
}

// =============================================================================
// RENDERING
// =============================================================================

// renderMarkdown renders text for a terminal with the configured theme.
// It returns text unchanged when rendering fails.
func renderMarkdown(text, themeMode string, width int) string {
	theme := styles.NewTheme(themeMode)
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(theme.GlamourStyle()),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

// writeTranscript prints a conversation with role labels.
func writeTranscript(w io.Writer, conv *model.Conversation, render func(string) string) {
	fmt.Fprintln(w, TitleStyle.Render(conv.Title))
	for _, msg := range conv.Messages {
		fmt.Fprintln(w)
		label := AssistantStyle
		if msg.Role == model.RoleUser {
			label = UserStyle
		}
		fmt.Fprintln(w, label.Render(msg.Role.DisplayName()))
		for _, f := range msg.Files {
			fmt.Fprintln(w, DimStyle.Render("+ "+f.Name))
		}
		if msg.Role == model.RoleAssistant && render != nil {
			fmt.Fprintln(w, render(msg.Content))
			continue
		}
		fmt.Fprintln(w, msg.Content)
	}
}
