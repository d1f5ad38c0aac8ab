// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/ollamachat/internal/util"
)

const (
	// DefaultTitle is used when no title can be derived or a rename is blank.
	DefaultTitle = "New Chat"

	// TitleMaxRunes is how much of the first prompt becomes the title.
	TitleMaxRunes = 40
)

// Errors returned by conversation mutations.
var (
	ErrNoProvisional    = errors.New("no provisional assistant message")
	ErrProvisionalOpen  = errors.New("conversation already has a provisional message")
	ErrInvalidRole      = errors.New("invalid message role")
	ErrNilMessage       = errors.New("nil message in conversation")
	ErrMisplacedPending = errors.New("provisional message is not last")
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a chat conversation and its ordered history.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	CreatedAt time.Time  `json:"createdAt"`

	// Committed is set once the conversation has been persisted after a
	// completed turn. Uncommitted conversations never reach the store.
	Committed bool `json:"-"`
}

// NewConversation creates an empty, uncommitted conversation whose title is
// derived from the first prompt and its attachments.
func NewConversation(prompt string, files []Attachment) *Conversation {
	return &Conversation{
		ID:        uuid.NewString(),
		Title:     DeriveTitle(prompt, files),
		Messages:  make([]*Message, 0, 2),
		CreatedAt: time.Now(),
	}
}

// DeriveTitle builds a sidebar title from a prompt: whitespace collapsed,
// cut at TitleMaxRunes with an ellipsis. A blank prompt falls back to the
// first attachment name, then DefaultTitle.
func DeriveTitle(prompt string, files []Attachment) string {
	title := util.CollapseSpace(norm.NFC.String(prompt))
	if title == "" && len(files) > 0 {
		title = util.CollapseSpace(norm.NFC.String(files[0].Name))
	}
	if title == "" {
		return DefaultTitle
	}
	return util.TruncateRunes(title, TitleMaxRunes)
}

// NormalizeTitle returns the title to store for a rename request.
func NormalizeTitle(title string) string {
	title = strings.TrimSpace(norm.NFC.String(title))
	if title == "" {
		return DefaultTitle
	}
	return title
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Last returns the most recent message, or nil if empty.
func (c *Conversation) Last() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// HasProvisional returns true while a turn is writing into this conversation.
func (c *Conversation) HasProvisional() bool {
	last := c.Last()
	return last != nil && last.IsProvisional()
}

// AppendUser appends a committed user message.
func (c *Conversation) AppendUser(content string, files []Attachment) (*Message, error) {
	if c.HasProvisional() {
		return nil, ErrProvisionalOpen
	}
	msg := NewUserMessage(content, files)
	c.Messages = append(c.Messages, msg)
	return msg, nil
}

// AppendProvisional appends the empty assistant placeholder for a turn.
func (c *Conversation) AppendProvisional() (*Message, error) {
	if c.HasProvisional() {
		return nil, ErrProvisionalOpen
	}
	msg := NewProvisionalMessage()
	c.Messages = append(c.Messages, msg)
	return msg, nil
}

// ApplyDelta extends the trailing provisional message with delta.
func (c *Conversation) ApplyDelta(delta string) error {
	if !c.HasProvisional() {
		return ErrNoProvisional
	}
	c.Last().Content += delta
	return nil
}

// CommitLast finalizes the trailing provisional message.
func (c *Conversation) CommitLast() error {
	if !c.HasProvisional() {
		return ErrNoProvisional
	}
	c.Last().State = StateCommitted
	return nil
}

// FailLast replaces the trailing provisional message's content with text and
// tags it failed. The message stays in the transcript.
func (c *Conversation) FailLast(text string) error {
	if !c.HasProvisional() {
		return ErrNoProvisional
	}
	last := c.Last()
	last.Content = text
	last.State = StateFailed
	return nil
}

// RollbackLast removes the trailing provisional message. It returns false
// when the last message is not provisional; committed history is never
// removed.
func (c *Conversation) RollbackLast() bool {
	if !c.HasProvisional() {
		return false
	}
	c.Messages[len(c.Messages)-1] = nil
	c.Messages = c.Messages[:len(c.Messages)-1]
	return true
}

// History returns the messages that form the outbound request context:
// everything except provisional and failed messages.
func (c *Conversation) History() []*Message {
	out := make([]*Message, 0, len(c.Messages))
	for _, msg := range c.Messages {
		if msg.IsProvisional() || msg.IsFailed() {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// Persistable returns the messages that belong in the store. Provisional
// messages are always left out; failed ones only when includeFailed is set.
func (c *Conversation) Persistable(includeFailed bool) []*Message {
	out := make([]*Message, 0, len(c.Messages))
	for _, msg := range c.Messages {
		if msg.IsProvisional() || (msg.IsFailed() && !includeFailed) {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// INVARIANTS
// =============================================================================

// Validate checks the structural invariants: no nil entries, only user and
// assistant roles, and at most one provisional message which must be last.
func (c *Conversation) Validate() error {
	for i, msg := range c.Messages {
		if msg == nil {
			return fmt.Errorf("message %d: %w", i, ErrNilMessage)
		}
		if !msg.Role.Valid() {
			return fmt.Errorf("message %d (%q): %w", i, msg.Role, ErrInvalidRole)
		}
		if msg.IsProvisional() {
			if i != len(c.Messages)-1 {
				return fmt.Errorf("message %d: %w", i, ErrMisplacedPending)
			}
			if msg.Role != RoleAssistant {
				return fmt.Errorf("message %d: provisional %s message: %w", i, msg.Role, ErrInvalidRole)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = make([]*Message, len(c.Messages))
	for i, msg := range c.Messages {
		clone.Messages[i] = msg.Clone()
	}
	return &clone
}
