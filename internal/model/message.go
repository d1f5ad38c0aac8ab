// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// RoleSystem is never stored in a conversation; it is reserved for
	// request builders that prepend instructions.
	RoleSystem Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Valid reports whether r may appear in a stored conversation.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// MESSAGE STATE
// =============================================================================

// MessageState tags where a message is in its lifecycle.
type MessageState string

const (
	// StateCommitted is the resting state of every finished message.
	StateCommitted MessageState = "committed"

	// StateProvisional marks the trailing assistant message of an
	// in-flight turn. Its content grows as deltas arrive.
	StateProvisional MessageState = "provisional"

	// StateFailed marks an assistant message whose turn ended in error.
	// Its content is the apology shown to the user.
	StateFailed MessageState = "failed"
)

// =============================================================================
// ATTACHMENT TYPE
// =============================================================================

// AttachmentKind is the coarse type of an attached file.
type AttachmentKind string

const (
	KindImage AttachmentKind = "image"
	KindText  AttachmentKind = "text"
	KindPDF   AttachmentKind = "pdf"
	KindDocx  AttachmentKind = "docx"
)

// Attachment references a file the user attached to a prompt.
// Only the reference is stored; content is resolved at send time.
type Attachment struct {
	Path string         `json:"path"`
	Name string         `json:"name"`
	Kind AttachmentKind `json:"kind,omitempty"`
}

// IsImage returns true if the attachment is sent as an image payload.
func (a Attachment) IsImage() bool {
	return a.Kind == KindImage
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	Role    Role         `json:"role"`
	Content string       `json:"content"`
	Files   []Attachment `json:"files,omitempty"`

	// Lifecycle tag, not persisted.
	State MessageState `json:"-"`
}

// NewUserMessage creates a committed user message. The attachment slice is
// copied so later changes by the caller do not leak in.
func NewUserMessage(content string, files []Attachment) *Message {
	msg := &Message{
		Role:    RoleUser,
		Content: content,
		State:   StateCommitted,
	}
	if len(files) > 0 {
		msg.Files = append([]Attachment(nil), files...)
	}
	return msg
}

// NewProvisionalMessage creates an empty assistant message awaiting deltas.
func NewProvisionalMessage() *Message {
	return &Message{
		Role:  RoleAssistant,
		State: StateProvisional,
	}
}

// IsProvisional returns true while the message is still being streamed.
func (m *Message) IsProvisional() bool {
	return m.State == StateProvisional
}

// IsFailed returns true if the message carries a turn failure apology.
func (m *Message) IsFailed() bool {
	return m.State == StateFailed
}

// HasFiles returns true if the message carries attachments.
func (m *Message) HasFiles() bool {
	return len(m.Files) > 0
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	if m.Files != nil {
		c.Files = append([]Attachment(nil), m.Files...)
	}
	return &c
}
