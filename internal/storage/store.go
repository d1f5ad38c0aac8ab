// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/ollamachat/internal/model"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// File names inside the data directory.
const (
	JSONFileName   = "chats.json"
	SQLiteFileName = "chats.db"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store persists the full, ordered set of conversations.
type Store interface {
	// Load returns every stored conversation in stored order. A store with
	// no data yet returns an empty list.
	Load() ([]*model.Conversation, error)

	// Save replaces the stored collection with convs.
	Save(convs []*model.Conversation) error

	// Delete removes one conversation.
	Delete(id string) error

	// Close releases backend resources.
	Close() error
}

// Config selects and locates a backend.
type Config struct {
	Backend string // "json" (default) or "sqlite"
	DataDir string
}

// Open creates the configured store.
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendJSON:
		return NewJSONStore(filepath.Join(cfg.DataDir, JSONFileName)), nil
	case BackendSQLite:
		return OpenSQLite(filepath.Join(cfg.DataDir, SQLiteFileName))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// =============================================================================
// RECORDS
// =============================================================================

// recordID accepts both string ids and the numeric timestamp ids written by
// older desktop versions of chats.json.
type recordID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *recordID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = recordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("conversation id: %w", err)
	}
	*id = recordID(n.String())
	return nil
}

// record is the persisted shape of a conversation.
type record struct {
	ID        recordID        `json:"id"`
	Title     string          `json:"title"`
	Messages  []messageRecord `json:"messages"`
	CreatedAt time.Time       `json:"createdAt"`
}

// messageRecord is the persisted shape of a message.
type messageRecord struct {
	Role    string             `json:"role"`
	Content string             `json:"content"`
	Files   []model.Attachment `json:"files,omitempty"`
	Failed  bool               `json:"failed,omitempty"`
}

// toRecord converts a conversation for storage. Provisional messages never
// reach disk.
func toRecord(c *model.Conversation) record {
	rec := record{
		ID:        recordID(c.ID),
		Title:     c.Title,
		Messages:  make([]messageRecord, 0, len(c.Messages)),
		CreatedAt: c.CreatedAt,
	}
	for _, msg := range c.Messages {
		if msg == nil || msg.IsProvisional() {
			continue
		}
		rec.Messages = append(rec.Messages, messageRecord{
			Role:    string(msg.Role),
			Content: msg.Content,
			Files:   msg.Files,
			Failed:  msg.IsFailed(),
		})
	}
	return rec
}

// fromRecord rebuilds a committed conversation.
func fromRecord(rec record) *model.Conversation {
	conv := &model.Conversation{
		ID:        string(rec.ID),
		Title:     rec.Title,
		Messages:  make([]*model.Message, 0, len(rec.Messages)),
		CreatedAt: rec.CreatedAt,
		Committed: true,
	}
	if conv.Title == "" {
		conv.Title = model.DefaultTitle
	}
	for _, m := range rec.Messages {
		msg := &model.Message{
			Role:    model.Role(m.Role),
			Content: m.Content,
			State:   model.StateCommitted,
		}
		if m.Failed {
			msg.State = model.StateFailed
		}
		if len(m.Files) > 0 {
			msg.Files = m.Files
		}
		conv.Messages = append(conv.Messages, msg)
	}
	return conv
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a conversation doesn't exist.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

// ConversationError represents a conversation-related error.
type ConversationError struct {
	Message string
	ID      string
}

// Error implements the error interface.
func (e *ConversationError) Error() string {
	if e.ID != "" {
		return e.Message + ": " + e.ID
	}
	return e.Message
}

// Is implements errors.Is support for comparing conversation errors.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

func notFound(id string) error {
	return &ConversationError{Message: ErrConversationNotFound.Message, ID: id}
}
