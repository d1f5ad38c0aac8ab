// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

const (
	// SchemaVersion tracks the database schema version for migrations
	SchemaVersion = 2
)

// Schema is the SQLite layout. Positions preserve list and message order.
const Schema = `
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    title TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_position ON conversations(position);

CREATE TABLE IF NOT EXISTS messages (
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    failed INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (conversation_id, position)
);

CREATE TABLE IF NOT EXISTS attachments (
    conversation_id TEXT NOT NULL,
    message_position INTEGER NOT NULL,
    position INTEGER NOT NULL,
    path TEXT NOT NULL,
    name TEXT NOT NULL,
    kind TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (conversation_id, message_position, position),
    FOREIGN KEY (conversation_id, message_position)
        REFERENCES messages(conversation_id, position) ON DELETE CASCADE
);
`

// InitMetadata seeds the schema version.
const InitMetadata = `
INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '2');
`

// migrations upgrade a database from the version in the key to the next.
var migrations = map[int]string{
	1: `ALTER TABLE messages ADD COLUMN failed INTEGER NOT NULL DEFAULT 0;`,
}
