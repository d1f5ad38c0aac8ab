// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/ollamachat/internal/model"
)

// SQLiteStore keeps conversations in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite has a single writer and the pragmas below are
	// per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// migrate applies pending migrations and records the new schema version.
func migrate(db *sql.DB) error {
	var raw string
	if err := db.QueryRow(`SELECT value FROM metadata WHERE key = 'schema_version'`).Scan(&raw); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid schema version %q: %w", raw, err)
	}
	for ; version < SchemaVersion; version++ {
		if _, err := db.Exec(migrations[version]); err != nil {
			return fmt.Errorf("migrate schema from v%d: %w", version, err)
		}
		if _, err := db.Exec(`UPDATE metadata SET value = ? WHERE key = 'schema_version'`,
			strconv.Itoa(version+1)); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}
	return nil
}

// Path returns the database file.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Load reads every conversation in list order.
func (s *SQLiteStore) Load() ([]*model.Conversation, error) {
	rows, err := s.db.Query(`SELECT id, title, created_at FROM conversations ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}

	var records []record
	index := make(map[string]int)
	for rows.Next() {
		var rec record
		var id, created string
		if err := rows.Scan(&id, &rec.Title, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		rec.ID = recordID(id)
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		index[id] = len(records)
		records = append(records, rec)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	if err := s.loadMessages(records, index); err != nil {
		return nil, err
	}

	convs := make([]*model.Conversation, 0, len(records))
	for _, rec := range records {
		convs = append(convs, fromRecord(rec))
	}
	return convs, nil
}

func (s *SQLiteStore) loadMessages(records []record, index map[string]int) error {
	rows, err := s.db.Query(`SELECT conversation_id, role, content, failed FROM messages ORDER BY conversation_id, position`)
	if err != nil {
		return fmt.Errorf("query messages: %w", err)
	}
	for rows.Next() {
		var convID string
		var msg messageRecord
		if err := rows.Scan(&convID, &msg.Role, &msg.Content, &msg.Failed); err != nil {
			rows.Close()
			return fmt.Errorf("scan message: %w", err)
		}
		if i, ok := index[convID]; ok {
			records[i].Messages = append(records[i].Messages, msg)
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = s.db.Query(`SELECT conversation_id, message_position, path, name, kind
		FROM attachments ORDER BY conversation_id, message_position, position`)
	if err != nil {
		return fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var convID string
		var msgPos int
		var att model.Attachment
		var kind string
		if err := rows.Scan(&convID, &msgPos, &att.Path, &att.Name, &kind); err != nil {
			return fmt.Errorf("scan attachment: %w", err)
		}
		att.Kind = model.AttachmentKind(kind)

		i, ok := index[convID]
		if !ok || msgPos < 0 || msgPos >= len(records[i].Messages) {
			continue
		}
		msgs := records[i].Messages
		msgs[msgPos].Files = append(msgs[msgPos].Files, att)
	}
	return rows.Err()
}

// Save replaces the stored collection in one transaction.
func (s *SQLiteStore) Save(convs []*model.Conversation) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// Cascades to messages and attachments.
	if _, err = tx.Exec(`DELETE FROM conversations`); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}

	convStmt, err := tx.Prepare(`INSERT INTO conversations (id, position, title, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer convStmt.Close()

	msgStmt, err := tx.Prepare(`INSERT INTO messages (conversation_id, position, role, content, failed) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer msgStmt.Close()

	attStmt, err := tx.Prepare(`INSERT INTO attachments (conversation_id, message_position, position, path, name, kind)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer attStmt.Close()

	for pos, c := range convs {
		rec := toRecord(c)
		if _, err = convStmt.Exec(string(rec.ID), pos, rec.Title, rec.CreatedAt.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert conversation %s: %w", rec.ID, err)
		}
		for mpos, m := range rec.Messages {
			if _, err = msgStmt.Exec(string(rec.ID), mpos, m.Role, m.Content, m.Failed); err != nil {
				return fmt.Errorf("insert message: %w", err)
			}
			for apos, a := range m.Files {
				if _, err = attStmt.Exec(string(rec.ID), mpos, apos, a.Path, a.Name, string(a.Kind)); err != nil {
					return fmt.Errorf("insert attachment: %w", err)
				}
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Delete removes one conversation with its messages and attachments.
func (s *SQLiteStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(id)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
