// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/jeranaias/ollamachat/internal/model"
	"github.com/jeranaias/ollamachat/internal/util"
)

// JSONStore keeps every conversation in one JSON array file.
type JSONStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONStore creates a store backed by path. The file is created on the
// first Save.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the backing file.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads the collection. A missing file yields an empty list.
func (s *JSONStore) Load() ([]*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return nil, err
	}

	convs := make([]*model.Conversation, 0, len(records))
	for _, rec := range records {
		convs = append(convs, fromRecord(rec))
	}
	return convs, nil
}

// Save overwrites the file with convs.
func (s *JSONStore) Save(convs []*model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]record, 0, len(convs))
	for _, c := range convs {
		records = append(records, toRecord(c))
	}
	return s.write(records)
}

// Delete removes one conversation by rewriting the file without it.
func (s *JSONStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}

	kept := records[:0]
	for _, rec := range records {
		if string(rec.ID) != id {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(records) {
		return notFound(id)
	}
	return s.write(kept)
}

// Close is a no-op; the file is not held open.
func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) read() ([]record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []record{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return records, nil
}

func (s *JSONStore) write(records []record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode conversations: %w", err)
	}
	return util.AtomicWriteFile(s.path, data, 0600)
}
