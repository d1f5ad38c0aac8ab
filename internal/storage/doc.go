// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for ollamachat.
//
// The whole conversation list is loaded at startup and written back as one
// collection after every completed turn. Two backends implement Store:
//
//   - JSONStore: a single chats.json file, rewritten atomically
//   - SQLiteStore: a chats.db database (modernc.org/sqlite), one
//     transaction per save
//
// # Usage
//
//	store, err := storage.Open(storage.Config{Backend: "json", DataDir: dir})
//	convs, err := store.Load()
//	err = store.Save(convs)
//	err = store.Delete(convs[0].ID)
//
// # Storage Location
//
// By default data lives in ~/.ollamachat/.
package storage
