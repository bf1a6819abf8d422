// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

// =============================================================================
// BadgerStore: Session Logs in an In-Memory BadgerDB
// =============================================================================
//
// Storage layout:
//
//	session/v1/{id}  →  gob-encoded []Turn
//
// The DB is opened in-memory by the caller, so sessions still end with the
// process. Each Append is a read-modify-write inside one transaction.

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	dgbadger "github.com/dgraph-io/badger/v4"

	badgerstore "github.com/AleutianAI/SkiSpec/services/skispec/storage/badger"
)

// sessionKeyPrefix is versioned to allow future format changes.
const sessionKeyPrefix = "session/v1/"

// BadgerStore keeps session logs in BadgerDB.
//
// Thread Safety: Safe for concurrent use. BadgerDB transactions are
// per-goroutine; Lock serializes same-session cycles.
type BadgerStore struct {
	db     *badgerstore.DB
	owned  bool
	locks  *keyedMutex
	logger *slog.Logger
	count  atomic.Int64
}

// NewBadgerStore wraps an opened DB. The caller keeps ownership of db.
func NewBadgerStore(db *badgerstore.DB, logger *slog.Logger) *BadgerStore {
	if db == nil {
		panic("NewBadgerStore: db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, locks: newKeyedMutex(), logger: logger}
}

// OpenInMemoryBadgerStore opens a private in-memory DB owned by the store.
func OpenInMemoryBadgerStore(logger *slog.Logger) (*BadgerStore, error) {
	db, err := badgerstore.OpenDB(badgerstore.InMemoryConfig())
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	s := NewBadgerStore(db, logger)
	s.owned = true
	return s, nil
}

// History returns the session's turns, or nil if unknown.
func (s *BadgerStore) History(ctx context.Context, id string) ([]Turn, error) {
	var turns []Turn
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		var err error
		turns, err = readTurns(txn, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("session history: %w", err)
	}
	return turns, nil
}

// Append adds turns, creating the session if needed.
func (s *BadgerStore) Append(ctx context.Context, id string, turns ...Turn) error {
	if id == "" {
		return ErrSessionIDRequired
	}
	created := false
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		existing, err := readTurns(txn, id)
		if err != nil {
			return err
		}
		created = existing == nil
		raw, err := gobEncodeTurns(append(existing, turns...))
		if err != nil {
			return err
		}
		return txn.Set(sessionKey(id), raw)
	})
	if err != nil {
		return fmt.Errorf("session append: %w", err)
	}
	if created {
		recordSessionCreated("badger", int(s.count.Add(1)))
	}
	return nil
}

// Delete removes a session. Unknown ids are ignored.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	existed := false
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		_, err := txn.Get(sessionKey(id))
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get session key: %w", err)
		}
		existed = true
		return txn.Delete(sessionKey(id))
	})
	if err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	if existed {
		recordSessionDeleted("badger", int(s.count.Add(-1)))
	}
	return nil
}

// Lock serializes access to one session.
func (s *BadgerStore) Lock(id string) func() {
	return s.locks.Lock(id)
}

// Close closes the DB if the store opened it.
func (s *BadgerStore) Close() error {
	recordSessionCount("badger", 0)
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func sessionKey(id string) []byte {
	return []byte(sessionKeyPrefix + id)
}

func readTurns(txn *dgbadger.Txn, id string) ([]Turn, error) {
	item, err := txn.Get(sessionKey(id))
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session key: %w", err)
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("copy value: %w", err)
	}
	return gobDecodeTurns(raw)
}

func gobEncodeTurns(turns []Turn) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(turns); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func gobDecodeTurns(raw []byte) ([]Turn, error) {
	var turns []Turn
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&turns); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return turns, nil
}
