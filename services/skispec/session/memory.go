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

import (
	"context"
	"sync"
)

// MemoryStore keeps sessions in a map.
//
// Thread Safety: Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
	locks    *keyedMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]Turn),
		locks:    newKeyedMutex(),
	}
}

// History returns a copy of the session's turns, or nil if unknown.
func (s *MemoryStore) History(ctx context.Context, id string) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := make([]Turn, len(turns))
	copy(cp, turns)
	return cp, nil
}

// Append adds turns, creating the session if needed.
func (s *MemoryStore) Append(ctx context.Context, id string, turns ...Turn) error {
	if id == "" {
		return ErrSessionIDRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	_, existed := s.sessions[id]
	s.sessions[id] = append(s.sessions[id], turns...)
	n := len(s.sessions)
	s.mu.Unlock()

	if !existed {
		recordSessionCreated("memory", n)
	}
	return nil
}

// Delete removes a session. Unknown ids are ignored.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	_, existed := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()

	if existed {
		recordSessionDeleted("memory", n)
	}
	return nil
}

// Lock serializes access to one session.
func (s *MemoryStore) Lock(id string) func() {
	return s.locks.Lock(id)
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close drops all sessions.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.sessions = make(map[string][]Turn)
	s.mu.Unlock()
	recordSessionCount("memory", 0)
	return nil
}
