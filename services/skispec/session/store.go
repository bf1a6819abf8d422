// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session stores per-conversation turn logs.
//
// A session is an opaque identifier and an ordered, append-only list of
// turns. Sessions are created on first append, destroyed by Delete, and
// otherwise live for the process lifetime. Nothing is persisted across
// restarts.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a session log.
type Turn struct {
	Role Role
	Text string
	At   time.Time
}

// ErrSessionIDRequired is returned when an operation needs an identifier.
var ErrSessionIDRequired = errors.New("session id required")

// Store holds session logs.
//
// Description:
//
//	History returns a copy of a session's turns (nil for an unknown id).
//	Append creates the session if needed. Delete is a no-op for an unknown
//	id. Lock serializes a read-decide-append cycle per identifier; callers
//	hold it across History and Append so concurrent requests for the same
//	session cannot interleave.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Store interface {
	History(ctx context.Context, id string) ([]Turn, error)
	Append(ctx context.Context, id string, turns ...Turn) error
	Delete(ctx context.Context, id string) error
	Lock(id string) (unlock func())
	Close() error
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// UserText concatenates the user turns of a log, newline-separated, keeping
// at most the trailing maxChars bytes. The window starts on a word boundary,
// so it never begins inside a word or a multi-byte rune. maxChars <= 0 keeps everything.
//
// Assistant turns are excluded: canned replies such as the clarification
// template list every terrain keyword and would otherwise be read back as
// the user's own preferences.
func UserText(turns []Turn, maxChars int) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Role != RoleUser {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(t.Text)
	}
	s := b.String()
	if maxChars > 0 && len(s) > maxChars {
		s = trimHead(s, len(s)-maxChars)
	}
	return s
}

// trimHead drops s[:cut] and any word fragment left at the new head.
func trimHead(s string, cut int) string {
	rest := s[cut:]
	if isSpace(s[cut-1]) {
		return rest
	}
	if i := strings.IndexAny(rest, " \t\n"); i >= 0 {
		return rest[i+1:]
	}
	return ""
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' }

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m := k.locks[key]
	if m == nil {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.Unlock()
			k.mu.Lock()
			m.refs--
			if m.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		})
	}
}
