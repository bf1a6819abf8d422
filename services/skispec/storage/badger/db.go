// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger wraps BadgerDB with context-aware transaction helpers.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// ErrClosed is returned for operations on a closed DB.
var ErrClosed = errors.New("badger db closed")

// Config configures OpenDB.
type Config struct {
	// Path is the on-disk directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps all data in RAM; nothing survives Close.
	InMemory bool

	// Logger receives Badger's internal logs. Nil silences them.
	Logger *slog.Logger
}

// InMemoryConfig returns a Config for a process-lifetime, RAM-only store.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// DB is an opened BadgerDB.
//
// Thread Safety: Safe for concurrent use. Each transaction helper runs its
// callback on the calling goroutine.
type DB struct {
	db *dgbadger.DB

	mu     sync.RWMutex
	closed bool
}

// OpenDB opens a BadgerDB.
//
// Inputs:
//
//	cfg - Path or InMemory must be set.
//
// Outputs:
//
//	*DB - The opened DB. Caller must Close it.
//	error - Non-nil if the DB cannot be opened.
func OpenDB(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("OpenDB: path required for on-disk DB")
	}

	path := cfg.Path
	if cfg.InMemory {
		path = ""
	}
	opts := dgbadger.DefaultOptions(path).WithInMemory(cfg.InMemory)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&slogAdapter{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("OpenDB: %w", err)
	}
	return &DB{db: db}, nil
}

// WithTxn runs fn in a read-write transaction and commits on success.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return d.db.Update(fn)
}

// WithReadTxn runs fn in a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return d.db.View(fn)
}

// Close closes the DB. Safe to call more than once.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}

// slogAdapter routes Badger logs through slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Errorf(format string, args ...interface{}) {
	a.logger.Error(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

func (a *slogAdapter) Warningf(format string, args ...interface{}) {
	a.logger.Warn(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

func (a *slogAdapter) Infof(format string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

func (a *slogAdapter) Debugf(format string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}
