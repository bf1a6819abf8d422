// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce is how long a rules file must be quiet before reload.
const DefaultReloadDebounce = 250 * time.Millisecond

// RulesWatcher reloads a rules file when it changes on disk.
//
// Description:
//
//	Watches the directory containing the rules file (editors commonly save
//	by rename, which drops a watch on the file itself) and, once writes have
//	settled for the debounce window, loads and validates the file. A valid
//	file is handed to the onChange callback; an invalid one, or one the
//	callback rejects, is logged and the previously applied rules stay in effect.
//
// Thread Safety: Start and Stop are safe for concurrent use. onChange is
// called from the watcher goroutine only.
type RulesWatcher struct {
	path     string
	debounce time.Duration
	onChange func(*RuleSet) error
	logger   *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	pending time.Time
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	reloads int
	errors  int
}

// NewRulesWatcher creates a watcher for path.
//
// Inputs:
//
//	path - Rules file to watch. Must not be empty.
//	onChange - Called with each successfully loaded RuleSet. A non-nil error
//	           rejects the reload. Must not be nil.
//	logger - Logger for reload diagnostics. May be nil.
//
// Outputs:
//
//	*RulesWatcher - The watcher, not yet started.
//	error - Non-nil if arguments are invalid or fsnotify cannot start.
func NewRulesWatcher(path string, onChange func(*RuleSet) error, logger *slog.Logger) (*RulesWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("NewRulesWatcher: path must not be empty")
	}
	if onChange == nil {
		return nil, fmt.Errorf("NewRulesWatcher: onChange must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("NewRulesWatcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("NewRulesWatcher: %w", err)
	}
	return &RulesWatcher{
		path:     abs,
		debounce: DefaultReloadDebounce,
		onChange: onChange,
		logger:   logger.With(slog.String("component", "rules_watcher")),
		watcher:  w,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking.
func (rw *RulesWatcher) Start(ctx context.Context) error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.running {
		return nil
	}

	// running is only set once the loop will exist to close doneCh.
	dir := filepath.Dir(rw.path)
	if err := rw.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	rw.running = true
	rw.logger.Info("watching rules file", slog.String("path", rw.path))

	go rw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (rw *RulesWatcher) Stop() {
	rw.mu.Lock()
	if !rw.running {
		rw.mu.Unlock()
		_ = rw.watcher.Close()
		return
	}
	rw.running = false
	rw.mu.Unlock()

	close(rw.stopCh)
	<-rw.doneCh
	if err := rw.watcher.Close(); err != nil {
		rw.logger.Warn("closing rules watcher", slog.String("error", err.Error()))
	}
}

// Stats returns the number of applied reloads and failed reload attempts.
func (rw *RulesWatcher) Stats() (reloads, errors int) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.reloads, rw.errors
}

func (rw *RulesWatcher) run(ctx context.Context) {
	defer close(rw.doneCh)

	ticker := time.NewTicker(rw.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-rw.stopCh:
			return
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			rw.handleEvent(event)
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			rw.logger.Warn("rules watcher error", slog.String("error", err.Error()))
		case <-ticker.C:
			rw.maybeReload(ctx)
		}
	}
}

func (rw *RulesWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != rw.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	rw.mu.Lock()
	rw.pending = time.Now()
	rw.mu.Unlock()
}

func (rw *RulesWatcher) maybeReload(ctx context.Context) {
	rw.mu.Lock()
	if rw.pending.IsZero() || time.Since(rw.pending) < rw.debounce {
		rw.mu.Unlock()
		return
	}
	rw.pending = time.Time{}
	rw.mu.Unlock()

	rs, err := LoadRuleSetFile(ctx, rw.path)
	if err != nil {
		rw.mu.Lock()
		rw.errors++
		rw.mu.Unlock()
		rw.logger.Error("rules reload rejected, keeping previous rules",
			slog.String("path", rw.path),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := rw.onChange(rs); err != nil {
		rw.mu.Lock()
		rw.errors++
		rw.mu.Unlock()
		rw.logger.Error("rules reload rejected by consumer, keeping previous rules",
			slog.String("path", rw.path),
			slog.String("error", err.Error()),
		)
		return
	}

	rw.mu.Lock()
	rw.reloads++
	rw.mu.Unlock()
	rw.logger.Info("rules reloaded", slog.String("path", rw.path))
}
