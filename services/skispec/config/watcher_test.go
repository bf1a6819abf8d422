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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNewRulesWatcher_InvalidArgs(t *testing.T) {
	noop := func(*RuleSet) error { return nil }
	if _, err := NewRulesWatcher("", noop, nil); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := NewRulesWatcher("rules.yaml", nil, nil); err == nil {
		t.Error("expected error for nil callback")
	}
}

func TestRulesWatcher_ReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, DefaultRulesYAML(), 0o600))

	got := make(chan *RuleSet, 4)
	w, err := NewRulesWatcher(path, func(rs *RuleSet) error {
		got <- rs
		return nil
	}, nil)
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	updated := strings.Replace(string(DefaultRulesYAML()), "max_chars: 8000", "max_chars: 4000", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	select {
	case rs := <-got:
		require.Equal(t, 4000, rs.History.MaxChars)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestRulesWatcher_RejectsInvalidFile(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, DefaultRulesYAML(), 0o600))

	w, err := NewRulesWatcher(path, func(*RuleSet) error {
		return errors.New("should not be called")
	}, nil)
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o600))

	require.Eventually(t, func() bool {
		_, errs := w.Stats()
		return errs >= 1
	}, 5*time.Second, 10*time.Millisecond)

	reloads, _ := w.Stats()
	require.Equal(t, 0, reloads)
}

func TestRulesWatcher_StopAfterFailedStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "missing-dir", "rules.yaml")
	w, err := NewRulesWatcher(path, func(*RuleSet) error { return nil }, nil)
	require.NoError(t, err)

	require.Error(t, w.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after a failed Start")
	}
}
