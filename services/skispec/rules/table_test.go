// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"testing"
)

func TestTable_FirstMatchWins(t *testing.T) {
	table, err := NewTable("test", []Rule[string]{
		{ID: "first", Matcher: MustCompile("powder"), Value: "Powder"},
		{ID: "second", Matcher: MustCompile("powder", "trees"), Value: "Trees"},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	r, ok := table.FirstMatch("  Powder in the TREES ")
	if !ok {
		t.Fatal("expected a match")
	}
	if r.ID != "first" || r.Value != "Powder" {
		t.Errorf("got %s/%s, want first/Powder", r.ID, r.Value)
	}
}

func TestTable_NoMatch(t *testing.T) {
	table, err := NewTable("test", []Rule[int]{
		{ID: "a", Matcher: MustCompile("avalanche"), Value: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := table.FirstMatch("groomers"); ok {
		t.Error("expected no match")
	}
}

func TestTable_DuplicateID(t *testing.T) {
	_, err := NewTable("dup", []Rule[int]{
		{ID: "a", Matcher: MustCompile("x")},
		{ID: "a", Matcher: MustCompile("y")},
	})
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestTable_EmptyID(t *testing.T) {
	if _, err := NewTable("empty", []Rule[int]{{Matcher: MustCompile("x")}}); err == nil {
		t.Fatal("expected empty id error")
	}
}

func TestTable_NilSafe(t *testing.T) {
	var table *Table[string]
	if _, ok := table.FirstMatch("x"); ok {
		t.Error("nil table should not match")
	}
	if table.Len() != 0 {
		t.Error("nil table should have zero length")
	}
}

func TestTable_RulesIsCopy(t *testing.T) {
	table, err := NewTable("copy", []Rule[int]{{ID: "a", Matcher: MustCompile("x"), Value: 1}})
	if err != nil {
		t.Fatal(err)
	}
	rs := table.Rules()
	rs[0].Value = 99
	if r, _ := table.FirstMatch("x"); r.Value != 1 {
		t.Errorf("table mutated through Rules(): got %d", r.Value)
	}
}
