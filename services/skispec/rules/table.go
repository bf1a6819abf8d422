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
	"fmt"
)

// Rule pairs a compiled predicate with the value it yields on match.
type Rule[T any] struct {
	// ID identifies the rule in logs, metrics, and verdicts.
	ID string

	// Matcher is the compiled predicate.
	Matcher Matcher

	// Value is returned when the rule fires.
	Value T
}

// Table is an ordered rule list. Declaration order is evaluation order.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Table[T any] struct {
	name  string
	rules []Rule[T]
}

// NewTable builds a Table, rejecting duplicate or empty rule IDs.
//
// Inputs:
//
//	name - Table name for error messages.
//	rules - Ordered rules. May be empty.
//
// Outputs:
//
//	*Table[T] - The table. Never nil on success.
//	error - Non-nil on an empty or duplicate ID.
func NewTable[T any](name string, rules []Rule[T]) (*Table[T], error) {
	seen := make(map[string]int, len(rules))
	for i, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("%s[%d]: id must not be empty", name, i)
		}
		if j, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("%s[%d]: duplicate id %q (first at [%d])", name, i, r.ID, j)
		}
		seen[r.ID] = i
	}
	cp := make([]Rule[T], len(rules))
	copy(cp, rules)
	return &Table[T]{name: name, rules: cp}, nil
}

// FirstMatch returns the first rule whose predicate matches text.
//
// Description:
//
//	Text is normalized (lowercased, trimmed) once, then each rule is tried in
//	declaration order. Later rules are never consulted once one fires.
//
// Inputs:
//
//	text - Raw input text.
//
// Outputs:
//
//	Rule[T] - The matching rule. Zero value when ok is false.
//	bool - True if a rule matched.
func (t *Table[T]) FirstMatch(text string) (Rule[T], bool) {
	if t == nil {
		return Rule[T]{}, false
	}
	normalized := Normalize(text)
	for _, r := range t.rules {
		if r.Matcher.Match(normalized) {
			return r, true
		}
	}
	return Rule[T]{}, false
}

// Len returns the number of rules.
func (t *Table[T]) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// Name returns the table name.
func (t *Table[T]) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}

// Rules returns a copy of the rules in evaluation order.
func (t *Table[T]) Rules() []Rule[T] {
	if t == nil {
		return nil
	}
	cp := make([]Rule[T], len(t.rules))
	copy(cp, t.rules)
	return cp
}
