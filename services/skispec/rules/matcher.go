// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rules evaluates ordered phrase rules against free text.
//
// Every decision table in the advisor (scope triggers, golden answers, judge
// detection) is a list of rules evaluated in declaration order where the
// first match wins. A rule's predicate is a conjunction of terms; each term is
// a set of alternative phrases, any one of which satisfies it.
//
// Term syntax:
//
//	"park"            matches if "park" is a substring of the input
//	"tricks|park"     matches if either phrase is a substring
//
// Matching is case-insensitive: inputs are lowercased and trimmed by Normalize
// before evaluation, and phrases are lowercased at compile time.
package rules

import (
	"errors"
	"fmt"
	"strings"
)

// AlternativeSeparator splits a term into alternative phrases.
const AlternativeSeparator = "|"

// ErrEmptyPredicate is returned when a predicate has no required terms.
var ErrEmptyPredicate = errors.New("predicate must have at least one required term")

// term is a disjunction of phrases.
type term struct {
	raw          string
	alternatives []string
}

func (t term) matches(text string) bool {
	for _, alt := range t.alternatives {
		if strings.Contains(text, alt) {
			return true
		}
	}
	return false
}

// Matcher is a compiled predicate.
//
// Thread Safety: Immutable after Compile; safe for concurrent use.
type Matcher struct {
	all  []term
	none []term
}

// Compile builds a Matcher from required and excluded terms.
//
// Description:
//
//	Each entry of all must be satisfied for a match; any satisfied entry of
//	none rejects the match. Entries are split on "|" into alternatives and
//	lowercased. Empty alternatives are rejected so a stray separator cannot
//	silently turn a term into a match-everything.
//
// Inputs:
//
//	all - Required terms. Must not be empty.
//	none - Excluded terms. May be empty.
//
// Outputs:
//
//	Matcher - The compiled predicate.
//	error - Non-nil if a term is malformed or all is empty.
func Compile(all, none []string) (Matcher, error) {
	if len(all) == 0 {
		return Matcher{}, ErrEmptyPredicate
	}
	req, err := compileTerms("all", all)
	if err != nil {
		return Matcher{}, err
	}
	excl, err := compileTerms("none", none)
	if err != nil {
		return Matcher{}, err
	}
	return Matcher{all: req, none: excl}, nil
}

// MustCompile is like Compile but panics on error. For tests and static tables.
func MustCompile(all ...string) Matcher {
	m, err := Compile(all, nil)
	if err != nil {
		panic(fmt.Sprintf("rules.MustCompile: %v", err))
	}
	return m
}

func compileTerms(field string, raw []string) ([]term, error) {
	terms := make([]term, 0, len(raw))
	for i, r := range raw {
		parts := strings.Split(r, AlternativeSeparator)
		alts := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.ToLower(strings.TrimSpace(p))
			if p == "" {
				return nil, fmt.Errorf("%s[%d] %q: empty alternative", field, i, r)
			}
			alts = append(alts, p)
		}
		terms = append(terms, term{raw: r, alternatives: alts})
	}
	return terms, nil
}

// Match reports whether normalized text satisfies the predicate.
//
// The caller is responsible for passing text through Normalize first.
func (m Matcher) Match(normalized string) bool {
	if len(m.all) == 0 {
		return false
	}
	for _, t := range m.all {
		if !t.matches(normalized) {
			return false
		}
	}
	for _, t := range m.none {
		if t.matches(normalized) {
			return false
		}
	}
	return true
}

// String renders the predicate for logs and span attributes.
func (m Matcher) String() string {
	parts := make([]string, 0, len(m.all)+len(m.none))
	for _, t := range m.all {
		parts = append(parts, "("+t.raw+")")
	}
	for _, t := range m.none {
		parts = append(parts, "!("+t.raw+")")
	}
	return strings.Join(parts, " & ")
}

// Normalize lowercases and trims text for matching.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// ContainsAny reports whether normalized text contains any of the phrases.
//
// Phrases are expected to be lowercase already.
func ContainsAny(normalized string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(normalized, p) {
			return true
		}
	}
	return false
}
