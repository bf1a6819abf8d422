// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package advisor

// ScopeClass is the scope classifier's decision.
type ScopeClass string

const (
	ScopeInScope    ScopeClass = "in_scope"
	ScopeOutOfScope ScopeClass = "out_of_scope"
	ScopeUnsafe     ScopeClass = "unsafe"
)

// ScopeResult is the outcome of ClassifyScope.
type ScopeResult struct {
	Class ScopeClass

	// RuleID is the trigger that fired. Empty when in scope.
	RuleID string

	// Refusal is the text to return. Empty when in scope.
	Refusal string
}

// ClassifyScope checks the current message against the scope triggers.
//
// Description:
//
//	Out-of-scope triggers are checked before unsafe triggers, each table in
//	declaration order. Only the current message is inspected: an earlier
//	off-topic turn does not taint later ones.
//
// Inputs:
//
//	message - The current user message.
//
// Outputs:
//
//	ScopeResult - Class ScopeInScope when no trigger fires.
//
// Thread Safety: Safe for concurrent use.
func (t *Tables) ClassifyScope(message string) ScopeResult {
	if r, ok := t.outOfScope.FirstMatch(message); ok {
		return ScopeResult{Class: ScopeOutOfScope, RuleID: r.ID, Refusal: r.Value}
	}
	if r, ok := t.unsafe.FirstMatch(message); ok {
		return ScopeResult{Class: ScopeUnsafe, RuleID: r.ID, Refusal: r.Value}
	}
	return ScopeResult{Class: ScopeInScope}
}
