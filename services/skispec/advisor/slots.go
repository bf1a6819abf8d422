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

import (
	"github.com/AleutianAI/SkiSpec/services/skispec/rules"
)

// ExtractSlots derives the slot set from session text and the current message.
//
// Description:
//
//	Scans the lowercased concatenation of sessionText and message. Ability
//	and terrain take the first tier, in table order, with any phrase present,
//	so "expert" outranks "beginner" when both appear. Child and weight are
//	independent flags.
//
// Inputs:
//
//	message - The current user message.
//	sessionText - Prior user turns of the session. May be empty.
//
// Outputs:
//
//	SlotSet - Extracted slots; unknown fields are left empty.
//
// Thread Safety: Safe for concurrent use.
func (t *Tables) ExtractSlots(message, sessionText string) SlotSet {
	text := rules.Normalize(sessionText + "\n" + message)

	var s SlotSet
	for _, tier := range t.abilityTiers {
		if rules.ContainsAny(text, tier.phrases) {
			s.Ability = tier.value
			break
		}
	}
	for _, tier := range t.terrainTiers {
		if rules.ContainsAny(text, tier.phrases) {
			s.Terrain = tier.value
			break
		}
	}
	s.IsChild = rules.ContainsAny(text, t.childWords)
	s.HasWeight = rules.ContainsAny(text, t.weightWords)
	return s
}

// NeedsMoreInfo reports whether the conversation lacks the facts needed for a
// recommendation: ability and terrain must both be known, and a child also
// needs a weight.
func (t *Tables) NeedsMoreInfo(message, sessionText string) bool {
	return t.ExtractSlots(message, sessionText).NeedsMoreInfo()
}

// NeedsMoreInfo reports whether the slot set is insufficient.
func (s SlotSet) NeedsMoreInfo() bool {
	if !s.HasAbility() || !s.HasTerrain() {
		return true
	}
	return s.IsChild && !s.HasWeight
}
