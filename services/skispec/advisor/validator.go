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
	"errors"
	"strings"
)

// Validation failure reasons.
const (
	ReasonInsufficientSlots = "insufficient_slots"
	ReasonMalformed         = "malformed"
)

// Validate is the final policy gate for a candidate response.
//
// Description:
//
//	Checks run in a fixed order and the first failure decides:
//
//	  1. an out-of-scope trigger in the message refuses
//	  2. an unsafe trigger in the message refuses
//	  3. missing ability, terrain, or child weight asks for clarification
//	  4. a candidate that is not a well-formed recommendation asks for
//	     clarification, never refuses
//
//	Golden candidates skip checks 3 and 4; the catalogue is verified when the
//	tables are compiled. Because a passing candidate must parse into the full
//	template, text carrying a single DIN value or any other extra content
//	cannot pass.
//
// Inputs:
//
//	candidate - The response produced upstream.
//	source - The stage that produced candidate.
//	message - The current user message.
//	sessionText - Prior user turns of the session.
//
// Outputs:
//
//	Verdict - Outcome plus the text to return.
//
// Thread Safety: Safe for concurrent use.
func (t *Tables) Validate(candidate string, source Source, message, sessionText string) Verdict {
	if scope := t.ClassifyScope(message); scope.Class != ScopeInScope {
		return Verdict{
			Outcome: OutcomeRefuse,
			Text:    scope.Refusal,
			Reason:  string(scope.Class),
			RuleID:  scope.RuleID,
		}
	}

	if source == SourceGolden {
		return Verdict{Outcome: OutcomePass, Text: strings.TrimSpace(candidate)}
	}

	if t.NeedsMoreInfo(message, sessionText) {
		return Verdict{
			Outcome: OutcomeClarify,
			Text:    t.templates.Clarification,
			Reason:  ReasonInsufficientSlots,
		}
	}

	rec, err := ParseRecommendation(candidate)
	if err != nil {
		reason := ReasonMalformed
		var fe *FieldError
		if errors.As(err, &fe) {
			reason = ReasonMalformed + ":" + fe.Field
		}
		return Verdict{
			Outcome: OutcomeClarify,
			Text:    t.templates.Clarification,
			Reason:  reason,
		}
	}

	return Verdict{
		Outcome:        OutcomePass,
		Text:           strings.TrimSpace(candidate),
		Recommendation: rec,
	}
}
