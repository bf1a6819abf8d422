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
	"encoding/json"
	"strings"
)

// Markers delimiting the graded sections of a judge prompt.
const (
	JudgeExpectedMarker = "Expected answer:"
	JudgeActualMarker   = "Actual answer:"
	JudgeEndMarker      = "Return only"
)

// Judge verdict values.
const (
	JudgePass = "PASS"
	JudgeFail = "FAIL"
)

// JudgeVerdict is the evaluator's answer.
type JudgeVerdict struct {
	Verdict string `json:"verdict"`
	Reason  string `json:"reason"`
}

// String renders the verdict as single-line JSON.
func (v JudgeVerdict) String() string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"verdict":"FAIL","reason":"verdict encoding failed"}`
	}
	return string(b)
}

// IsJudgePrompt reports whether message is addressed to an evaluator.
//
// The instructions around the graded sections must themselves be in scope.
// A judge word never shields an out-of-scope or unsafe request; the graded
// sections are excluded because a quoted answer carries the safety note.
func (t *Tables) IsJudgePrompt(message string) (ruleID string, ok bool) {
	r, ok := t.judge.FirstMatch(message)
	if !ok {
		return "", false
	}
	if t.ClassifyScope(judgeInstructions(message)).Class != ScopeInScope {
		return "", false
	}
	return r.ID, true
}

// judgeInstructions returns prompt without its expected and actual sections.
func judgeInstructions(prompt string) string {
	lower := strings.ToLower(prompt)
	ei := strings.Index(lower, strings.ToLower(JudgeExpectedMarker))
	ai := strings.Index(lower, strings.ToLower(JudgeActualMarker))
	if ei < 0 || ai < 0 || ai < ei {
		return prompt
	}
	head := prompt[:ei]
	if end := strings.Index(lower[ai:], strings.ToLower(JudgeEndMarker)); end >= 0 {
		return head + "\n" + prompt[ai+end:]
	}
	return head
}

// Judge grades a judge prompt deterministically.
//
// Description:
//
//	When the prompt carries "Expected answer:" and "Actual answer:"
//	sections, the actual answer is graded against the expected one: an exact
//	match after NormalizeText passes; otherwise, if the expected answer is a
//	recommendation, the actual answer must parse to the same recommendation.
//	Prompts without gradable sections pass, so a caller can always rely on
//	well-formed JSON back.
//
// Inputs:
//
//	prompt - The evaluator prompt.
//
// Outputs:
//
//	JudgeVerdict - PASS or FAIL with a short reason.
func (t *Tables) Judge(prompt string) JudgeVerdict {
	expected, actual, ok := judgeSections(prompt)
	if !ok {
		return JudgeVerdict{Verdict: JudgePass, Reason: "No gradable sections; structural check skipped."}
	}

	if NormalizeText(expected) == NormalizeText(actual) {
		return JudgeVerdict{Verdict: JudgePass, Reason: "Exact match."}
	}

	want, werr := ParseRecommendation(expected)
	got, gerr := ParseRecommendation(actual)
	switch {
	case werr == nil && gerr != nil:
		return JudgeVerdict{Verdict: JudgeFail, Reason: "Actual answer is malformed: " + gerr.Error()}
	case werr == nil && *want == *got:
		return JudgeVerdict{Verdict: JudgePass, Reason: "Equivalent recommendation."}
	case werr == nil:
		return JudgeVerdict{Verdict: JudgeFail, Reason: "Recommendation differs: " + firstDifference(*want, *got)}
	case gerr == nil:
		return JudgeVerdict{Verdict: JudgeFail, Reason: "Expected a non-recommendation response."}
	default:
		return JudgeVerdict{Verdict: JudgeFail, Reason: "Response text differs."}
	}
}

// judgeSections extracts the expected and actual answers from a prompt.
func judgeSections(prompt string) (expected, actual string, ok bool) {
	lower := strings.ToLower(prompt)
	ei := strings.Index(lower, strings.ToLower(JudgeExpectedMarker))
	ai := strings.Index(lower, strings.ToLower(JudgeActualMarker))
	if ei < 0 || ai < 0 || ai < ei {
		return "", "", false
	}
	expected = prompt[ei+len(JudgeExpectedMarker) : ai]

	rest := prompt[ai+len(JudgeActualMarker):]
	if end := strings.Index(strings.ToLower(rest), strings.ToLower(JudgeEndMarker)); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(expected), strings.TrimSpace(rest), true
}

func firstDifference(want, got Recommendation) string {
	switch {
	case want.SkiType != got.SkiType:
		return "ski_type"
	case want.Ability != got.Ability:
		return "ability"
	case want.WaistWidth != got.WaistWidth:
		return "waist_width"
	case want.BootFlex != got.BootFlex:
		return "boot_flex"
	case want.Binding != got.Binding:
		return "binding"
	default:
		return "din"
	}
}

// NormalizeText canonicalizes line endings and whitespace for comparison:
// CRLF and CR become LF, trailing spaces are stripped per line, and the
// whole text is trimmed.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
