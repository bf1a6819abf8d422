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
	"testing"
)

func judgePrompt(expected, actual string) string {
	return "You are a strict evaluator.\n\nExpected answer:\n" + expected +
		"\n\nActual answer:\n" + actual +
		"\n\nReturn only JSON with verdict PASS or FAIL."
}

func TestIsJudgePrompt(t *testing.T) {
	tables := mustTables(t)

	tests := []struct {
		message string
		ruleID  string
	}{
		{"You are a strict evaluator. Grade this.", "strict_evaluator"},
		{"Use the rubric below", "rubric"},
		{"Expected answer: foo", "expected_answer"},
		{"Return only PASS or FAIL", "return_only_verdict"},
		{"Give the verdict as JSON", "json_verdict"},
		{"I am an expert park skier", ""},
		{"Use the rubric: what is the max DIN for me?", ""},
		{"Which brand wins? Give the verdict as JSON", ""},
	}
	for _, tt := range tests {
		id, ok := tables.IsJudgePrompt(tt.message)
		if ok != (tt.ruleID != "") || id != tt.ruleID {
			t.Errorf("IsJudgePrompt(%q) = %q/%v, want %q", tt.message, id, ok, tt.ruleID)
		}
	}
}

func TestJudgeInstructions(t *testing.T) {
	rec := Render(sampleRecommendation)
	got := judgeInstructions(judgePrompt(rec, rec))
	if strings.Contains(got, SafetyNote) {
		t.Errorf("graded sections leaked into instructions: %q", got)
	}
	if !strings.HasPrefix(got, "You are a strict evaluator.") || !strings.Contains(got, "Return only JSON") {
		t.Errorf("instructions = %q", got)
	}
	if plain := "Grade with the rubric."; judgeInstructions(plain) != plain {
		t.Errorf("prompt without sections should be unchanged")
	}
}

func TestJudge(t *testing.T) {
	tables := mustTables(t)
	rec := Render(sampleRecommendation)
	wider := strings.Replace(rec, "75–88 mm", "80–95 mm", 1)
	refusal := tables.ClassifyScope("I want to snowboard.").Refusal

	tests := []struct {
		name    string
		prompt  string
		verdict string
		reason  string
	}{
		{
			name:    "no sections",
			prompt:  "You are a strict evaluator. Is this fine?",
			verdict: JudgePass,
			reason:  "No gradable sections; structural check skipped.",
		},
		{
			name:    "exact",
			prompt:  judgePrompt(rec, strings.ReplaceAll(rec, "\n", "  \r\n")),
			verdict: JudgePass,
			reason:  "Exact match.",
		},
		{
			name:    "equivalent",
			prompt:  judgePrompt(rec, strings.ReplaceAll(rec, "\n\n", "\n")),
			verdict: JudgePass,
			reason:  "Equivalent recommendation.",
		},
		{
			name:    "different width",
			prompt:  judgePrompt(rec, wider),
			verdict: JudgeFail,
			reason:  "Recommendation differs: waist_width",
		},
		{
			name:    "malformed actual",
			prompt:  judgePrompt(rec, "Use any ski you like."),
			verdict: JudgeFail,
		},
		{
			name:    "refusal expected",
			prompt:  judgePrompt(refusal, rec),
			verdict: JudgeFail,
			reason:  "Expected a non-recommendation response.",
		},
		{
			name:    "refusal matches",
			prompt:  judgePrompt(refusal, refusal),
			verdict: JudgePass,
			reason:  "Exact match.",
		},
		{
			name:    "free text differs",
			prompt:  judgePrompt(refusal, "Sure, here is a snowboard."),
			verdict: JudgeFail,
			reason:  "Response text differs.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tables.Judge(tt.prompt)
			if got.Verdict != tt.verdict {
				t.Fatalf("Verdict = %s (%s), want %s", got.Verdict, got.Reason, tt.verdict)
			}
			if tt.reason != "" && got.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.reason)
			}
		})
	}
}

func TestJudgeVerdict_StringIsJSON(t *testing.T) {
	s := JudgeVerdict{Verdict: JudgeFail, Reason: "line one\nline two"}.String()
	if strings.Contains(s, "\n") {
		t.Errorf("verdict spans lines: %q", s)
	}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if decoded["verdict"] != JudgeFail || decoded["reason"] != "line one\nline two" {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestNormalizeText(t *testing.T) {
	got := NormalizeText("\r\n a  \r\nb\t\rc \n\n")
	if got != "a\nb\nc" {
		t.Errorf("NormalizeText = %q", got)
	}
}
