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
	"testing"

	"github.com/google/go-cmp/cmp"
)

var sampleRecommendation = Recommendation{
	SkiType:    SkiTypeAllMountain,
	Ability:    AbilityBeginner,
	WaistWidth: IntRange{Low: 75, High: 88},
	BootFlex:   IntRange{Low: 60, High: 80},
	Binding:    BindingAlpine,
	DIN:        DecimalRange{Low: 3.0, High: 6.0},
}

func TestRender(t *testing.T) {
	want := "Ski type: All-Mountain\n" +
		"Ability level: Beginner\n\n" +
		"Recommended ski waist width: 75–88 mm\n" +
		"Recommended boot flex: 60–80\n" +
		"Binding type guidance: Alpine\n" +
		"DIN guidance: 3.0–6.0\n\n" +
		"Note: Exact DIN should be set by a certified technician."
	if got := Render(sampleRecommendation); got != want {
		t.Errorf("Render mismatch:\n%s", cmp.Diff(want, got))
	}
}

func TestParseRecommendation_Tolerant(t *testing.T) {
	text := "\r\n  Ski type: All-Mountain  \r\nAbility level: Beginner\r\n" +
		"Recommended ski waist width: 75–88 mm\n\n\n" +
		"Recommended boot flex: 60–80\n" +
		"Binding type guidance: Alpine\n" +
		"DIN guidance: 3.0–6.0\n" +
		"Note: Exact DIN should be set by a certified technician.\n\n"
	got, err := ParseRecommendation(text)
	if err != nil {
		t.Fatalf("ParseRecommendation: %v", err)
	}
	if diff := cmp.Diff(sampleRecommendation, *got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRecommendation_FieldErrors(t *testing.T) {
	good := Render(sampleRecommendation)

	tests := []struct {
		name  string
		text  string
		field string
	}{
		{"empty", "   \n", "response"},
		{"unknown ski type", strings.Replace(good, "All-Mountain", "Carver", 1), "ski_type"},
		{"unknown ability", strings.Replace(good, "Ability level: Beginner", "Ability level: Pro", 1), "ability"},
		{"hyphen instead of en dash", strings.Replace(good, "75–88 mm", "75-88 mm", 1), "waist_width"},
		{"missing unit", strings.Replace(good, "75–88 mm", "75–88", 1), "waist_width"},
		{"inverted flex", strings.Replace(good, "60–80", "80–60", 1), "boot_flex"},
		{"unknown binding", strings.Replace(good, "Alpine", "Frame", 1), "binding"},
		{"single DIN", strings.Replace(good, "3.0–6.0", "4.5", 1), "din"},
		{"integer DIN", strings.Replace(good, "3.0–6.0", "3–6", 1), "din"},
		{"equal DIN bounds", strings.Replace(good, "3.0–6.0", "5.0–5.0", 1), "din"},
		{"reworded note", strings.Replace(good, "certified technician", "shop", 1), "safety_note"},
		{"missing note", strings.Replace(good, SafetyNote, "", 1), "safety_note"},
		{"trailing text", good + "\nEnjoy your day!", "trailer"},
		{"truncated", "Ski type: Park\nAbility level: Expert", "waist_width"},
		{"reordered", strings.Replace(good, "Ski type: All-Mountain\nAbility level: Beginner", "Ability level: Beginner\nSki type: All-Mountain", 1), "ski_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecommendation(tt.text)
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("error = %v, want *FieldError", err)
			}
			if fe.Field != tt.field {
				t.Errorf("Field = %q, want %q (%v)", fe.Field, tt.field, fe)
			}
		})
	}
}

func TestCleanCandidate(t *testing.T) {
	good := Render(sampleRecommendation)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"untouched", good, good},
		{"text after note", good + "\n\nHave fun out there!", good},
		{"end of sequence", "  " + good + "</s>\nUser: more", good},
		{"end of sequence before note", "Ski type: Park</s>" + SafetyNote, "Ski type: Park"},
		{"no note", "  just text  ", "just text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCandidate(tt.raw); got != tt.want {
				t.Errorf("CleanCandidate = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRanges(t *testing.T) {
	if got := (IntRange{Low: 100, High: 120}).String(); got != "100–120" {
		t.Errorf("IntRange.String = %q", got)
	}
	if got := (DecimalRange{Low: 0.5, High: 2.5}).String(); got != "0.5–2.5" {
		t.Errorf("DecimalRange.String = %q", got)
	}
	if (IntRange{Low: 5, High: 5}).Valid() {
		t.Error("equal bounds must be invalid")
	}
}
