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
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// Output Format
// =============================================================================

const (
	// RangeDash separates range bounds. U+2013 EN DASH.
	RangeDash = "–"

	// SafetyNote is the mandatory closing line of every recommendation.
	SafetyNote = "Note: Exact DIN should be set by a certified technician."

	labelSkiType  = "Ski type: "
	labelAbility  = "Ability level: "
	labelWidth    = "Recommended ski waist width: "
	labelFlex     = "Recommended boot flex: "
	labelBinding  = "Binding type guidance: "
	labelDIN      = "DIN guidance: "
	formatLineCnt = 7
)

var (
	widthPattern = regexp.MustCompile(`^(\d{2,3})` + RangeDash + `(\d{2,3}) mm$`)
	flexPattern  = regexp.MustCompile(`^(\d{2,3})` + RangeDash + `(\d{2,3})$`)
	dinPattern   = regexp.MustCompile(`^(\d{1,2}\.\d)` + RangeDash + `(\d{1,2}\.\d)$`)
)

// Render formats a recommendation in the fixed response template.
func Render(r Recommendation) string {
	var b strings.Builder
	b.WriteString(labelSkiType + r.SkiType + "\n")
	b.WriteString(labelAbility + string(r.Ability) + "\n\n")
	b.WriteString(labelWidth + r.WaistWidth.String() + " mm\n")
	b.WriteString(labelFlex + r.BootFlex.String() + "\n")
	b.WriteString(labelBinding + string(r.Binding) + "\n")
	b.WriteString(labelDIN + r.DIN.String() + "\n\n")
	b.WriteString(SafetyNote)
	return b.String()
}

// FieldError reports which field of a candidate response is malformed.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ParseRecommendation parses text in the fixed response template.
//
// Description:
//
//	Blank lines and trailing spaces are ignored; every other line must be,
//	in order, the six labelled fields followed by the safety note, with
//	nothing before or after. Width, flex, and DIN must be en-dash ranges
//	with low below high, and DIN bounds carry exactly one decimal place.
//	Enumerated fields must hold a known value.
//
// Inputs:
//
//	text - Candidate response text.
//
// Outputs:
//
//	*Recommendation - The parsed recommendation.
//	error - A *FieldError naming the first malformed field.
func ParseRecommendation(text string) (*Recommendation, error) {
	lines := contentLines(text)
	if len(lines) == 0 {
		return nil, &FieldError{Field: "response", Reason: "empty"}
	}

	fields := []string{"ski_type", "ability", "waist_width", "boot_flex", "binding", "din", "safety_note"}
	labels := []string{labelSkiType, labelAbility, labelWidth, labelFlex, labelBinding, labelDIN}

	values := make([]string, len(labels))
	for i, label := range labels {
		if i >= len(lines) {
			return nil, &FieldError{Field: fields[i], Reason: "missing"}
		}
		v, ok := strings.CutPrefix(lines[i], label)
		if !ok {
			return nil, &FieldError{Field: fields[i], Reason: fmt.Sprintf("expected line starting %q", strings.TrimSpace(label))}
		}
		values[i] = strings.TrimSpace(v)
	}
	if len(lines) < formatLineCnt {
		return nil, &FieldError{Field: "safety_note", Reason: "missing"}
	}
	if lines[6] != SafetyNote {
		return nil, &FieldError{Field: "safety_note", Reason: "does not match required note"}
	}
	if len(lines) > formatLineCnt {
		return nil, &FieldError{Field: "trailer", Reason: "unexpected text after safety note"}
	}

	rec := &Recommendation{}

	switch values[0] {
	case SkiTypeAllMountain, SkiTypePowder, SkiTypePark, SkiTypeTouring:
		rec.SkiType = values[0]
	default:
		return nil, &FieldError{Field: "ski_type", Reason: fmt.Sprintf("unknown ski type %q", values[0])}
	}

	switch Ability(values[1]) {
	case AbilityBeginner, AbilityIntermediate, AbilityAdvanced, AbilityExpert:
		rec.Ability = Ability(values[1])
	default:
		return nil, &FieldError{Field: "ability", Reason: fmt.Sprintf("unknown ability %q", values[1])}
	}

	width, err := parseIntRange("waist_width", widthPattern, values[2])
	if err != nil {
		return nil, err
	}
	rec.WaistWidth = width

	flex, err := parseIntRange("boot_flex", flexPattern, values[3])
	if err != nil {
		return nil, err
	}
	rec.BootFlex = flex

	switch Binding(values[4]) {
	case BindingAlpine, BindingHybrid, BindingTechPin:
		rec.Binding = Binding(values[4])
	default:
		return nil, &FieldError{Field: "binding", Reason: fmt.Sprintf("unknown binding %q", values[4])}
	}

	din, err := parseDecimalRange("din", values[5])
	if err != nil {
		return nil, err
	}
	rec.DIN = din

	return rec, nil
}

// contentLines splits text into trimmed, non-blank lines.
func contentLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func parseIntRange(field string, pattern *regexp.Regexp, s string) (IntRange, error) {
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return IntRange{}, &FieldError{Field: field, Reason: fmt.Sprintf("%q is not a range", s)}
	}
	lo, _ := strconv.Atoi(m[1])
	hi, _ := strconv.Atoi(m[2])
	r := IntRange{Low: lo, High: hi}
	if !r.Valid() {
		return IntRange{}, &FieldError{Field: field, Reason: "low bound must be below high bound"}
	}
	return r, nil
}

func parseDecimalRange(field, s string) (DecimalRange, error) {
	m := dinPattern.FindStringSubmatch(s)
	if m == nil {
		return DecimalRange{}, &FieldError{Field: field, Reason: fmt.Sprintf("%q is not a one-decimal range", s)}
	}
	lo, _ := strconv.ParseFloat(m[1], 64)
	hi, _ := strconv.ParseFloat(m[2], 64)
	r := DecimalRange{Low: lo, High: hi}
	if !r.Valid() {
		return DecimalRange{}, &FieldError{Field: field, Reason: "low bound must be below high bound"}
	}
	return r, nil
}

// TruncateAfterSafetyNote drops anything following the first safety note.
//
// Text without the note is returned trimmed.
func TruncateAfterSafetyNote(text string) string {
	idx := strings.Index(text, SafetyNote)
	if idx == -1 {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[:idx+len(SafetyNote)])
}

// EndOfSequence is the end-of-turn marker some generators leave in output.
const EndOfSequence = "</s>"

// CleanCandidate prepares raw generator output for validation.
//
// Cuts at the first end-of-sequence marker, then truncates after the
// safety note.
func CleanCandidate(raw string) string {
	if i := strings.Index(raw, EndOfSequence); i >= 0 {
		raw = raw[:i]
	}
	return TruncateAfterSafetyNote(raw)
}
