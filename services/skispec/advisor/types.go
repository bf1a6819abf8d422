// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package advisor implements the ski gear compatibility decision pipeline.
//
// One user message plus the session's prior user turns go in; one
// policy-compliant text comes out. The pipeline is, in order:
//
//	judge detection -> scope classifier -> golden matcher ->
//	clarification gate -> synthesizer (or external generator) -> validator
//
// Every table the stages consult is compiled from a config.RuleSet, so the
// stages themselves contain no domain literals beyond the output format.
package advisor

import (
	"fmt"
)

// =============================================================================
// Slots
// =============================================================================

// Ability is the skier's ability tier. Empty means not detected.
type Ability string

const (
	AbilityUnknown      Ability = ""
	AbilityBeginner     Ability = "Beginner"
	AbilityIntermediate Ability = "Intermediate"
	AbilityAdvanced     Ability = "Advanced"
	AbilityExpert       Ability = "Expert"
)

// Terrain is the skier's terrain or style preference. Empty means not detected.
type Terrain string

const (
	TerrainUnknown Terrain = ""
	TerrainPark    Terrain = "park"
	TerrainTouring Terrain = "touring"
	TerrainPowder  Terrain = "powder"
	TerrainGroomer Terrain = "groomer"
	TerrainMixed   Terrain = "mixed"
)

// SlotSet holds the facts extracted from a conversation.
//
// Derived per turn from the session's user text plus the current message.
// Never cached.
type SlotSet struct {
	Ability   Ability
	Terrain   Terrain
	IsChild   bool
	HasWeight bool
}

// HasAbility reports whether an ability tier was detected.
func (s SlotSet) HasAbility() bool { return s.Ability != AbilityUnknown }

// HasTerrain reports whether a terrain or style was detected.
func (s SlotSet) HasTerrain() bool { return s.Terrain != TerrainUnknown }

// =============================================================================
// Recommendation
// =============================================================================

// Binding is the binding type guidance.
type Binding string

const (
	BindingAlpine  Binding = "Alpine"
	BindingHybrid  Binding = "Hybrid"
	BindingTechPin Binding = "Tech/PIN"
)

// Ski types.
const (
	SkiTypeAllMountain = "All-Mountain"
	SkiTypePowder      = "Powder"
	SkiTypePark        = "Park"
	SkiTypeTouring     = "Touring"
)

// IntRange is an inclusive integer range with Low < High.
type IntRange struct {
	Low  int
	High int
}

// Valid reports whether Low < High.
func (r IntRange) Valid() bool { return r.Low < r.High }

// String renders the range with an en-dash.
func (r IntRange) String() string { return fmt.Sprintf("%d%s%d", r.Low, RangeDash, r.High) }

// DecimalRange is a range of one-decimal values with Low < High.
type DecimalRange struct {
	Low  float64
	High float64
}

// Valid reports whether Low < High.
func (r DecimalRange) Valid() bool { return r.Low < r.High }

// String renders the range with one decimal place and an en-dash.
func (r DecimalRange) String() string {
	return fmt.Sprintf("%.1f%s%.1f", r.Low, RangeDash, r.High)
}

// Recommendation is a complete gear compatibility answer.
//
// Width, flex, and DIN are always ranges. A single DIN value is never
// representable.
type Recommendation struct {
	SkiType    string
	Ability    Ability
	WaistWidth IntRange
	BootFlex   IntRange
	Binding    Binding
	DIN        DecimalRange
}

// =============================================================================
// Verdicts
// =============================================================================

// Outcome is the tri-state result of policy validation.
type Outcome string

const (
	OutcomePass    Outcome = "pass"
	OutcomeClarify Outcome = "clarify"
	OutcomeRefuse  Outcome = "refuse"

	// OutcomeJudge marks a verdict emitted for an evaluator prompt.
	OutcomeJudge Outcome = "judge"
)

// Source names the stage that produced a candidate response.
type Source string

const (
	SourceJudge       Source = "judge"
	SourceScope       Source = "scope"
	SourceGolden      Source = "golden"
	SourceSlots       Source = "slots"
	SourceGenerator   Source = "generator"
	SourceSynthesizer Source = "synthesizer"
)

// Verdict is the validator's decision on a candidate.
type Verdict struct {
	// Outcome is pass, clarify, or refuse.
	Outcome Outcome

	// Text is the final response text.
	Text string

	// Reason explains non-pass outcomes for logs.
	Reason string

	// RuleID is the rule that decided the outcome, if any.
	RuleID string

	// Recommendation is the parsed candidate on a non-golden pass.
	Recommendation *Recommendation
}
