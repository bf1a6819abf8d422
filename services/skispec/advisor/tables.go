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
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/SkiSpec/services/skispec/config"
	"github.com/AleutianAI/SkiSpec/services/skispec/rules"
)

// ErrNilRuleSet is returned by Compile when given no rules.
var ErrNilRuleSet = errors.New("rule set must not be nil")

// slotTier is a compiled ability or terrain tier.
type slotTier[T ~string] struct {
	value   T
	phrases []string
}

// goldenAnswer is the value carried by a golden rule.
type goldenAnswer struct {
	kind     config.GoldenKind
	response string
}

// Tables is the compiled, immutable form of a config.RuleSet.
//
// Description:
//
//	Every stage of the pipeline reads from Tables. A new RuleSet produces a
//	new Tables; an existing Tables is never modified, so a pipeline can swap
//	tables atomically while requests are in flight.
//
// Thread Safety: Immutable after Compile; safe for concurrent use.
type Tables struct {
	templates       config.Templates
	historyMaxChars int

	judge      *rules.Table[struct{}]
	outOfScope *rules.Table[string]
	unsafe     *rules.Table[string]
	golden     *rules.Table[goldenAnswer]

	abilityTiers []slotTier[Ability]
	terrainTiers []slotTier[Terrain]
	childWords   []string
	weightWords  []string

	defaultAbility Ability
	abilityRows    map[Ability]config.AbilityRow
	terrainRows    map[Terrain]config.TerrainRow
	defaultTerrain config.TerrainRow
}

// Compile builds Tables from a validated RuleSet.
//
// Description:
//
//	Compiles every predicate and indexes the synthesis rows. Golden entries
//	of kind "recommendation" are parsed with ParseRecommendation so a
//	catalogue that would emit a malformed answer is rejected here rather
//	than served.
//
// Inputs:
//
//	rs - A RuleSet that passed config validation. Must not be nil.
//
// Outputs:
//
//	*Tables - The compiled tables.
//	error - Non-nil on a malformed predicate or golden answer.
func Compile(rs *config.RuleSet) (*Tables, error) {
	if rs == nil {
		return nil, ErrNilRuleSet
	}

	t := &Tables{
		templates:       rs.Templates,
		historyMaxChars: rs.History.MaxChars,
		childWords:      lowerAll(rs.Slots.Child),
		weightWords:     lowerAll(rs.Slots.Weight),
		defaultAbility:  Ability(rs.Synthesis.DefaultAbility),
		abilityRows:     make(map[Ability]config.AbilityRow, len(rs.Synthesis.Abilities)),
		terrainRows:     make(map[Terrain]config.TerrainRow, len(rs.Synthesis.Terrains)),
		defaultTerrain:  rs.Synthesis.DefaultTerrain,
	}

	var err error
	if t.judge, err = compileTable("judge", rs.Judge, func(config.TriggerRule) struct{} { return struct{}{} }); err != nil {
		return nil, err
	}

	oosFallback := rs.Templates.OutOfScope
	if t.outOfScope, err = compileTable("scope.out_of_scope", rs.Scope.OutOfScope, func(r config.TriggerRule) string {
		return orDefault(r.Response, oosFallback)
	}); err != nil {
		return nil, err
	}

	safetyFallback := rs.Templates.Safety
	if t.unsafe, err = compileTable("scope.unsafe", rs.Scope.Unsafe, func(r config.TriggerRule) string {
		return orDefault(r.Response, safetyFallback)
	}); err != nil {
		return nil, err
	}

	goldenRules := make([]rules.Rule[goldenAnswer], 0, len(rs.Golden))
	for i, g := range rs.Golden {
		m, err := rules.Compile(g.Match.All, g.Match.None)
		if err != nil {
			return nil, fmt.Errorf("golden[%d] (%s): %w", i, g.ID, err)
		}
		if g.Kind == config.GoldenRecommendation {
			if _, err := ParseRecommendation(g.Response); err != nil {
				return nil, fmt.Errorf("golden[%d] (%s): response is not a valid recommendation: %w", i, g.ID, err)
			}
		}
		goldenRules = append(goldenRules, rules.Rule[goldenAnswer]{
			ID:      g.ID,
			Matcher: m,
			Value:   goldenAnswer{kind: g.Kind, response: g.Response},
		})
	}
	if t.golden, err = rules.NewTable("golden", goldenRules); err != nil {
		return nil, err
	}

	for _, tier := range rs.Slots.Ability {
		t.abilityTiers = append(t.abilityTiers, slotTier[Ability]{value: Ability(tier.Value), phrases: lowerAll(tier.Phrases)})
	}
	for _, tier := range rs.Slots.Terrain {
		t.terrainTiers = append(t.terrainTiers, slotTier[Terrain]{value: Terrain(tier.Value), phrases: lowerAll(tier.Phrases)})
	}
	for _, row := range rs.Synthesis.Abilities {
		t.abilityRows[Ability(row.Ability)] = row
	}
	for _, row := range rs.Synthesis.Terrains {
		t.terrainRows[Terrain(row.Terrain)] = row
	}

	return t, nil
}

// DefaultTables compiles the embedded rule set.
func DefaultTables(ctx context.Context) (*Tables, error) {
	rs, err := config.GetRuleSet(ctx)
	if err != nil {
		return nil, err
	}
	return Compile(rs)
}

// HistoryMaxChars returns the trailing user-history window in characters.
func (t *Tables) HistoryMaxChars() int { return t.historyMaxChars }

// ClarificationText returns the fixed clarification template.
func (t *Tables) ClarificationText() string { return t.templates.Clarification }

func compileTable[T any](name string, triggers []config.TriggerRule, value func(config.TriggerRule) T) (*rules.Table[T], error) {
	compiled := make([]rules.Rule[T], 0, len(triggers))
	for i, tr := range triggers {
		m, err := rules.Compile(tr.Match.All, tr.Match.None)
		if err != nil {
			return nil, fmt.Errorf("%s[%d] (%s): %w", name, i, tr.ID, err)
		}
		compiled = append(compiled, rules.Rule[T]{ID: tr.ID, Matcher: m, Value: value(tr)})
	}
	return rules.NewTable(name, compiled)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
