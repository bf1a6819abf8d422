// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

var configTracer = otel.Tracer("skispec.config")

// =============================================================================
// Embedded Default Rule Tables
// =============================================================================

//go:embed rules.yaml
var defaultRulesYAML []byte

// DefaultRulesYAML returns a copy of the embedded rule tables.
func DefaultRulesYAML() []byte {
	cp := make([]byte, len(defaultRulesYAML))
	copy(cp, defaultRulesYAML)
	return cp
}

// =============================================================================
// Rule Set Types
// =============================================================================

// RuleSet is the complete declarative configuration of the advisor.
//
// Description:
//
//	Holds every ordered decision table (judge detection, scope triggers,
//	golden answers), the slot vocabularies, the synthesis range tables, and
//	the fixed response templates. The advisor compiles a RuleSet once and
//	never mutates it.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type RuleSet struct {
	// Version is the rules file format version.
	Version int `yaml:"version"`

	// History bounds how much prior user text feeds slot extraction.
	History HistoryConfig `yaml:"history"`

	// Templates are the fixed response texts.
	Templates Templates `yaml:"templates"`

	// Judge detects prompts addressed to an evaluator.
	Judge []TriggerRule `yaml:"judge"`

	// Scope holds the out-of-scope and unsafe trigger tables.
	Scope ScopeRules `yaml:"scope"`

	// Slots holds the slot vocabularies.
	Slots SlotVocabulary `yaml:"slots"`

	// Synthesis holds the heuristic range tables.
	Synthesis SynthesisTables `yaml:"synthesis"`

	// Golden is the ordered catalogue of canned answers.
	Golden []GoldenEntry `yaml:"golden"`
}

// HistoryConfig bounds session history.
type HistoryConfig struct {
	// MaxChars is the number of trailing history characters considered.
	MaxChars int `yaml:"max_chars"`
}

// Templates are the fixed response texts.
type Templates struct {
	OutOfScope    string `yaml:"out_of_scope"`
	Safety        string `yaml:"safety"`
	Clarification string `yaml:"clarification"`
}

// MatchSpec is the YAML form of a rules.Matcher.
type MatchSpec struct {
	// All lists required terms; alternatives are separated by "|".
	All []string `yaml:"all"`

	// None lists excluded terms.
	None []string `yaml:"none"`
}

// TriggerRule fires when its match spec is satisfied.
type TriggerRule struct {
	ID       string    `yaml:"id"`
	Match    MatchSpec `yaml:"match"`
	Response string    `yaml:"response"`
}

// ScopeRules are the two scope trigger tables, checked in this order.
type ScopeRules struct {
	OutOfScope []TriggerRule `yaml:"out_of_scope"`
	Unsafe     []TriggerRule `yaml:"unsafe"`
}

// SlotTier maps a slot value to the phrases that detect it.
type SlotTier struct {
	Value   string   `yaml:"value"`
	Phrases []string `yaml:"phrases"`
}

// SlotVocabulary lists detection phrases per slot, tiers in priority order.
type SlotVocabulary struct {
	Ability []SlotTier `yaml:"ability"`
	Terrain []SlotTier `yaml:"terrain"`
	Child   []string   `yaml:"child"`
	Weight  []string   `yaml:"weight"`
}

// AbilityRow maps an ability tier to its boot flex and DIN ranges.
type AbilityRow struct {
	Ability  string     `yaml:"ability"`
	BootFlex [2]int     `yaml:"boot_flex"`
	DIN      [2]float64 `yaml:"din"`
}

// TerrainRow maps a terrain value to ski type, waist width, and binding.
type TerrainRow struct {
	Terrain    string `yaml:"terrain"`
	SkiType    string `yaml:"ski_type"`
	WaistWidth [2]int `yaml:"waist_width"`
	Binding    string `yaml:"binding"`
}

// SynthesisTables are the heuristic range tables.
type SynthesisTables struct {
	DefaultAbility string       `yaml:"default_ability"`
	Abilities      []AbilityRow `yaml:"abilities"`
	Terrains       []TerrainRow `yaml:"terrains"`
	DefaultTerrain TerrainRow   `yaml:"default_terrain"`
}

// GoldenKind distinguishes structured answers from plain notices.
type GoldenKind string

const (
	// GoldenRecommendation entries must parse as a full recommendation.
	GoldenRecommendation GoldenKind = "recommendation"

	// GoldenNotice entries are free text returned verbatim.
	GoldenNotice GoldenKind = "notice"
)

// GoldenEntry is one canned answer.
type GoldenEntry struct {
	ID       string     `yaml:"id"`
	Kind     GoldenKind `yaml:"kind"`
	Match    MatchSpec  `yaml:"match"`
	Response string     `yaml:"response"`
}

// =============================================================================
// Defaults
// =============================================================================

const (
	// DefaultHistoryMaxChars is the default trailing history window.
	DefaultHistoryMaxChars = 8000

	// DefaultAbility is the synthesis fallback when no ability is detected.
	DefaultAbility = "Beginner"

	// MaxYAMLFileSize caps rules files read from disk.
	MaxYAMLFileSize = 1 << 20
)

// ErrEmptyRules is returned when no YAML data is supplied.
var ErrEmptyRules = errors.New("empty rules data")

// =============================================================================
// Singleton Rule Set
// =============================================================================

var (
	rulesMu      sync.RWMutex
	rulesOnce    sync.Once
	cachedRules  *RuleSet
	rulesLoadErr error
)

// GetRuleSet returns the cached embedded rule set.
//
// Description:
//
//	Loads the embedded rules on first call and caches the result, including
//	a load error, for subsequent calls.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//
// Outputs:
//
//	*RuleSet - The loaded rules. Never nil on success.
//	error - Non-nil if loading or validation failed.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func GetRuleSet(ctx context.Context) (*RuleSet, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetRuleSet: ctx must not be nil")
	}

	rulesMu.RLock()
	if cachedRules != nil || rulesLoadErr != nil {
		rs, err := cachedRules, rulesLoadErr
		rulesMu.RUnlock()
		return rs, err
	}
	rulesMu.RUnlock()

	rulesMu.Lock()
	defer rulesMu.Unlock()

	if cachedRules != nil || rulesLoadErr != nil {
		return cachedRules, rulesLoadErr
	}

	rulesOnce.Do(func() {
		cachedRules, rulesLoadErr = LoadRuleSet(ctx, defaultRulesYAML)
	})

	return cachedRules, rulesLoadErr
}

// ResetRuleSet clears the cached rule set. For tests.
//
// Thread Safety: Safe for concurrent use.
func ResetRuleSet() {
	rulesMu.Lock()
	defer rulesMu.Unlock()
	cachedRules = nil
	rulesLoadErr = nil
	rulesOnce = sync.Once{}
}

// LoadRuleSetFile reads and loads a rules file from disk.
//
// An empty path loads the embedded defaults.
func LoadRuleSetFile(ctx context.Context, path string) (*RuleSet, error) {
	if path == "" {
		return LoadRuleSet(ctx, defaultRulesYAML)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("LoadRuleSetFile: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadRuleSetFile: %s exceeds maximum size (%d > %d)", path, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadRuleSetFile: %w", err)
	}
	return LoadRuleSet(ctx, data)
}

// LoadRuleSet loads and validates a RuleSet from YAML bytes.
//
// Description:
//
//	Parses the YAML, applies defaults for missing fields, trims template and
//	response text, and validates every table for consistency (non-empty IDs
//	and predicates, well-ordered ranges, known ability tiers).
//
// Inputs:
//
//	ctx - Context for tracing.
//	data - Raw YAML bytes to parse.
//
// Outputs:
//
//	*RuleSet - The validated rules.
//	error - Non-nil if parsing or validation fails.
func LoadRuleSet(ctx context.Context, data []byte) (*RuleSet, error) {
	_, span := configTracer.Start(ctx, "config.LoadRuleSet")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadRuleSet: %w", ErrEmptyRules)
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadRuleSet: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("LoadRuleSet: parsing YAML: %w", err)
	}

	applyRuleDefaults(&rs)

	if err := validateRuleSet(&rs); err != nil {
		return nil, fmt.Errorf("LoadRuleSet: validation: %w", err)
	}

	span.SetAttributes(
		attribute.Int("judge_rules", len(rs.Judge)),
		attribute.Int("out_of_scope_rules", len(rs.Scope.OutOfScope)),
		attribute.Int("unsafe_rules", len(rs.Scope.Unsafe)),
		attribute.Int("golden_entries", len(rs.Golden)),
	)

	slog.Info("advisor rules loaded",
		slog.Int("version", rs.Version),
		slog.Int("out_of_scope_rules", len(rs.Scope.OutOfScope)),
		slog.Int("unsafe_rules", len(rs.Scope.Unsafe)),
		slog.Int("golden_entries", len(rs.Golden)),
	)

	return &rs, nil
}

func applyRuleDefaults(rs *RuleSet) {
	if rs.History.MaxChars <= 0 {
		rs.History.MaxChars = DefaultHistoryMaxChars
	}
	if rs.Synthesis.DefaultAbility == "" {
		rs.Synthesis.DefaultAbility = DefaultAbility
	}

	rs.Templates.OutOfScope = strings.TrimSpace(rs.Templates.OutOfScope)
	rs.Templates.Safety = strings.TrimSpace(rs.Templates.Safety)
	rs.Templates.Clarification = strings.TrimSpace(rs.Templates.Clarification)

	for i := range rs.Scope.OutOfScope {
		rs.Scope.OutOfScope[i].Response = strings.TrimSpace(rs.Scope.OutOfScope[i].Response)
	}
	for i := range rs.Scope.Unsafe {
		rs.Scope.Unsafe[i].Response = strings.TrimSpace(rs.Scope.Unsafe[i].Response)
	}
	for i := range rs.Golden {
		if rs.Golden[i].Kind == "" {
			rs.Golden[i].Kind = GoldenRecommendation
		}
		rs.Golden[i].Response = strings.TrimSpace(rs.Golden[i].Response)
	}
}

// validateRuleSet checks all tables for consistency.
func validateRuleSet(rs *RuleSet) error {
	if rs.Templates.OutOfScope == "" {
		return fmt.Errorf("templates.out_of_scope must not be empty")
	}
	if rs.Templates.Safety == "" {
		return fmt.Errorf("templates.safety must not be empty")
	}
	if rs.Templates.Clarification == "" {
		return fmt.Errorf("templates.clarification must not be empty")
	}

	if err := validateTriggers("judge", rs.Judge); err != nil {
		return err
	}
	if err := validateTriggers("scope.out_of_scope", rs.Scope.OutOfScope); err != nil {
		return err
	}
	if err := validateTriggers("scope.unsafe", rs.Scope.Unsafe); err != nil {
		return err
	}

	abilities := make(map[string]bool, len(rs.Slots.Ability))
	for i, tier := range rs.Slots.Ability {
		if tier.Value == "" {
			return fmt.Errorf("slots.ability[%d]: value must not be empty", i)
		}
		if len(tier.Phrases) == 0 {
			return fmt.Errorf("slots.ability[%d] (%s): phrases must not be empty", i, tier.Value)
		}
		abilities[tier.Value] = true
	}
	for i, tier := range rs.Slots.Terrain {
		if tier.Value == "" {
			return fmt.Errorf("slots.terrain[%d]: value must not be empty", i)
		}
		if len(tier.Phrases) == 0 {
			return fmt.Errorf("slots.terrain[%d] (%s): phrases must not be empty", i, tier.Value)
		}
	}

	if err := validateSynthesis(&rs.Synthesis, abilities); err != nil {
		return err
	}

	seen := make(map[string]int, len(rs.Golden))
	for i, g := range rs.Golden {
		if g.ID == "" {
			return fmt.Errorf("golden[%d]: id must not be empty", i)
		}
		if j, dup := seen[g.ID]; dup {
			return fmt.Errorf("golden[%d]: duplicate id %q (first at [%d])", i, g.ID, j)
		}
		seen[g.ID] = i
		if len(g.Match.All) == 0 {
			return fmt.Errorf("golden[%d] (%s): match.all must not be empty", i, g.ID)
		}
		if g.Response == "" {
			return fmt.Errorf("golden[%d] (%s): response must not be empty", i, g.ID)
		}
		if g.Kind != GoldenRecommendation && g.Kind != GoldenNotice {
			return fmt.Errorf("golden[%d] (%s): kind must be %q or %q, got %q", i, g.ID, GoldenRecommendation, GoldenNotice, g.Kind)
		}
	}

	return nil
}

func validateTriggers(table string, triggers []TriggerRule) error {
	for i, t := range triggers {
		if t.ID == "" {
			return fmt.Errorf("%s[%d]: id must not be empty", table, i)
		}
		if len(t.Match.All) == 0 {
			return fmt.Errorf("%s[%d] (%s): match.all must not be empty", table, i, t.ID)
		}
	}
	return nil
}

func validateSynthesis(s *SynthesisTables, detectable map[string]bool) error {
	if len(s.Abilities) == 0 {
		return fmt.Errorf("synthesis.abilities must not be empty")
	}
	rows := make(map[string]bool, len(s.Abilities))
	for i, row := range s.Abilities {
		if row.Ability == "" {
			return fmt.Errorf("synthesis.abilities[%d]: ability must not be empty", i)
		}
		if row.BootFlex[0] >= row.BootFlex[1] {
			return fmt.Errorf("synthesis.abilities[%d] (%s): boot_flex low must be below high", i, row.Ability)
		}
		if row.DIN[0] >= row.DIN[1] {
			return fmt.Errorf("synthesis.abilities[%d] (%s): din low must be below high", i, row.Ability)
		}
		rows[row.Ability] = true
	}
	if !rows[s.DefaultAbility] {
		return fmt.Errorf("synthesis.default_ability %q has no abilities row", s.DefaultAbility)
	}
	for value := range detectable {
		if !rows[value] {
			return fmt.Errorf("slots.ability value %q has no synthesis.abilities row", value)
		}
	}

	for i, row := range s.Terrains {
		if err := validateTerrainRow(fmt.Sprintf("synthesis.terrains[%d]", i), row); err != nil {
			return err
		}
		if row.Terrain == "" {
			return fmt.Errorf("synthesis.terrains[%d]: terrain must not be empty", i)
		}
	}
	return validateTerrainRow("synthesis.default_terrain", s.DefaultTerrain)
}

func validateTerrainRow(field string, row TerrainRow) error {
	if row.SkiType == "" {
		return fmt.Errorf("%s: ski_type must not be empty", field)
	}
	switch row.Binding {
	case "Alpine", "Hybrid", "Tech/PIN":
	default:
		return fmt.Errorf("%s (%s): binding must be Alpine, Hybrid, or Tech/PIN, got %q", field, row.SkiType, row.Binding)
	}
	if (row.Binding == "Tech/PIN") != (row.SkiType == "Touring") {
		return fmt.Errorf("%s (%s): Tech/PIN binding is reserved for Touring skis", field, row.SkiType)
	}
	if row.WaistWidth[0] >= row.WaistWidth[1] {
		return fmt.Errorf("%s (%s): waist_width low must be below high", field, row.SkiType)
	}
	return nil
}
