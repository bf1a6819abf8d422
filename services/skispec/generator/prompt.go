// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generator

import (
	"github.com/tmc/langchaingo/llms"

	"github.com/AleutianAI/SkiSpec/services/skispec/advisor"
	"github.com/AleutianAI/SkiSpec/services/skispec/session"
)

// DefaultHistoryChars bounds the conversation text sent to a model.
const DefaultHistoryChars = 8000

// SystemPrompt instructs the model on scope and output format.
const SystemPrompt = `You are SkiSpecAI, a ski equipment compatibility assistant.

You provide structured alpine ski setup guidance for resort and touring skiers.

You provide:
- Ski type classification (All-Mountain, Powder, Park, Touring)
- Ability level classification (Beginner, Intermediate, Advanced, Expert)
- Recommended ski waist width range (in mm)
- Recommended boot flex range
- Binding type guidance (Alpine, Hybrid, Tech/PIN)
- DIN range guidance (range only, never exact values)
- A required safety note about certified technicians

Out of scope categories (refuse and redirect back to ski setup compatibility):
1) Snowboarding gear or snowboard technique
2) Avalanche safety, backcountry risk management, or rescue training
3) Weather forecasts, trip planning, or resort pass comparisons (Epic vs Ikon)
4) Brand-specific shopping or "best brand" recommendations
5) Medical advice or injury-prevention prescriptions

All in-domain answers MUST follow this exact format:

Ski type: ...
Ability level: ...

Recommended ski waist width: ###–### mm
Recommended boot flex: ###–###
Binding type guidance: Alpine | Hybrid | Tech/PIN
DIN guidance: #.#–#.#

Note: Exact DIN should be set by a certified technician.

Always output exactly the required fields in the specified format, ending with the safety note line.`

// example is one few-shot exchange.
type example struct {
	user string
	rec  advisor.Recommendation
}

var fewShot = []example{
	{
		user: "I am a beginner skier who skis only groomed runs at a resort.",
		rec: advisor.Recommendation{
			SkiType: advisor.SkiTypeAllMountain, Ability: advisor.AbilityBeginner,
			WaistWidth: advisor.IntRange{Low: 75, High: 88}, BootFlex: advisor.IntRange{Low: 60, High: 80},
			Binding: advisor.BindingAlpine, DIN: advisor.DecimalRange{Low: 3.0, High: 6.0},
		},
	},
	{
		user: "I am an advanced skier who loves deep powder days.",
		rec: advisor.Recommendation{
			SkiType: advisor.SkiTypePowder, Ability: advisor.AbilityAdvanced,
			WaistWidth: advisor.IntRange{Low: 105, High: 120}, BootFlex: advisor.IntRange{Low: 100, High: 120},
			Binding: advisor.BindingAlpine, DIN: advisor.DecimalRange{Low: 6.0, High: 10.0},
		},
	},
	{
		user: "I want skis only for ski touring and I am intermediate.",
		rec: advisor.Recommendation{
			SkiType: advisor.SkiTypeTouring, Ability: advisor.AbilityIntermediate,
			WaistWidth: advisor.IntRange{Low: 90, High: 105}, BootFlex: advisor.IntRange{Low: 90, High: 110},
			Binding: advisor.BindingTechPin, DIN: advisor.DecimalRange{Low: 5.0, High: 8.0},
		},
	},
	{
		user: "I am an expert skier who skis aggressively on groomed runs.",
		rec: advisor.Recommendation{
			SkiType: advisor.SkiTypeAllMountain, Ability: advisor.AbilityExpert,
			WaistWidth: advisor.IntRange{Low: 80, High: 95}, BootFlex: advisor.IntRange{Low: 120, High: 140},
			Binding: advisor.BindingAlpine, DIN: advisor.DecimalRange{Low: 8.0, High: 12.0},
		},
	},
	{
		user: "My child is 7 years old, weighs 55 pounds, and is learning to ski.",
		rec: advisor.Recommendation{
			SkiType: advisor.SkiTypeAllMountain, Ability: advisor.AbilityBeginner,
			WaistWidth: advisor.IntRange{Low: 65, High: 75}, BootFlex: advisor.IntRange{Low: 40, High: 60},
			Binding: advisor.BindingAlpine, DIN: advisor.DecimalRange{Low: 0.5, High: 2.5},
		},
	},
}

// BuildPrompt assembles the chat messages sent to a model.
//
// Description:
//
//	System prompt, then the few-shot exchanges, then as much of the
//	session history as fits in maxChars counted from the most recent turn,
//	then the current message. Turns are never split.
//
// Inputs:
//
//	history - Prior turns of the session, oldest first.
//	message - The current user message.
//	maxChars - History budget. Zero or negative uses DefaultHistoryChars.
//
// Outputs:
//
//	[]llms.MessageContent - Messages ready for llms.Model.GenerateContent.
func BuildPrompt(history []session.Turn, message string, maxChars int) []llms.MessageContent {
	if maxChars <= 0 {
		maxChars = DefaultHistoryChars
	}

	msgs := make([]llms.MessageContent, 0, 1+2*len(fewShot)+len(history)+1)
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, SystemPrompt))
	for _, ex := range fewShot {
		msgs = append(msgs,
			llms.TextParts(llms.ChatMessageTypeHuman, ex.user),
			llms.TextParts(llms.ChatMessageTypeAI, advisor.Render(ex.rec)),
		)
	}

	start := len(history)
	used := 0
	for start > 0 {
		n := len(history[start-1].Text)
		if used+n > maxChars {
			break
		}
		used += n
		start--
	}
	for _, turn := range history[start:] {
		role := llms.ChatMessageTypeHuman
		if turn.Role == session.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(role, turn.Text))
	}

	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, message))
}
