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

// Synthesize builds a recommendation from the range tables.
//
// Description:
//
//	Total over any slot set. An unknown ability uses the default tier and an
//	unknown or unlisted terrain uses the default terrain row. Boot flex and
//	DIN come from the ability row; ski type, waist width, and binding come
//	from the terrain row.
//
// Inputs:
//
//	slots - The extracted slot set.
//
// Outputs:
//
//	Recommendation - Always complete, every range with low below high.
//
// Thread Safety: Safe for concurrent use.
func (t *Tables) Synthesize(slots SlotSet) Recommendation {
	ability := slots.Ability
	row, ok := t.abilityRows[ability]
	if !ok {
		ability = t.defaultAbility
		row = t.abilityRows[ability]
	}

	terrain, ok := t.terrainRows[slots.Terrain]
	if !ok {
		terrain = t.defaultTerrain
	}

	return Recommendation{
		SkiType:    terrain.SkiType,
		Ability:    ability,
		WaistWidth: IntRange{Low: terrain.WaistWidth[0], High: terrain.WaistWidth[1]},
		BootFlex:   IntRange{Low: row.BootFlex[0], High: row.BootFlex[1]},
		Binding:    Binding(terrain.Binding),
		DIN:        DecimalRange{Low: row.DIN[0], High: row.DIN[1]},
	}
}
