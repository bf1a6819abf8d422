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
	"github.com/AleutianAI/SkiSpec/services/skispec/config"
)

// GoldenMatch is a canned answer selected by MatchGolden.
type GoldenMatch struct {
	ID       string
	Response string

	// Notice is true for free-text entries that are not recommendations.
	Notice bool
}

// MatchGolden returns the first golden entry whose predicate matches the
// current message. The response is returned byte-for-byte as configured.
//
// Session history is deliberately not consulted.
func (t *Tables) MatchGolden(message string) (GoldenMatch, bool) {
	r, ok := t.golden.FirstMatch(message)
	if !ok {
		return GoldenMatch{}, false
	}
	return GoldenMatch{
		ID:       r.ID,
		Response: r.Value.response,
		Notice:   r.Value.kind == config.GoldenNotice,
	}, true
}
