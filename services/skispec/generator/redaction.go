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
	"regexp"
)

// secretPattern pairs a compiled regex with a replacement label.
//
// Thread Safety: Immutable after construction.
type secretPattern struct {
	re          *regexp.Regexp
	replacement string
}

// secretPatterns covers the credentials a provider error can echo back.
//
// Order matters: project keys (sk-proj-) must be redacted before the
// generic sk- pattern gets a chance to leave a partial suffix.
var secretPatterns = []secretPattern{
	{regexp.MustCompile(`sk-proj-[A-Za-z0-9_-]{20,}`), "[REDACTED:openai_project_key]"},
	{regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`), "[REDACTED:openai_key]"},
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]{10,}`), "[REDACTED:bearer_token]"},
	{regexp.MustCompile(`(?i)(api[_-]?key|token)=[A-Za-z0-9._-]{10,}`), "${1}=[REDACTED]"},
	{regexp.MustCompile(`(?i)"(api[_-]?key|token)"\s*:\s*"[^"]{10,}"`), `"${1}":"[REDACTED]"`},
	{regexp.MustCompile(`(https?)://[^\s/:@]+:[^\s/@]+@`), "${1}://[REDACTED]@"},
}

// SafeLogString redacts provider credentials from s before it is logged.
//
// Description:
//
//	Pattern-based only; a key in a format not listed above passes through.
//	Safe on any single-line error string; returns s unchanged when nothing
//	matches.
//
// Thread Safety: Safe for concurrent use.
func SafeLogString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range secretPatterns {
		s = p.re.ReplaceAllString(s, p.replacement)
	}
	return s
}
