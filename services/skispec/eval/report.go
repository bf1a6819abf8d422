// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package eval

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/AleutianAI/SkiSpec/services/skispec/advisor"
)

// Result is the outcome of one case.
type Result struct {
	Case    Case
	Got     string
	Pass    bool
	Reason  string
	Diff    string
	Judge   *advisor.JudgeVerdict
	Err     error
	Elapsed time.Duration
}

// Report is the outcome of a run.
type Report struct {
	Results []Result
	Passed  int
	Elapsed time.Duration
}

// Total returns the number of cases run.
func (r *Report) Total() int { return len(r.Results) }

// Failed returns the failing results in case order.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Pass {
			out = append(out, res)
		}
	}
	return out
}

// OK reports whether every case passed.
func (r *Report) OK() bool { return r.Passed == len(r.Results) }

// UnifiedDiff returns a unified diff of the normalized expected and actual
// texts, or "" when they are equal.
func UnifiedDiff(expected, got string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(advisor.NormalizeText(expected) + "\n"),
		B:        difflib.SplitLines(advisor.NormalizeText(got) + "\n"),
		FromFile: "expected",
		ToFile:   "got",
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}

// ColorEnabled reports whether f is a terminal that should receive colour.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// reportStyles holds the styles used by Render.
type reportStyles struct {
	pass    lipgloss.Style
	fail    lipgloss.Style
	heading lipgloss.Style
	muted   lipgloss.Style
	added   lipgloss.Style
	removed lipgloss.Style
}

func newReportStyles() reportStyles {
	return reportStyles{
		pass:    lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true),
		fail:    lipgloss.NewStyle().Foreground(lipgloss.Color("#F44336")).Bold(true),
		heading: lipgloss.NewStyle().Bold(true),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		added:   lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")),
		removed: lipgloss.NewStyle().Foreground(lipgloss.Color("#F44336")),
	}
}

// Render writes a human-readable report to w.
//
// Description:
//
//	One PASS/FAIL line per case, a summary line, then details for each
//	failure: the message, expected and actual text, and the diff. With
//	color false the output is plain text.
func (r *Report) Render(w io.Writer, color bool) error {
	styles := newReportStyles()
	paint := func(s lipgloss.Style, text string) string {
		if !color {
			return text
		}
		return s.Render(text)
	}

	var b strings.Builder
	for _, res := range r.Results {
		status := paint(styles.pass, "PASS")
		if !res.Pass {
			status = paint(styles.fail, "FAIL")
		}
		line := fmt.Sprintf("%s: %s", res.Case.ID, status)
		if res.Judge != nil {
			line += paint(styles.muted, fmt.Sprintf("  (judge: %s)", res.Judge.Verdict))
		}
		b.WriteString(line + "\n")
	}

	rule := strings.Repeat("=", 60)
	b.WriteString("\n" + rule + "\n")
	b.WriteString(paint(styles.heading, fmt.Sprintf("RESULT: %d/%d passed", r.Passed, r.Total())))
	b.WriteString(paint(styles.muted, fmt.Sprintf(" in %s", r.Elapsed.Round(time.Millisecond))) + "\n")

	failed := r.Failed()
	if len(failed) > 0 {
		b.WriteString("\nFAILED DETAILS:\n")
	}
	for _, res := range failed {
		b.WriteString("\n" + strings.Repeat("-", 60) + "\n")
		fmt.Fprintf(&b, "Case: %s (%s)\n", res.Case.ID, res.Case.Expect)
		fmt.Fprintf(&b, "User: %s\n", res.Case.Message)
		fmt.Fprintf(&b, "Reason: %s\n", res.Reason)
		if res.Err != nil {
			continue
		}
		if res.Case.Expect == ExpectExact {
			b.WriteString("\n--- Expected ---\n" + advisor.NormalizeText(res.Case.Answer) + "\n")
		}
		b.WriteString("\n--- Got ---\n" + advisor.NormalizeText(res.Got) + "\n")
		if res.Diff != "" {
			b.WriteString("\n--- Diff ---\n")
			for _, l := range strings.SplitAfter(res.Diff, "\n") {
				switch {
				case strings.HasPrefix(l, "+") && !strings.HasPrefix(l, "+++"):
					b.WriteString(paint(styles.added, strings.TrimSuffix(l, "\n")) + suffixNewline(l))
				case strings.HasPrefix(l, "-") && !strings.HasPrefix(l, "---"):
					b.WriteString(paint(styles.removed, strings.TrimSuffix(l, "\n")) + suffixNewline(l))
				default:
					b.WriteString(l)
				}
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func suffixNewline(l string) string {
	if strings.HasSuffix(l, "\n") {
		return "\n"
	}
	return ""
}
