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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for the Advisor Pipeline
// =============================================================================

var (
	// advisorResponsesTotal counts responses by outcome and producing stage.
	// Labels: outcome (pass, clarify, refuse, judge), source (scope, golden, slots, generator, synthesizer, judge)
	advisorResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skispec",
		Subsystem: "advisor",
		Name:      "responses_total",
		Help:      "Total advisor responses by outcome and source",
	}, []string{"outcome", "source"})

	// advisorRuleHitsTotal counts which rule decided a response.
	// Labels: source, rule_id
	advisorRuleHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skispec",
		Subsystem: "advisor",
		Name:      "rule_hits_total",
		Help:      "Total responses decided by a specific rule",
	}, []string{"source", "rule_id"})

	// advisorValidationFailuresTotal counts candidates rejected by the validator.
	// Labels: reason (insufficient_slots, malformed:<field>)
	advisorValidationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skispec",
		Subsystem: "advisor",
		Name:      "validation_failures_total",
		Help:      "Candidates downgraded to clarification by the validator",
	}, []string{"reason"})

	// advisorGeneratorFallbacksTotal counts generator failures answered by the synthesizer.
	advisorGeneratorFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "skispec",
		Subsystem: "advisor",
		Name:      "generator_fallbacks_total",
		Help:      "Generator failures that fell back to the heuristic synthesizer",
	})

	// advisorRespondSeconds measures end-to-end pipeline latency.
	// Labels: outcome
	advisorRespondSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "skispec",
		Subsystem: "advisor",
		Name:      "respond_seconds",
		Help:      "End-to-end advisor latency including session access",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"outcome"})

	// advisorRulesReloadsTotal counts rule table swaps.
	// Labels: status (applied, rejected)
	advisorRulesReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skispec",
		Subsystem: "advisor",
		Name:      "rules_reloads_total",
		Help:      "Rule table reload attempts by status",
	}, []string{"status"})
)

// RecordResponse records one completed response.
//
// Inputs:
//   - v: The final verdict.
//   - source: The stage that produced the candidate.
//   - elapsed: Time spent in the pipeline.
func RecordResponse(v Verdict, source Source, elapsed time.Duration) {
	advisorResponsesTotal.WithLabelValues(string(v.Outcome), string(source)).Inc()
	if v.RuleID != "" {
		advisorRuleHitsTotal.WithLabelValues(string(source), v.RuleID).Inc()
	}
	if v.Outcome == OutcomeClarify && v.Reason != "" {
		advisorValidationFailuresTotal.WithLabelValues(v.Reason).Inc()
	}
	advisorRespondSeconds.WithLabelValues(string(v.Outcome)).Observe(elapsed.Seconds())
}

func recordGeneratorFallback() {
	advisorGeneratorFallbacksTotal.Inc()
}

func recordRulesReload(applied bool) {
	status := "applied"
	if !applied {
		status = "rejected"
	}
	advisorRulesReloadsTotal.WithLabelValues(status).Inc()
}
