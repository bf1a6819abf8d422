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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// generatorRequestsTotal counts generation attempts.
	// Labels: provider, status (ok, error, timeout, rate_limited)
	generatorRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skispec",
		Subsystem: "generator",
		Name:      "requests_total",
		Help:      "Generation attempts by provider and status",
	}, []string{"provider", "status"})

	// generatorDurationSeconds measures provider round trips.
	// Labels: provider
	generatorDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "skispec",
		Subsystem: "generator",
		Name:      "duration_seconds",
		Help:      "Generation latency by provider",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"provider"})
)

func recordGeneration(provider, status string, elapsed time.Duration) {
	generatorRequestsTotal.WithLabelValues(provider, status).Inc()
	if status != statusRateLimited {
		generatorDurationSeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
	}
}
