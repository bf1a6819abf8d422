// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// sessionsActive tracks live sessions by backend.
	// Labels: backend (memory, badger)
	sessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "skispec",
		Subsystem: "session",
		Name:      "active",
		Help:      "Number of live sessions by backend",
	}, []string{"backend"})

	// sessionEventsTotal counts session lifecycle events.
	// Labels: backend, event (created, deleted)
	sessionEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skispec",
		Subsystem: "session",
		Name:      "events_total",
		Help:      "Session lifecycle events by backend",
	}, []string{"backend", "event"})
)

func recordSessionCreated(backend string, live int) {
	sessionEventsTotal.WithLabelValues(backend, "created").Inc()
	sessionsActive.WithLabelValues(backend).Set(float64(live))
}

func recordSessionDeleted(backend string, live int) {
	sessionEventsTotal.WithLabelValues(backend, "deleted").Inc()
	sessionsActive.WithLabelValues(backend).Set(float64(live))
}

func recordSessionCount(backend string, live int) {
	sessionsActive.WithLabelValues(backend).Set(float64(live))
}
