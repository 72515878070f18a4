// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metrics exposes Prometheus instrumentation for the decision
// loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cyclesTotal counts completed decision cycles.
	// Labels: trigger (interactive, background), result (success, failure, denied, skipped)
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "steward",
		Subsystem: "loop",
		Name:      "cycles_total",
		Help:      "Total decision cycles by trigger and result",
	}, []string{"trigger", "result"})

	// cycleDuration measures wall time per cycle, inference included.
	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "steward",
		Subsystem: "loop",
		Name:      "cycle_duration_seconds",
		Help:      "End-to-end decision cycle duration in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	// inferenceFailures counts backend failures by taxonomy kind.
	// Labels: kind (backend_unreachable, backend_rejected, response_too_large)
	inferenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "steward",
		Subsystem: "inference",
		Name:      "failures_total",
		Help:      "Inference failures by kind",
	}, []string{"kind"})

	// parseFailures counts model responses the grammar rejected.
	parseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "steward",
		Subsystem: "intent",
		Name:      "parse_failures_total",
		Help:      "Model responses rejected by the intent grammar",
	})

	// actionsTotal counts executed intents.
	// Labels: kind (intent kind), allowed (true, false)
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "steward",
		Subsystem: "action",
		Name:      "actions_total",
		Help:      "Intents reaching the executor by kind and policy decision",
	}, []string{"kind", "allowed"})

	// circuitState reports the inference circuit breaker state.
	// 0 = closed, 1 = half-open, 2 = open.
	circuitState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "steward",
		Subsystem: "loop",
		Name:      "circuit_state",
		Help:      "Inference circuit breaker state (0 closed, 1 half-open, 2 open)",
	})
)

// ObserveCycle records one finished cycle.
func ObserveCycle(trigger, result string, elapsed time.Duration) {
	cyclesTotal.WithLabelValues(trigger, result).Inc()
	cycleDuration.Observe(elapsed.Seconds())
}

// ObserveInferenceFailure records a backend failure by kind.
func ObserveInferenceFailure(kind string) {
	inferenceFailures.WithLabelValues(kind).Inc()
}

// ObserveParseFailure records a grammar rejection.
func ObserveParseFailure() {
	parseFailures.Inc()
}

// ObserveAction records an intent reaching the executor.
func ObserveAction(kind string, allowed bool) {
	label := "false"
	if allowed {
		label = "true"
	}
	actionsTotal.WithLabelValues(kind, label).Inc()
}

// SetCircuitState publishes the breaker state.
func SetCircuitState(state float64) {
	circuitState.Set(state)
}
