// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCycle(t *testing.T) {
	before := testutil.ToFloat64(cyclesTotal.WithLabelValues("background", "success"))
	ObserveCycle("background", "success", 750*time.Millisecond)
	after := testutil.ToFloat64(cyclesTotal.WithLabelValues("background", "success"))
	assert.Equal(t, before+1, after)
}

func TestObserveAction(t *testing.T) {
	before := testutil.ToFloat64(actionsTotal.WithLabelValues("TerminateProcess", "false"))
	ObserveAction("TerminateProcess", false)
	after := testutil.ToFloat64(actionsTotal.WithLabelValues("TerminateProcess", "false"))
	assert.Equal(t, before+1, after)
}

func TestObserveInferenceFailure(t *testing.T) {
	before := testutil.ToFloat64(inferenceFailures.WithLabelValues("backend_unreachable"))
	ObserveInferenceFailure("backend_unreachable")
	after := testutil.ToFloat64(inferenceFailures.WithLabelValues("backend_unreachable"))
	assert.Equal(t, before+1, after)
}

func TestSetCircuitState(t *testing.T) {
	SetCircuitState(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(circuitState))
	SetCircuitState(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(circuitState))
}
