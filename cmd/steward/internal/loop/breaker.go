// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package loop runs the decision cycle: snapshot, prompt, inference,
// parse, policy, execution, audit. One cycle is in flight at a time.
package loop

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the state of the inference circuit breaker.
//
// # States
//
//   - Closed: Normal operation, inference calls flow through
//   - Open: Too many consecutive transient failures, calls are
//     rejected immediately until the cooldown passes
//   - HalfOpen: Cooldown elapsed, one probe call is allowed
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns a human-readable state name.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// ErrCircuitOpen is returned when the breaker rejects a call.
var ErrCircuitOpen = errors.New("inference circuit is open")

// BreakerConfig controls how the breaker trips and recovers.
type BreakerConfig struct {
	// FailureThreshold is consecutive transient failures before the
	// circuit opens. Default: 3.
	FailureThreshold int

	// Cooldown is how long the circuit stays open before allowing a
	// probe. Default: 2 minutes.
	Cooldown time.Duration

	// OnStateChange is called on transitions, asynchronously.
	OnStateChange func(from, to CircuitState)
}

// CircuitBreaker guards the inference backend.
//
// Thread Safety: safe for concurrent use.
type CircuitBreaker struct {
	config      BreakerConfig
	state       CircuitState
	failures    int
	lastFailure time.Time
	now         func() time.Time
	mu          sync.Mutex
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 3
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 2 * time.Minute
	}
	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
		now:    time.Now,
	}
}

// Allow reports whether a call may proceed, moving an expired open
// circuit to half-open.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailure) > cb.config.Cooldown {
			cb.transitionTo(CircuitHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state != CircuitClosed {
		cb.transitionTo(CircuitClosed)
	}
}

// RecordFailure counts a transient failure and opens the circuit at
// the threshold. A failed half-open probe reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = cb.now()

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive transient failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset forces the circuit closed. Used when the operator knows the
// backend has been fixed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state != CircuitClosed {
		cb.transitionTo(CircuitClosed)
	}
}

// transitionTo changes state; callers hold the lock.
func (cb *CircuitBreaker) transitionTo(state CircuitState) {
	if cb.state == state {
		return
	}
	old := cb.state
	cb.state = state

	if cb.config.OnStateChange != nil {
		// Fire without the lock held so the callback can query the breaker.
		go cb.config.OnStateChange(old, state)
	}
}
