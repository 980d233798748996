/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package delivery

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrCircuitOpen is returned by Allow while calls are being short-circuited.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

type BreakerSettings struct {
	// FailureRatio trips the breaker when the failure share of the window exceeds it.
	FailureRatio      float64
	MinimumThroughput int
	SamplingDuration  time.Duration
	// Capacity bounds the number of outcomes remembered inside SamplingDuration.
	Capacity      int
	BreakDuration time.Duration
}

type outcome struct {
	at     time.Time
	failed bool
}

// CircuitBreaker guards one downstream dependency shared by every customer.
// Outcomes live in a ring buffer and the trip condition is evaluated after
// each recorded outcome.
type CircuitBreaker struct {
	name     string
	settings BreakerSettings
	now      func() time.Time

	mu        sync.Mutex
	state     CircuitState
	ring      []outcome
	head      int
	size      int
	openUntil time.Time
	probing   bool

	// generation changes on every state transition
	generation uint64

	opened     atomic.Int64
	halfOpened atomic.Int64
	closed     atomic.Int64
}

func NewCircuitBreaker(name string, settings BreakerSettings, now func() time.Time) *CircuitBreaker {
	if now == nil {
		now = time.Now
	}
	if settings.Capacity <= 0 {
		settings.Capacity = 100
	}
	return &CircuitBreaker{
		name:     name,
		settings: settings,
		now:      now,
		ring:     make([]outcome, settings.Capacity),
	}
}

// Permit is handed out by Allow and identifies the admitted call when its
// outcome is recorded or released.
type Permit struct {
	generation uint64
	probe      bool
}

// Allow reports whether a call may go out. Once the break duration has
// elapsed the first caller becomes the half-open probe; everybody else keeps
// failing fast until the probe is recorded or released.
func (cb *CircuitBreaker) Allow() (Permit, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Before(cb.openUntil) {
			return Permit{}, ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probing = true
		return Permit{generation: cb.generation, probe: true}, nil
	case StateHalfOpen:
		if cb.probing {
			return Permit{}, ErrCircuitOpen
		}
		cb.probing = true
		return Permit{generation: cb.generation, probe: true}, nil
	default:
		return Permit{generation: cb.generation}, nil
	}
}

// Record stores the outcome of an allowed call. Outcomes of calls admitted
// under an earlier state are dropped.
func (cb *CircuitBreaker) Record(p Permit, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if p.generation != cb.generation {
		return
	}

	now := cb.now()
	switch cb.state {
	case StateHalfOpen:
		if !p.probe {
			return
		}
		cb.probing = false
		if success {
			cb.resetWindow()
			cb.transition(StateClosed)
			return
		}
		cb.trip(now)
	case StateClosed:
		cb.push(outcome{at: now, failed: !success})
		total, failures := cb.count(now)
		if total >= cb.settings.MinimumThroughput && float64(failures)/float64(total) > cb.settings.FailureRatio {
			cb.trip(now)
		}
	}
}

// Release gives back a permit whose call ended without an outcome, such as a
// call abandoned by its caller. A released probe lets the next caller probe.
func (cb *CircuitBreaker) Release(p Permit) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if p.probe && p.generation == cb.generation && cb.state == StateHalfOpen {
		cb.probing = false
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

type BreakerStats struct {
	State      string `json:"state"`
	Opened     int64  `json:"opened"`
	HalfOpened int64  `json:"half_opened"`
	Closed     int64  `json:"closed"`
}

func (cb *CircuitBreaker) Stats() BreakerStats {
	return BreakerStats{
		State:      cb.State().String(),
		Opened:     cb.opened.Load(),
		HalfOpened: cb.halfOpened.Load(),
		Closed:     cb.closed.Load(),
	}
}

func (cb *CircuitBreaker) trip(now time.Time) {
	cb.openUntil = now.Add(cb.settings.BreakDuration)
	cb.resetWindow()
	cb.transition(StateOpen)
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.generation++
	switch to {
	case StateOpen:
		cb.opened.Add(1)
	case StateHalfOpen:
		cb.halfOpened.Add(1)
	case StateClosed:
		cb.closed.Add(1)
	}
	logrus.WithFields(logrus.Fields{
		"breaker": cb.name,
		"from":    from.String(),
		"to":      to.String(),
	}).Warn("circuit breaker state changed")
}

func (cb *CircuitBreaker) push(o outcome) {
	idx := (cb.head + cb.size) % len(cb.ring)
	if cb.size == len(cb.ring) {
		cb.head = (cb.head + 1) % len(cb.ring)
	} else {
		cb.size++
	}
	cb.ring[idx] = o
}

// count drops outcomes older than the sampling window and tallies the rest.
func (cb *CircuitBreaker) count(now time.Time) (total, failures int) {
	cutoff := now.Add(-cb.settings.SamplingDuration)
	for cb.size > 0 && cb.ring[cb.head].at.Before(cutoff) {
		cb.head = (cb.head + 1) % len(cb.ring)
		cb.size--
	}
	for i := 0; i < cb.size; i++ {
		if cb.ring[(cb.head+i)%len(cb.ring)].failed {
			failures++
		}
	}
	return cb.size, failures
}

func (cb *CircuitBreaker) resetWindow() {
	cb.head = 0
	cb.size = 0
}
