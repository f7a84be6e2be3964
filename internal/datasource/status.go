// Package datasource implements the data-source sink (C8) and its
// status state machine (C9), spec §4.8–§4.9. The sink's write-
// serialization and atomic-dedup-flag idiom is grounded on
// webhook.Dispatcher's atomic "closed" flag
// (internal/webhook/dispatcher.go); the status FSM's blocking waitFor
// has no teacher analogue and is built per spec §9's explicit
// "mutex + condition variable, not a pure atomic" requirement.
package datasource

import (
	"sync"
	"time"

	"github.com/TimurManjosov/goflagship/internal/interfaces"
	"github.com/TimurManjosov/goflagship/internal/telemetry"
)

// StatusFSM implements C9: INITIALIZING -> VALID|INTERRUPTED|OFF, with
// INTERRUPTED coerced back to INITIALIZING while still initializing, and
// OFF terminal.
type StatusFSM struct {
	mu         sync.Mutex
	cond       *sync.Cond
	state      interfaces.DataSourceState
	stateSince time.Time
	lastError  *interfaces.ErrorInfo
}

// NewStatusFSM builds an FSM starting in INITIALIZING.
func NewStatusFSM() *StatusFSM {
	f := &StatusFSM{state: interfaces.DataSourceInitializing, stateSince: time.Now()}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Transition applies a requested state change, coercing INTERRUPTED back
// to INITIALIZING while still initializing and refusing any change once
// OFF (spec §4.9). Waiters are woken on every call, including coerced or
// no-op transitions, since lastError may still have changed.
func (f *StatusFSM) Transition(requested interfaces.DataSourceState, err *interfaces.ErrorInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == interfaces.DataSourceOff {
		return
	}

	next := requested
	if f.state == interfaces.DataSourceInitializing && requested == interfaces.DataSourceInterrupted {
		next = interfaces.DataSourceInitializing
	}
	if next != f.state {
		f.state = next
		f.stateSince = time.Now()
		telemetry.DataSourceStatusTransitions.WithLabelValues(string(next)).Inc()
	}
	if err != nil {
		f.lastError = err
	}
	f.cond.Broadcast()
}

// Snapshot returns the current state, its since-timestamp, and the last
// recorded error.
func (f *StatusFSM) Snapshot() (interfaces.DataSourceState, time.Time, *interfaces.ErrorInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.stateSince, f.lastError
}

// WaitFor blocks until state == desired (returns true), state == OFF
// (returns false), or timeout elapses (returns false). A zero timeout
// waits indefinitely.
func (f *StatusFSM) WaitFor(desired interfaces.DataSourceState, timeout time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	timedOut := false
	var timer *time.Timer
	if timeout > 0 {
		timer = time.AfterFunc(timeout, func() {
			f.mu.Lock()
			timedOut = true
			f.cond.Broadcast()
			f.mu.Unlock()
		})
		defer timer.Stop()
	}

	for f.state != desired && f.state != interfaces.DataSourceOff && !timedOut {
		f.cond.Wait()
	}
	return f.state == desired
}
