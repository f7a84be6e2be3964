package events

import (
	"errors"
	"time"
)

// Origin is which implementation a migration operation ran against.
type Origin string

const (
	OriginOld Origin = "old"
	OriginNew Origin = "new"
)

// ErrLatencyWithoutInvocation guards the tracker's core invariant: you
// cannot report how long something took if it was never recorded as
// having run (spec §4.11 "refuses to emit if invariants are violated").
var ErrLatencyWithoutInvocation = errors.New("events: latency recorded for an origin that was never invoked")

// MigrationEvent is the flushed output of one MigrationOpTracker.
type MigrationEvent struct {
	ID               string
	Op               string
	CreationDate     time.Time
	Invoked          map[Origin]bool
	Latencies        map[Origin]time.Duration
	Errors           map[Origin]bool
	ConsistencyCheck *bool
}

// MigrationOpTracker is an evaluation-scoped helper: one instance per
// migration-flagged operation invocation.
type MigrationOpTracker struct {
	op           string
	clock        Clock
	checkRatio   *int
	sampleRoll   func() int // returns 0..99; consulted only for a ratio strictly between 0 and 100
	invoked      map[Origin]bool
	latencies    map[Origin]time.Duration
	errs         map[Origin]bool
	consistent   *bool
	sampledCheck bool
}

// NewMigrationOpTracker builds a tracker for one migration op invocation.
// checkRatio is the percent (0-100) of invocations that should sample a
// consistency check; sampleRoll supplies the random roll (injected so
// tests are deterministic). A nil checkRatio or one of 100 or more always
// samples without a roll; a nil sampleRoll makes a ratio strictly between
// 0 and 100 never sample.
func NewMigrationOpTracker(op string, clock Clock, checkRatio *int, sampleRoll func() int) *MigrationOpTracker {
	if clock == nil {
		clock = SystemClock{}
	}
	t := &MigrationOpTracker{
		op: op, clock: clock, checkRatio: checkRatio, sampleRoll: sampleRoll,
		invoked: map[Origin]bool{}, latencies: map[Origin]time.Duration{}, errs: map[Origin]bool{},
	}
	t.sampledCheck = t.rollForConsistencyCheck()
	return t
}

func (t *MigrationOpTracker) rollForConsistencyCheck() bool {
	if t.checkRatio == nil {
		return true // nil ratio means "always sampled" per spec §3 MigrationSettings
	}
	if *t.checkRatio <= 0 {
		return false
	}
	if *t.checkRatio >= 100 {
		return true
	}
	if t.sampleRoll == nil {
		return false
	}
	return t.sampleRoll() < *t.checkRatio
}

// RecordInvocation marks that origin was actually called.
func (t *MigrationOpTracker) RecordInvocation(origin Origin) {
	t.invoked[origin] = true
}

// RecordLatency records how long origin's call took.
func (t *MigrationOpTracker) RecordLatency(origin Origin, d time.Duration) {
	t.latencies[origin] = d
}

// RecordError marks that origin's call failed.
func (t *MigrationOpTracker) RecordError(origin Origin) {
	t.errs[origin] = true
}

// RecordConsistency records the cross-check result, if this invocation
// was sampled for one; a call when not sampled is ignored.
func (t *MigrationOpTracker) RecordConsistency(consistent bool) {
	if !t.sampledCheck {
		return
	}
	t.consistent = &consistent
}

// Build validates invariants and produces the event to flush, or an
// error if the recorded state is inconsistent (spec §4.11).
func (t *MigrationOpTracker) Build() (*MigrationEvent, error) {
	for origin, d := range t.latencies {
		if d > 0 && !t.invoked[origin] {
			return nil, ErrLatencyWithoutInvocation
		}
	}
	return &MigrationEvent{
		ID:               NewEventID(),
		Op:               t.op,
		CreationDate:     t.clock.Now(),
		Invoked:          copyBoolMap(t.invoked),
		Latencies:        copyDurationMap(t.latencies),
		Errors:           copyBoolMap(t.errs),
		ConsistencyCheck: t.consistent,
	}, nil
}

func copyBoolMap(m map[Origin]bool) map[Origin]bool {
	out := make(map[Origin]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyDurationMap(m map[Origin]time.Duration) map[Origin]time.Duration {
	out := make(map[Origin]time.Duration, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
