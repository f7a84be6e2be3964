// Package events implements the evaluation-counter summarizer and the
// migration-op tracker (C11, spec §4.11). The testable-time idiom is
// grounded on audit.Clock/IDGenerator (internal/audit/service.go); event
// identity uses google/uuid the same way internal/webhook does for
// delivery IDs.
package events

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TimurManjosov/goflagship/internal/telemetry"
)

// Clock abstracts time.Now for deterministic tests, mirroring
// audit.Clock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// EvaluationEvent is what the evaluator hands the summarizer after each
// call.
type EvaluationEvent struct {
	FlagKey      string
	FlagVersion  int
	ContextKinds []string
	Variation    int // evaluator.NoVariation for an error result
	Value        any
	Default      any
	CreationDate time.Time
}

type counterKey struct {
	FlagKey      string
	ContextKinds string
	Variation    int
	FlagVersion  int
}

type counterValue struct {
	Count   int
	Value   any
	Default any
}

// Summary is the immutable output of Snapshot.
type Summary struct {
	StartDate time.Time
	EndDate   time.Time
	Counters  []CounterEntry
}

// CounterEntry is one flattened (flagKey, contextKinds, variation,
// version) -> count row.
type CounterEntry struct {
	FlagKey      string
	ContextKinds string
	Variation    int
	FlagVersion  int
	Count        int
	Value        any
	Default      any
}

// Summarizer is a single-writer, non-thread-safe counter table (spec
// §4.11, §5 "assumed to be owned by a single event-processing worker").
type Summarizer struct {
	clock     Clock
	counters  map[counterKey]*counterValue
	startDate time.Time
	endDate   time.Time
	started   bool
}

// NewSummarizer builds an empty summarizer using clock for timestamps.
func NewSummarizer(clock Clock) *Summarizer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Summarizer{clock: clock, counters: map[counterKey]*counterValue{}}
}

// Summarize increments the counter for e's key and tracks the summary
// window's min/max creation timestamps.
func (s *Summarizer) Summarize(e EvaluationEvent) {
	when := e.CreationDate
	if when.IsZero() {
		when = s.clock.Now()
	}
	if !s.started || when.Before(s.startDate) {
		s.startDate = when
	}
	if !s.started || when.After(s.endDate) {
		s.endDate = when
	}
	s.started = true

	key := counterKey{
		FlagKey:      e.FlagKey,
		ContextKinds: strings.Join(e.ContextKinds, ","),
		Variation:    e.Variation,
		FlagVersion:  e.FlagVersion,
	}
	cv, ok := s.counters[key]
	if !ok {
		cv = &counterValue{Value: e.Value, Default: e.Default}
		s.counters[key] = cv
	}
	cv.Count++
}

// Snapshot returns an immutable copy of the current counters.
func (s *Summarizer) Snapshot() Summary {
	entries := make([]CounterEntry, 0, len(s.counters))
	for k, v := range s.counters {
		entries = append(entries, CounterEntry{
			FlagKey: k.FlagKey, ContextKinds: k.ContextKinds, Variation: k.Variation, FlagVersion: k.FlagVersion,
			Count: v.Count, Value: v.Value, Default: v.Default,
		})
	}
	return Summary{StartDate: s.startDate, EndDate: s.endDate, Counters: entries}
}

// Clear resets the table to empty — a second Snapshot after Clear equals
// the initial empty summary (spec §8).
func (s *Summarizer) Clear() {
	s.counters = map[counterKey]*counterValue{}
	s.startDate = time.Time{}
	s.endDate = time.Time{}
	s.started = false
	telemetry.SummarizerFlushes.Inc()
}

// NewEventID generates a unique identifier for an emitted event, the
// summarizer/tracker's analogue of webhook's delivery ID.
func NewEventID() string {
	return uuid.NewString()
}
