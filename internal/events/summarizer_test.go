package events

import (
	"testing"
	"time"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func TestSummarize_IncrementsCounterForRepeatedKey(t *testing.T) {
	s := NewSummarizer(fixedClock{t: time.Unix(1000, 0)})
	ev := EvaluationEvent{FlagKey: "f1", ContextKinds: []string{"user"}, Variation: 0, Value: true, CreationDate: time.Unix(1000, 0)}

	s.Summarize(ev)
	s.Summarize(ev)

	snap := s.Snapshot()
	if len(snap.Counters) != 1 || snap.Counters[0].Count != 2 {
		t.Fatalf("expected a single counter entry with count 2, got %+v", snap.Counters)
	}
}

func TestSummarize_DistinctVariationsProduceDistinctCounters(t *testing.T) {
	s := NewSummarizer(nil)
	s.Summarize(EvaluationEvent{FlagKey: "f1", Variation: 0})
	s.Summarize(EvaluationEvent{FlagKey: "f1", Variation: 1})

	snap := s.Snapshot()
	if len(snap.Counters) != 2 {
		t.Fatalf("expected 2 distinct counters for 2 variations, got %v", snap.Counters)
	}
}

func TestSummarize_DistinctFlagVersionsProduceDistinctCounters(t *testing.T) {
	s := NewSummarizer(nil)
	s.Summarize(EvaluationEvent{FlagKey: "f1", FlagVersion: 1})
	s.Summarize(EvaluationEvent{FlagKey: "f1", FlagVersion: 2})

	snap := s.Snapshot()
	if len(snap.Counters) != 2 {
		t.Fatalf("expected a flag-version bump to open a new counter row, got %v", snap.Counters)
	}
}

func TestSummarize_TracksStartAndEndDateAcrossEvents(t *testing.T) {
	s := NewSummarizer(nil)
	early := time.Unix(1000, 0)
	late := time.Unix(2000, 0)
	mid := time.Unix(1500, 0)

	s.Summarize(EvaluationEvent{FlagKey: "f1", CreationDate: mid})
	s.Summarize(EvaluationEvent{FlagKey: "f1", CreationDate: early})
	s.Summarize(EvaluationEvent{FlagKey: "f1", CreationDate: late})

	snap := s.Snapshot()
	if !snap.StartDate.Equal(early) || !snap.EndDate.Equal(late) {
		t.Fatalf("expected window [%v,%v], got [%v,%v]", early, late, snap.StartDate, snap.EndDate)
	}
}

func TestSummarize_ZeroCreationDateFallsBackToClock(t *testing.T) {
	now := time.Unix(5000, 0)
	s := NewSummarizer(fixedClock{t: now})
	s.Summarize(EvaluationEvent{FlagKey: "f1"})

	snap := s.Snapshot()
	if !snap.StartDate.Equal(now) {
		t.Fatalf("expected a zero CreationDate to fall back to the clock, got %v", snap.StartDate)
	}
}

func TestClear_ResetsToEmptySummary(t *testing.T) {
	s := NewSummarizer(nil)
	s.Summarize(EvaluationEvent{FlagKey: "f1", CreationDate: time.Unix(1000, 0)})
	s.Clear()

	snap := s.Snapshot()
	if len(snap.Counters) != 0 || !snap.StartDate.IsZero() || !snap.EndDate.IsZero() {
		t.Fatalf("expected Clear to reset to an empty summary, got %+v", snap)
	}
}

func TestNewEventID_ProducesDistinctIDs(t *testing.T) {
	a := NewEventID()
	b := NewEventID()
	if a == "" || b == "" || a == b {
		t.Fatalf("expected NewEventID to produce distinct non-empty ids, got %q and %q", a, b)
	}
}
