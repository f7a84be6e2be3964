package datasource

import (
	"testing"
	"time"

	"github.com/TimurManjosov/goflagship/internal/interfaces"
)

func TestOutageTracker_NilReceiverIsNoop(t *testing.T) {
	var tr *OutageTracker
	tr.RecordError(interfaces.ErrorInfo{Kind: interfaces.StatusErrorKindNetworkIO})
	tr.Recover()
}

func TestOutageTracker_FiresLogAfterTimeout(t *testing.T) {
	fired := make(chan map[outageKey]int, 1)
	tr := NewOutageTracker(20 * time.Millisecond)
	tr.log = func(counts map[outageKey]int) { fired <- counts }

	tr.RecordError(interfaces.ErrorInfo{Kind: interfaces.StatusErrorKindNetworkIO})
	tr.RecordError(interfaces.ErrorInfo{Kind: interfaces.StatusErrorKindNetworkIO})

	select {
	case counts := <-fired:
		total := 0
		for _, n := range counts {
			total += n
		}
		if total != 2 {
			t.Fatalf("expected 2 accumulated errors, got %d", total)
		}
	case <-time.After(time.Second):
		t.Fatal("expected outage log to fire after the logging timeout")
	}
}

func TestOutageTracker_RecoverCancelsPendingTimerAndDiscardsCounts(t *testing.T) {
	fired := make(chan map[outageKey]int, 1)
	tr := NewOutageTracker(30 * time.Millisecond)
	tr.log = func(counts map[outageKey]int) { fired <- counts }

	tr.RecordError(interfaces.ErrorInfo{Kind: interfaces.StatusErrorKindNetworkIO})
	tr.Recover()

	select {
	case <-fired:
		t.Fatal("expected Recover to cancel the pending outage log before it fired")
	case <-time.After(80 * time.Millisecond):
		// no log fired, as expected
	}
}

func TestOutageTracker_ZeroTimeoutNeverFires(t *testing.T) {
	fired := make(chan map[outageKey]int, 1)
	tr := NewOutageTracker(0)
	tr.log = func(counts map[outageKey]int) { fired <- counts }

	tr.RecordError(interfaces.ErrorInfo{Kind: interfaces.StatusErrorKindNetworkIO})

	select {
	case <-fired:
		t.Fatal("expected a zero logging timeout to never fire")
	case <-time.After(50 * time.Millisecond):
	}
}
