package datasource

import (
	"testing"
	"time"

	"github.com/TimurManjosov/goflagship/internal/interfaces"
)

func TestStatusFSM_StartsInitializing(t *testing.T) {
	f := NewStatusFSM()
	state, _, _ := f.Snapshot()
	if state != interfaces.DataSourceInitializing {
		t.Fatalf("expected initial state INITIALIZING, got %v", state)
	}
}

func TestStatusFSM_InterruptedCoercedToInitializingWhileInitializing(t *testing.T) {
	f := NewStatusFSM()
	f.Transition(interfaces.DataSourceInterrupted, nil)
	state, _, _ := f.Snapshot()
	if state != interfaces.DataSourceInitializing {
		t.Fatalf("expected INTERRUPTED to coerce to INITIALIZING before first VALID, got %v", state)
	}
}

func TestStatusFSM_InterruptedAfterValidStaysInterrupted(t *testing.T) {
	f := NewStatusFSM()
	f.Transition(interfaces.DataSourceValid, nil)
	f.Transition(interfaces.DataSourceInterrupted, nil)
	state, _, _ := f.Snapshot()
	if state != interfaces.DataSourceInterrupted {
		t.Fatalf("expected INTERRUPTED to stick once VALID has been reached, got %v", state)
	}
}

func TestStatusFSM_OffIsTerminal(t *testing.T) {
	f := NewStatusFSM()
	f.Transition(interfaces.DataSourceOff, nil)
	f.Transition(interfaces.DataSourceValid, nil)
	state, _, _ := f.Snapshot()
	if state != interfaces.DataSourceOff {
		t.Fatalf("expected OFF to be terminal, got %v", state)
	}
}

func TestStatusFSM_SnapshotRecordsLastError(t *testing.T) {
	f := NewStatusFSM()
	errInfo := &interfaces.ErrorInfo{Kind: interfaces.StatusErrorKindNetworkIO, Message: "boom"}
	f.Transition(interfaces.DataSourceInterrupted, errInfo)
	_, _, lastErr := f.Snapshot()
	if lastErr == nil || lastErr.Message != "boom" {
		t.Fatalf("expected last error to be recorded, got %v", lastErr)
	}
}

func TestStatusFSM_WaitForReturnsTrueWhenStateReached(t *testing.T) {
	f := NewStatusFSM()
	done := make(chan bool, 1)
	go func() { done <- f.WaitFor(interfaces.DataSourceValid, time.Second) }()

	time.Sleep(10 * time.Millisecond)
	f.Transition(interfaces.DataSourceValid, nil)

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected WaitFor to return true once VALID was reached")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not return in time")
	}
}

func TestStatusFSM_WaitForReturnsFalseOnTimeout(t *testing.T) {
	f := NewStatusFSM()
	if f.WaitFor(interfaces.DataSourceValid, 20*time.Millisecond) {
		t.Fatal("expected WaitFor to time out and return false")
	}
}

func TestStatusFSM_WaitForReturnsFalseWhenOff(t *testing.T) {
	f := NewStatusFSM()
	done := make(chan bool, 1)
	go func() { done <- f.WaitFor(interfaces.DataSourceValid, time.Second) }()

	time.Sleep(10 * time.Millisecond)
	f.Transition(interfaces.DataSourceOff, nil)

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected WaitFor to return false once OFF was reached")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not return in time")
	}
}
