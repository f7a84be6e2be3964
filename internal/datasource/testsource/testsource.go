// Package testsource is a scriptable fake of interfaces.DataSource for
// tests of anything wired against the data-source sink (C8), grounded on
// the teacher's habit of shipping a Memory*/fake counterpart next to
// every external-facing interface (internal/store/memory.go,
// internal/bigsegments/teststore). It drives a caller-supplied
// DataSourceUpdateSink directly rather than talking to any wire
// protocol, so tests can assert on sink/status behavior without a real
// poller or stream.
package testsource

import (
	"context"
	"sync"

	"github.com/TimurManjosov/goflagship/internal/interfaces"
	"github.com/TimurManjosov/goflagship/internal/ldmodel"
)

// Source is a test double for interfaces.DataSource. Start returns
// immediately with a channel that closes once PushInit has been called
// at least once, mirroring a real source's "became ready"
// signal.
type Source struct {
	sink interfaces.DataSourceUpdateSink

	mu      sync.Mutex
	ready   chan struct{}
	started bool
	closed  bool
}

// New builds a Source that writes into sink.
func New(sink interfaces.DataSourceUpdateSink) *Source {
	return &Source{sink: sink, ready: make(chan struct{})}
}

// Start marks the source started; it does not push anything by itself.
// Call PushInit/PushUpsert/Fail from the test to drive behavior.
func (s *Source) Start(ctx context.Context) <-chan struct{} {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return s.ready
}

// Close marks the source closed. Further Push* calls are no-ops.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.sink.UpdateStatus(interfaces.DataSourceOff, nil)
	}
	return nil
}

func (s *Source) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// PushInit writes a full snapshot through the sink and signals readiness
// the first time it's called, matching a real source's "initial payload
// received" transition to VALID.
func (s *Source) PushInit(snapshot map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor) bool {
	if s.isClosed() {
		return false
	}
	ok := s.sink.Init(context.Background(), snapshot)
	s.signalReady()
	return ok
}

// PushUpsert writes one item through the sink.
func (s *Source) PushUpsert(kind ldmodel.DataKind, key string, item ldmodel.ItemDescriptor) bool {
	if s.isClosed() {
		return false
	}
	return s.sink.Upsert(context.Background(), kind, key, item)
}

// Fail drives the sink's status FSM into INTERRUPTED (or OFF, for a
// terminal failure) with the given error, simulating a transport fault.
func (s *Source) Fail(state interfaces.DataSourceState, errInfo *interfaces.ErrorInfo) {
	if s.isClosed() {
		return
	}
	s.sink.UpdateStatus(state, errInfo)
	if state == interfaces.DataSourceOff {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	}
}

func (s *Source) signalReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready == nil {
		return
	}
	select {
	case <-s.ready:
		// already closed
	default:
		close(s.ready)
	}
}
