package datasource

import (
	"sync"
	"time"

	"github.com/TimurManjosov/goflagship/internal/interfaces"
	"github.com/TimurManjosov/goflagship/internal/logging"
)

// outageKey groups error counts the way C9's OutageTracker does (spec
// §4.9): by error kind and HTTP-like status code.
type outageKey struct {
	Kind       interfaces.StatusErrorKind
	StatusCode int
}

// OutageTracker accumulates error counts during a continuous outage and
// emits a single high-severity log if the outage outlives loggingTimeout,
// discarding counts on recovery. Optional: a nil *OutageTracker is a
// no-op (most call sites just skip constructing one).
type OutageTracker struct {
	loggingTimeout time.Duration
	mu             sync.Mutex
	counts         map[outageKey]int
	timer          *time.Timer
	log            func(counts map[outageKey]int)
}

// NewOutageTracker builds a tracker that logs via the standard component
// logger after loggingTimeout of continuous outage.
func NewOutageTracker(loggingTimeout time.Duration) *OutageTracker {
	t := &OutageTracker{loggingTimeout: loggingTimeout, counts: map[outageKey]int{}}
	t.log = t.defaultLog
	return t
}

func (t *OutageTracker) defaultLog(counts map[outageKey]int) {
	log := logging.For("datasource.outage")
	ev := log.Warn()
	total := 0
	for k, n := range counts {
		total += n
		ev = ev.Int("count_"+string(k.Kind), n)
	}
	ev.Int("total", total).Msg("data source outage exceeded logging timeout")
}

// RecordError registers one occurrence of err during an ongoing outage,
// starting the one-shot timer on the first call.
func (t *OutageTracker) RecordError(err interfaces.ErrorInfo) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts[outageKey{Kind: err.Kind, StatusCode: err.StatusCode}]++
	if t.timer == nil && t.loggingTimeout > 0 {
		t.timer = time.AfterFunc(t.loggingTimeout, t.fire)
	}
}

func (t *OutageTracker) fire() {
	t.mu.Lock()
	counts := t.counts
	t.counts = map[outageKey]int{}
	t.timer = nil
	t.mu.Unlock()
	if len(counts) > 0 {
		t.log(counts)
	}
}

// Recover cancels the pending timer and discards accumulated counts —
// the outage ended before it reached the logging threshold.
func (t *OutageTracker) Recover() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.counts = map[outageKey]int{}
}
