// Package flagtracker implements C13: derives per-context value-change
// notifications from C12's key-change events by re-evaluating and
// comparing by deep equality. Grounded on snapshot/notify.go's ETag-diff
// idea (internal/snapshot/notify.go — "notify only when the value
// differs"), generalized from an ETag string to an arbitrary evaluated
// value via reflect.DeepEqual.
package flagtracker

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/TimurManjosov/goflagship/internal/broadcast"
	"github.com/TimurManjosov/goflagship/internal/datasource"
	"github.com/TimurManjosov/goflagship/internal/ldcontext"
)

// Evaluate is the narrow evaluator surface the tracker needs: just
// enough to recompute one flag's value for one context.
type Evaluate func(ctx context.Context, flagKey string, c ldcontext.Context, defaultValue any) any

// Tracker layers value-change listeners over a FlagChangeEvent
// broadcaster.
type Tracker struct {
	changes  *broadcast.Broadcaster[datasource.FlagChangeEvent]
	evaluate Evaluate
}

// New builds a Tracker that re-evaluates through evaluate whenever
// changes fires for a watched key.
func New(changes *broadcast.Broadcaster[datasource.FlagChangeEvent], evaluate Evaluate) *Tracker {
	return &Tracker{changes: changes, evaluate: evaluate}
}

// previousValueCell is a one-slot atomic holder so concurrent key-change
// deliveries for the same adapter never race on the "previous value"
// comparison (spec §4.13 "held per adapter in a one-slot atomic cell").
type previousValueCell struct {
	mu  sync.Mutex
	val any
	set bool
}

func (c *previousValueCell) swap(next any) (prev any, hadPrev bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, hadPrev = c.val, c.set
	c.val = next
	c.set = true
	return
}

// AddFlagValueChangeListener subscribes to key-change events for
// flagKey, re-evaluating it for context c on each matching event and
// invoking listener only when the value actually changed. Returns an
// unsubscribe func.
func (t *Tracker) AddFlagValueChangeListener(ctx context.Context, flagKey string, c ldcontext.Context, defaultValue any, listener func(newValue any)) func() {
	cell := &previousValueCell{}
	initial := t.evaluate(ctx, flagKey, c, defaultValue)
	cell.swap(initial)

	var active int32 = 1
	unregister := t.changes.Register(func(event datasource.FlagChangeEvent) {
		if atomic.LoadInt32(&active) == 0 || event.Key != flagKey {
			return
		}
		next := t.evaluate(ctx, flagKey, c, defaultValue)
		prev, hadPrev := cell.swap(next)
		if hadPrev && reflect.DeepEqual(prev, next) {
			return
		}
		listener(next)
	})

	return func() {
		atomic.StoreInt32(&active, 0)
		unregister()
	}
}
