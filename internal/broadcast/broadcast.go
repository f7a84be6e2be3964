// Package broadcast implements the generic typed listener list (C12):
// register/unregister/broadcast with async per-listener dispatch through
// an injected executor. Grounded on webhook.Dispatcher's queue+worker+
// atomic-closed-flag shape (internal/webhook/dispatcher.go), generalized
// from a single hardcoded event type to any T and from an owned worker
// goroutine to the shared interfaces.Executor collaborator (spec §9
// "ExecutorLike... no module-level global thread pool").
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/TimurManjosov/goflagship/internal/interfaces"
	"github.com/TimurManjosov/goflagship/internal/logging"
	"github.com/TimurManjosov/goflagship/internal/telemetry"
)

// NoopExecutor runs nothing — broadcasts become no-ops, matching the
// spec's "test mode" requirement (spec §9, §4.12).
type NoopExecutor struct{}

func (NoopExecutor) Submit(func()) {}

// GoExecutor submits each task as its own goroutine. This is the runtime
// default; unlike webhook.Dispatcher's single worker pulling off one
// channel, listener dispatch here must not serialize unrelated listeners
// behind one slow one.
type GoExecutor struct{}

func (GoExecutor) Submit(task func()) { go task() }

// PoolExecutor runs submitted tasks across a fixed number of worker
// goroutines pulling off one queue, the bounded-concurrency counterpart
// to GoExecutor. Grounded on webhook.Dispatcher's queue-channel +
// fixed-worker-count shape, generalized from one worker to a
// configurable pool size (config's ExecutorPoolSize). A full queue drops
// the task rather than blocking the broadcaster.
type PoolExecutor struct {
	tasks chan func()
	done  chan struct{}
}

// NewPoolExecutor starts size workers draining a queue of depth
// queueDepth. size <= 0 is coerced to 1.
func NewPoolExecutor(size, queueDepth int) *PoolExecutor {
	if size <= 0 {
		size = 1
	}
	if queueDepth <= 0 {
		queueDepth = size * 16
	}
	p := &PoolExecutor{tasks: make(chan func(), queueDepth), done: make(chan struct{})}
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *PoolExecutor) worker() {
	for {
		select {
		case task := <-p.tasks:
			task()
		case <-p.done:
			return
		}
	}
}

// Submit enqueues task, dropping it silently if the queue is full.
func (p *PoolExecutor) Submit(task func()) {
	select {
	case p.tasks <- task:
	default:
	}
}

// Close stops all workers; queued-but-undispatched tasks are discarded.
func (p *PoolExecutor) Close() {
	close(p.done)
}

type listenerEntry[T any] struct {
	id int64
	fn func(T)
}

// Broadcaster is a copy-on-write listener list (spec §5 "add/remove never
// blocks broadcast").
type Broadcaster[T any] struct {
	mu       sync.Mutex
	snapshot []listenerEntry[T]
	nextID   int64
	executor interfaces.Executor
	log      zeroLogger
	closed   int32
}

// zeroLogger is the narrow slice of zerolog.Logger this package needs,
// named so broadcast doesn't import zerolog directly for just one call.
type zeroLogger interface {
	Warn(msg string, err error)
}

type componentLogger struct{ name string }

func (l componentLogger) Warn(msg string, err error) {
	logging.For(l.name).Warn().Err(err).Msg(msg)
}

// New builds a Broadcaster dispatching through executor. Pass NoopExecutor
// for test-mode no-op broadcasts.
func New[T any](executor interfaces.Executor, component string) *Broadcaster[T] {
	if executor == nil {
		executor = NoopExecutor{}
	}
	return &Broadcaster[T]{executor: executor, log: componentLogger{name: component}}
}

// Register adds a listener and returns a func to remove it.
func (b *Broadcaster[T]) Register(listener func(T)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	next := make([]listenerEntry[T], len(b.snapshot), len(b.snapshot)+1)
	copy(next, b.snapshot)
	next = append(next, listenerEntry[T]{id: id, fn: listener})
	b.snapshot = next
	b.mu.Unlock()

	return func() { b.unregister(id) }
}

func (b *Broadcaster[T]) unregister(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := make([]listenerEntry[T], 0, len(b.snapshot))
	for _, e := range b.snapshot {
		if e.id != id {
			next = append(next, e)
		}
	}
	b.snapshot = next
}

// Broadcast submits one dispatch task per registered listener. Listener
// panics are caught and logged, never propagated (spec §7 "Listener
// exceptions are caught and logged at warn").
func (b *Broadcaster[T]) Broadcast(event T) {
	if atomic.LoadInt32(&b.closed) != 0 {
		return
	}
	b.mu.Lock()
	listeners := b.snapshot
	b.mu.Unlock()

	for _, e := range listeners {
		fn := e.fn
		b.executor.Submit(func() {
			defer func() {
				if r := recover(); r != nil {
					telemetry.BroadcastDispatches.WithLabelValues("panic").Inc()
					b.log.Warn("listener panicked", panicToError(r))
				}
			}()
			fn(event)
			telemetry.BroadcastDispatches.WithLabelValues("ok").Inc()
		})
	}
}

// Close marks the broadcaster closed; further Broadcast calls are no-ops.
func (b *Broadcaster[T]) Close() {
	atomic.StoreInt32(&b.closed, 1)
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errString{v: r}
}

type errString struct{ v any }

func (e errString) Error() string { return "panic: " + toString(e.v) }

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if stringer, ok := v.(interface{ String() string }); ok {
		return stringer.String()
	}
	return "unknown"
}
