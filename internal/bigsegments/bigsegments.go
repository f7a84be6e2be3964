// Package bigsegments implements the big-segment wrapper (C10, spec
// §4.10): a per-context membership cache in front of a user-supplied
// backend, a scheduled metadata freshness poller, and status broadcast.
// Grounded on snapshot/notify.go's mutex-guarded subscriber fan-out
// (internal/snapshot/notify.go), generalized to a typed status
// broadcaster, plus ld-relay's golang-lru dependency (its go.mod pulls
// in hashicorp/golang-lru for exactly this kind of bounded membership
// cache).
package bigsegments

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/TimurManjosov/goflagship/internal/broadcast"
	"github.com/TimurManjosov/goflagship/internal/interfaces"
	"github.com/TimurManjosov/goflagship/internal/ldmodel"
	"github.com/TimurManjosov/goflagship/internal/logging"
	"github.com/TimurManjosov/goflagship/internal/telemetry"
)

// Status mirrors the wrapper's health as surfaced to evaluation reasons.
type Status struct {
	Available bool
	Stale     bool
}

func (s Status) toReason() ldmodel.BigSegmentsStatus {
	switch {
	case !s.Available:
		return ldmodel.BigSegmentsStoreError
	case s.Stale:
		return ldmodel.BigSegmentsStale
	default:
		return ldmodel.BigSegmentsHealthy
	}
}

type cacheEntry struct {
	membership map[string]bool
	fetchedAt  time.Time
}

// Wrapper is the C10 collaborator the segment matcher calls into.
type Wrapper struct {
	backend    interfaces.BigSegmentStore
	cache      *lru.Cache[string, cacheEntry]
	cacheTTL   time.Duration
	staleAfter time.Duration

	statusMu     sync.Mutex
	status       Status
	havePolled   bool
	pollInterval time.Duration
	ticker       *time.Ticker
	done         chan struct{}
	closeOnce    sync.Once

	statusChanges *broadcast.Broadcaster[Status]
}

// Config bundles the wrapper's tunables.
type Config struct {
	CacheSize    int
	CacheTTL     time.Duration
	StaleAfter   time.Duration
	PollInterval time.Duration
}

// New builds a wrapper around backend. When cfg.PollInterval > 0 it
// starts a goroutine that polls the backend's metadata on that interval;
// status changes are broadcast through statusChanges, which may be nil.
func New(backend interfaces.BigSegmentStore, cfg Config, statusChanges *broadcast.Broadcaster[Status]) *Wrapper {
	size := cfg.CacheSize
	if size <= 0 {
		size = 10000
	}
	cache, _ := lru.New[string, cacheEntry](size)
	w := &Wrapper{
		backend:       backend,
		cache:         cache,
		cacheTTL:      cfg.CacheTTL,
		staleAfter:    cfg.StaleAfter,
		pollInterval:  cfg.PollInterval,
		done:          make(chan struct{}),
		statusChanges: statusChanges,
	}
	if w.pollInterval > 0 {
		w.ticker = time.NewTicker(w.pollInterval)
		go w.pollLoop()
	}
	return w
}

func (w *Wrapper) pollLoop() {
	for {
		select {
		case <-w.ticker.C:
			w.pollMetadata(context.Background())
		case <-w.done:
			return
		}
	}
}

// Contains answers whether contextKey is a member of segmentKey at
// generation, consulting the cache before the backend (spec §4.10,
// §4.4).
func (w *Wrapper) Contains(ctx context.Context, segmentKey string, generation int, contextKey string) (matched bool, status ldmodel.BigSegmentsStatus, ok bool) {
	w.ensurePolled(ctx)

	hashed := HashContextKey(contextKey)
	if entry, hit := w.cache.Get(hashed); hit && time.Since(entry.fetchedAt) < w.cacheTTL {
		telemetry.BigSegmentCacheLookups.WithLabelValues("hit").Inc()
		return lookupMembership(entry.membership, segmentKey, generation), w.currentStatus().toReason(), true
	}
	telemetry.BigSegmentCacheLookups.WithLabelValues("miss").Inc()

	membership, err := w.backend.GetMembership(ctx, hashed)
	if err != nil {
		logging.For("bigsegments").Warn().Err(err).Msg("big segment store query failed")
		return false, ldmodel.BigSegmentsStoreError, false
	}
	w.cache.Add(hashed, cacheEntry{membership: membership, fetchedAt: time.Now()})
	return lookupMembership(membership, segmentKey, generation), w.currentStatus().toReason(), true
}

func lookupMembership(membership map[string]bool, segmentKey string, generation int) bool {
	ref := segmentRef(segmentKey, generation)
	return membership[ref]
}

func segmentRef(segmentKey string, generation int) string {
	return segmentKey + "." + strconv.Itoa(generation)
}

// HashContextKey computes the persisted big-segment cache/backend key:
// base64(SHA256(contextKey)) (spec §4.4, §6).
func HashContextKey(contextKey string) string {
	sum := sha256.Sum256([]byte(contextKey))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ensurePolled triggers a synchronous metadata query on the very first
// status check if the poller hasn't completed one yet (spec §4.10
// "first query to getStatus() ... triggers a synchronous metadata
// query").
func (w *Wrapper) ensurePolled(ctx context.Context) {
	w.statusMu.Lock()
	polled := w.havePolled
	w.statusMu.Unlock()
	if !polled {
		w.pollMetadata(ctx)
	}
}

func (w *Wrapper) pollMetadata(ctx context.Context) {
	meta, err := w.backend.GetMetadata(ctx)
	next := Status{}
	if err != nil {
		next.Available = false
		telemetry.BigSegmentPollSuccesses.WithLabelValues("error").Inc()
	} else {
		next.Available = true
		age := time.Since(time.UnixMilli(meta.LastUpToDateUnixMillis))
		next.Stale = w.staleAfter > 0 && age > w.staleAfter
		telemetry.BigSegmentPollSuccesses.WithLabelValues("ok").Inc()
	}

	w.statusMu.Lock()
	changed := !w.havePolled || next != w.status
	w.status = next
	w.havePolled = true
	w.statusMu.Unlock()

	if changed && w.statusChanges != nil {
		w.statusChanges.Broadcast(next)
	}
}

func (w *Wrapper) currentStatus() Status {
	w.statusMu.Lock()
	defer w.statusMu.Unlock()
	return w.status
}

// GetStatus returns the most recent completed poll, triggering one
// synchronously first if none has completed yet (spec §8 testable
// property).
func (w *Wrapper) GetStatus(ctx context.Context) Status {
	w.ensurePolled(ctx)
	return w.currentStatus()
}

// Close stops the poller and the backend, clearing the cache (spec §5
// "the wrapper owns its cache and the backend handle; closing it closes
// the backend").
func (w *Wrapper) Close() error {
	w.closeOnce.Do(func() {
		if w.ticker != nil {
			w.ticker.Stop()
		}
		close(w.done)
		w.cache.Purge()
	})
	return w.backend.Close()
}
