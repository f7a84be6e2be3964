// Package datastore implements the in-memory, version-aware item store
// (C6, spec §4.6): per-kind maps guarded by a single RWMutex, atomic
// whole-snapshot init, and last-writer-wins upsert by version. Grounded
// on the teacher's internal/store/memory.go (RWMutex + map[string]Flag),
// generalized from a single flat flags map to a polymorphic map keyed by
// ldmodel.DataKind.
package datastore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/TimurManjosov/goflagship/internal/ldmodel"
	"github.com/TimurManjosov/goflagship/internal/telemetry"
)

// Memory is the default DataStore implementation (interfaces.DataStore).
type Memory struct {
	mu          sync.RWMutex
	data        map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor
	initialized int32
}

// NewMemory builds an empty, uninitialized store.
func NewMemory() *Memory {
	return &Memory{
		data: map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor{
			ldmodel.Features: {},
			ldmodel.Segments: {},
		},
	}
}

// Init atomically replaces all kinds (spec §4.6, §8 "init observed by
// getAll is atomic").
func (m *Memory) Init(ctx context.Context, snapshot map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor) error {
	next := map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor{
		ldmodel.Features: {},
		ldmodel.Segments: {},
	}
	for kind, items := range snapshot {
		dst := next[kind]
		if dst == nil {
			dst = make(map[string]ldmodel.ItemDescriptor, len(items))
		}
		for k, v := range items {
			dst[k] = v
		}
		next[kind] = dst
	}

	m.mu.Lock()
	m.data = next
	m.mu.Unlock()
	atomic.StoreInt32(&m.initialized, 1)
	m.reportSizes()
	return nil
}

// Get returns the descriptor for (kind,key), including tombstones.
func (m *Memory) Get(ctx context.Context, kind ldmodel.DataKind, key string) (ldmodel.ItemDescriptor, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.data[kind][key]
	return item, ok, nil
}

// GetAll returns a snapshot copy of every descriptor under kind.
func (m *Memory) GetAll(ctx context.Context, kind ldmodel.DataKind) (map[string]ldmodel.ItemDescriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.data[kind]
	out := make(map[string]ldmodel.ItemDescriptor, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out, nil
}

// Upsert applies item iff no existing descriptor has version >= item's
// (spec §3 invariant). Returns false for a no-op (stale write).
func (m *Memory) Upsert(ctx context.Context, kind ldmodel.DataKind, key string, item ldmodel.ItemDescriptor) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byKind := m.data[kind]
	if byKind == nil {
		byKind = make(map[string]ldmodel.ItemDescriptor)
		m.data[kind] = byKind
	}
	if existing, ok := byKind[key]; ok && existing.Version >= item.Version {
		return false, nil
	}
	byKind[key] = item
	telemetry.StoreItemCount.WithLabelValues(kind.String()).Set(float64(len(byKind)))
	return true, nil
}

// reportSizes refreshes the per-kind gauge after a full Init.
func (m *Memory) reportSizes() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for kind, items := range m.data {
		telemetry.StoreItemCount.WithLabelValues(kind.String()).Set(float64(len(items)))
	}
}

// IsInitialized reports whether Init has run at least once.
func (m *Memory) IsInitialized(ctx context.Context) bool {
	return atomic.LoadInt32(&m.initialized) != 0
}

// Close is a no-op: the in-memory store owns no external resources.
func (m *Memory) Close() error { return nil }
