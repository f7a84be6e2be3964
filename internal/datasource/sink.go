package datasource

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/TimurManjosov/goflagship/internal/broadcast"
	"github.com/TimurManjosov/goflagship/internal/depgraph"
	"github.com/TimurManjosov/goflagship/internal/interfaces"
	"github.com/TimurManjosov/goflagship/internal/ldmodel"
	"github.com/TimurManjosov/goflagship/internal/logging"
)

// FlagChangeEvent names a flag whose evaluated value may have changed —
// the unit C8 broadcasts and C13's flag tracker consumes.
type FlagChangeEvent struct {
	Key string
}

// Sink implements DataSourceUpdateSink (spec §4.8): it writes through to
// a DataStore, maintains the dependency graph, and broadcasts flag-
// change events for everything the write affected.
type Sink struct {
	store   interfaces.DataStore
	changes *broadcast.Broadcaster[FlagChangeEvent]
	status  *StatusFSM
	outage  *OutageTracker

	mu    sync.Mutex // serializes init/upsert and graph mutation
	graph *depgraph.Graph

	lastStoreUpdateFailed int32 // atomic dedup flag, webhook.Dispatcher "closed" idiom generalized
}

// NewSink builds a sink writing to store and broadcasting through
// changes. status is shared with anything that needs to observe the data
// source's health (e.g. a readiness endpoint).
func NewSink(store interfaces.DataStore, changes *broadcast.Broadcaster[FlagChangeEvent], status *StatusFSM, outage *OutageTracker) *Sink {
	return &Sink{
		store:   store,
		changes: changes,
		status:  status,
		outage:  outage,
		graph:   depgraph.New(),
	}
}

// Init replaces the entire store atomically and broadcasts change events
// for every flag transitively affected by what changed (spec §4.8).
func (s *Sink) Init(ctx context.Context, snapshot map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldFeatures, err := s.store.GetAll(ctx, ldmodel.Features)
	if err != nil {
		s.handleStoreError(err)
		return false
	}
	oldSegments, err := s.store.GetAll(ctx, ldmodel.Segments)
	if err != nil {
		s.handleStoreError(err)
		return false
	}

	// The SortAllCollections order is computed but not passed on:
	// store.Init receives the snapshot map as is. The in-memory store
	// applies it atomically, and postgresstore writes it in one
	// transaction, segments before flags.
	_ = depgraph.SortAllCollections(snapshot)

	if err := s.store.Init(ctx, snapshot); err != nil {
		s.handleStoreError(err)
		return false
	}

	s.graph = depgraph.Rebuild(snapshot)
	affected := affectedFlagKeys(
		diffChangedNodes(ldmodel.Features, oldFeatures, snapshot[ldmodel.Features]),
		diffChangedNodes(ldmodel.Segments, oldSegments, snapshot[ldmodel.Segments]),
		s.graph,
	)
	for key := range affected {
		s.changes.Broadcast(FlagChangeEvent{Key: key})
	}

	s.clearStoreFailure()
	s.status.Transition(interfaces.DataSourceValid, nil)
	return true
}

// Upsert writes one item and broadcasts change events for everything
// transitively affected, if the write actually applied (spec §4.8).
func (s *Sink) Upsert(ctx context.Context, kind ldmodel.DataKind, key string, item ldmodel.ItemDescriptor) bool {
	s.mu.Lock()
	applied, err := s.store.Upsert(ctx, kind, key, item)
	if err != nil {
		s.mu.Unlock()
		s.handleStoreError(err)
		return false
	}
	if !applied {
		s.mu.Unlock()
		return false
	}

	node := ldmodel.KindAndKey{Kind: kind, Key: key}
	s.graph.SetEdges(node, depgraph.ComputeDependenciesFrom(kind, item.Item))
	affected := map[ldmodel.KindAndKey]struct{}{}
	s.graph.AddAffectedItems(affected, node)
	s.mu.Unlock()

	for n := range affected {
		if n.Kind == ldmodel.Features {
			s.changes.Broadcast(FlagChangeEvent{Key: n.Key})
		}
	}

	s.clearStoreFailure()
	s.status.Transition(interfaces.DataSourceValid, nil)
	return true
}

// UpdateStatus drives the C9 FSM directly, e.g. for source-level
// connectivity changes unrelated to a store write.
func (s *Sink) UpdateStatus(state interfaces.DataSourceState, err *interfaces.ErrorInfo) {
	s.status.Transition(state, err)
	if err != nil {
		s.outage.RecordError(*err)
	} else if state == interfaces.DataSourceValid {
		s.outage.Recover()
	}
}

func (s *Sink) handleStoreError(err error) {
	info := &interfaces.ErrorInfo{Kind: interfaces.StatusErrorKindStoreError, Message: err.Error()}
	log := logging.For("datasource.sink")
	if atomic.CompareAndSwapInt32(&s.lastStoreUpdateFailed, 0, 1) {
		log.Warn().Err(err).Msg("data store operation failed")
	} else {
		log.Debug().Err(err).Msg("data store operation failed")
	}
	s.status.Transition(interfaces.DataSourceInterrupted, info)
	s.outage.RecordError(*info)
}

func (s *Sink) clearStoreFailure() {
	if atomic.SwapInt32(&s.lastStoreUpdateFailed, 0) == 1 {
		s.outage.Recover()
	}
}

func diffChangedNodes(kind ldmodel.DataKind, old, updated map[string]ldmodel.ItemDescriptor) []ldmodel.KindAndKey {
	var changed []ldmodel.KindAndKey
	seen := make(map[string]struct{}, len(updated))
	for k, v := range updated {
		seen[k] = struct{}{}
		if ov, ok := old[k]; !ok || ov.Version != v.Version {
			changed = append(changed, ldmodel.KindAndKey{Kind: kind, Key: k})
		}
	}
	for k := range old {
		if _, ok := seen[k]; !ok {
			changed = append(changed, ldmodel.KindAndKey{Kind: kind, Key: k})
		}
	}
	return changed
}

func affectedFlagKeys(changedFeatures, changedSegments []ldmodel.KindAndKey, graph *depgraph.Graph) map[string]struct{} {
	affected := map[ldmodel.KindAndKey]struct{}{}
	for _, node := range changedFeatures {
		graph.AddAffectedItems(affected, node)
	}
	for _, node := range changedSegments {
		graph.AddAffectedItems(affected, node)
	}
	out := map[string]struct{}{}
	for node := range affected {
		if node.Kind == ldmodel.Features {
			out[node.Key] = struct{}{}
		}
	}
	return out
}
