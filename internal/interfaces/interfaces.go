// Package interfaces collects the collaborator contracts the core
// consumes but does not implement (spec §6): persistent/cached data
// stores, data sources, big-segment backends, event processors, and
// broadcasters. Grounded on the teacher's store.Store pattern of
// co-locating an interface with its concrete implementations
// (internal/store/store.go), generalized to the SDK's external-surface
// boundary.
package interfaces

import (
	"context"

	"github.com/TimurManjosov/goflagship/internal/ldmodel"
)

// DataStore is the persistence/cache boundary for versioned items
// (spec §4.6, §6).
type DataStore interface {
	Init(ctx context.Context, snapshot map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor) error
	Get(ctx context.Context, kind ldmodel.DataKind, key string) (ldmodel.ItemDescriptor, bool, error)
	GetAll(ctx context.Context, kind ldmodel.DataKind) (map[string]ldmodel.ItemDescriptor, error)
	Upsert(ctx context.Context, kind ldmodel.DataKind, key string, item ldmodel.ItemDescriptor) (bool, error)
	IsInitialized(ctx context.Context) bool
	Close() error
}

// DataSource is an external feed (polling or streaming) that drives a
// DataSourceUpdateSink (spec §6). Concrete implementations are out of
// scope; this interface exists only so the sink's collaborators are
// named.
type DataSource interface {
	Start(ctx context.Context) <-chan struct{} // closed when ready (or failed-permanently)
	Close() error
}

// StatusErrorKind classifies the error behind a data-source status
// transition. Its kinds are separate from ldmodel's evaluation ErrorKind.
type StatusErrorKind string

const (
	StatusErrorKindUnknown     StatusErrorKind = "UNKNOWN"
	StatusErrorKindNetworkIO   StatusErrorKind = "NETWORK_ERROR"
	StatusErrorKindStoreError  StatusErrorKind = "STORE_ERROR"
	StatusErrorKindInvalidData StatusErrorKind = "INVALID_DATA"
	StatusErrorKindErrorResponse StatusErrorKind = "ERROR_RESPONSE"
)

// ErrorInfo accompanies a status transition.
type ErrorInfo struct {
	Kind       StatusErrorKind
	StatusCode int
	Message    string
}

// DataSourceState is the C9 FSM's state enum.
type DataSourceState string

const (
	DataSourceInitializing DataSourceState = "INITIALIZING"
	DataSourceValid        DataSourceState = "VALID"
	DataSourceInterrupted  DataSourceState = "INTERRUPTED"
	DataSourceOff          DataSourceState = "OFF"
)

// DataSourceUpdateSink is what a DataSource writes into (spec §4.8, §6).
type DataSourceUpdateSink interface {
	Init(ctx context.Context, snapshot map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor) bool
	Upsert(ctx context.Context, kind ldmodel.DataKind, key string, item ldmodel.ItemDescriptor) bool
	UpdateStatus(state DataSourceState, err *ErrorInfo)
}

// BigSegmentStoreMetadata is the backend's freshness marker (spec §4.10).
type BigSegmentStoreMetadata struct {
	LastUpToDateUnixMillis int64
}

// BigSegmentStore is the external lookup backend for unbounded segments
// (spec §6).
type BigSegmentStore interface {
	GetMembership(ctx context.Context, hashedKey string) (map[string]bool, error)
	GetMetadata(ctx context.Context) (BigSegmentStoreMetadata, error)
	Close() error
}

// EventProcessor is the analytics-event sink (spec §6); wire delivery is
// out of scope, so this interface exists purely to shape C11's output.
type EventProcessor interface {
	RecordEvaluationEvent(event any)
	RecordIdentifyEvent(event any)
	RecordCustomEvent(event any)
	RecordMigrationEvent(event any)
	Flush()
	Close() error
}

// Broadcaster is the generic typed listener list from C12.
type Broadcaster[T any] interface {
	Register(listener func(T)) (unregister func())
	Broadcast(event T)
}

// Executor is the shared task-submission collaborator the broadcaster
// uses to dispatch listener calls instead of spawning its own goroutines
// or pools (spec §9 "ExecutorLike"). The big-segment poller does not use
// it; it runs on its own ticker goroutine.
type Executor interface {
	Submit(task func())
}
