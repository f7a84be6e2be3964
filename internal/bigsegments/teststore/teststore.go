// Package teststore is an in-memory fake of interfaces.BigSegmentStore
// for tests, grounded on the teacher's habit of shipping a Memory*
// counterpart next to every storage interface (internal/store/memory.go).
package teststore

import (
	"context"
	"sync"
	"time"

	"github.com/TimurManjosov/goflagship/internal/interfaces"
)

// Store is a mutable fake: tests set membership and metadata directly.
type Store struct {
	mu         sync.Mutex
	membership map[string]map[string]bool // hashedContextKey -> segmentRef -> bool
	lastUpToDate int64
	err        error
}

func New() *Store {
	return &Store{membership: map[string]map[string]bool{}}
}

// SetMembership sets the full membership map for a hashed context key.
func (s *Store) SetMembership(hashedKey string, membership map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.membership[hashedKey] = membership
}

// SetLastUpToDate sets the metadata freshness timestamp returned by
// GetMetadata.
func (s *Store) SetLastUpToDate(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUpToDate = t.UnixMilli()
}

// SetError makes every subsequent call fail, simulating a backend outage.
func (s *Store) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Store) GetMembership(ctx context.Context, hashedKey string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.membership[hashedKey], nil
}

func (s *Store) GetMetadata(ctx context.Context) (interfaces.BigSegmentStoreMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return interfaces.BigSegmentStoreMetadata{}, s.err
	}
	return interfaces.BigSegmentStoreMetadata{LastUpToDateUnixMillis: s.lastUpToDate}, nil
}

func (s *Store) Close() error { return nil }
