package legacyflag

import (
	"context"
	"sync"
	"time"

	"github.com/TimurManjosov/goflagship/internal/rules"
)

// Variant is one named arm of a legacy A/B flag: a display name plus an
// optional JSON config payload served in place of a bare boolean.
type Variant struct {
	Name   string         `json:"name"`
	Weight int            `json:"weight"`
	Config map[string]any `json:"config,omitempty"`
}

// Record is a flag authored against the older flat shape this package
// bridges into ldmodel.FeatureFlag: a single on/off switch, an optional
// flat rollout percentage, and a handful of targeting rules rather than
// a full rule tree. Convert is the only place that shape is interpreted.
type Record struct {
	Key            string
	Description    string
	Enabled        bool
	Rollout        int32 // 0-100
	Config         map[string]any
	TargetingRules []rules.Rule
	Variants       []Variant
	Env            string
	UpdatedAt      time.Time
}

// Source is read access to a population of legacy Records, scoped by
// environment. It exists so refreshFromLegacyStore-style callers (see
// cmd/server/main.go) aren't wired directly to MemorySource.
type Source interface {
	GetAll(ctx context.Context, env string) ([]Record, error)
	Close() error
}

// MemorySource is an in-memory Source: enough to seed and exercise the
// legacy-to-ldmodel bridge without depending on interfaces.DataStore,
// which already owns persistence for the rule-tree model (internal/datastore,
// internal/storeadapter). It is not a second copy of that store — it holds
// only the flat shape Convert consumes, and has no Upsert/Delete surface
// because nothing in this tree authors legacy flags at runtime.
type MemorySource struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemorySource seeds a MemorySource with the given records, keyed by
// Record.Key (later entries with a duplicate key overwrite earlier ones).
func NewMemorySource(seed ...Record) *MemorySource {
	m := &MemorySource{records: make(map[string]Record, len(seed))}
	for _, r := range seed {
		m.records[r.Key] = r
	}
	return m
}

// GetAll returns every seeded Record whose Env matches.
func (m *MemorySource) GetAll(ctx context.Context, env string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		if r.Env == env {
			out = append(out, r)
		}
	}
	return out, nil
}

// Close is a no-op: MemorySource holds no resources.
func (m *MemorySource) Close() error {
	return nil
}
