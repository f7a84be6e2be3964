// Package ldmodel holds the versioned flag/segment data model (spec §3)
// and its one-shot post-deserialization preprocessing (spec §4.3, C3).
//
// Field shapes are grounded on other_examples' FeatureFlag/Rule/Clause/
// Rollout/WeightedVariation (launchdarkly-go-server-sdk flag.go) and on
// the teacher's own, simpler internal/rules/models.go Rule/Condition —
// kept reachable through internal/legacyflag as a backward-compatible
// representation (SPEC_FULL §1 DOMAIN STACK).
package ldmodel

// DataKind is the closed enum the store is polymorphic over (spec §3).
type DataKind int

const (
	Features DataKind = iota
	Segments
)

func (k DataKind) String() string {
	switch k {
	case Features:
		return "features"
	case Segments:
		return "segments"
	default:
		return "unknown"
	}
}

// KindAndKey is node identity in the dependency graph (C7).
type KindAndKey struct {
	Kind DataKind
	Key  string
}

// RolloutKind distinguishes a plain rollout from an experiment (spec
// glossary "Experiment").
type RolloutKind string

const (
	RolloutKindRollout    RolloutKind = "rollout"
	RolloutKindExperiment RolloutKind = "experiment"
)

// WeightedVariation is one bucket of a Rollout.
type WeightedVariation struct {
	Variation  int
	Weight     int // 0..100000
	Untracked  bool
}

// Rollout is a probabilistic selection among variations (spec §3).
type Rollout struct {
	Variations  []WeightedVariation
	BucketBy    string // attribute reference, literal or "/a/b" path
	Kind        RolloutKind
	Seed        *int32
	ContextKind string
}

// VariationOrRollout is the common "what variation does this rule/
// fallthrough produce" shape: exactly one of Variation or Rollout is set.
type VariationOrRollout struct {
	Variation *int
	Rollout   *Rollout
}

// Clause is a single AND-ed predicate within a Rule.
type Clause struct {
	ContextKind string // "" means legacy "user"
	Attribute   string // literal name or "/a/b" path
	Op          string
	Values      []any
	Negate      bool

	preprocessed clausePreprocessed
}

// Rule is an ordered list of AND-ed clauses plus what to do on match.
type Rule struct {
	ID          string
	Clauses     []Clause
	VariationOrRollout
	TrackEvents bool

	preprocessed ruleReason
}

// Prerequisite is "another flag must evaluate to a specified variation".
type Prerequisite struct {
	FlagKey           string
	RequiredVariation int

	preprocessed reasonPrerequisiteFailed
}

// Target is a legacy (user-kind) list of context keys mapped to a variation.
type Target struct {
	Variation int
	Values    map[string]struct{}

	preprocessed targetMatchResult
}

// ContextTarget refines Target with an explicit context kind; when Kind is
// DefaultKind it's equivalent to a legacy Target entry for that variation.
type ContextTarget struct {
	ContextKind string
	Variation   int
	Values      map[string]struct{}

	preprocessed targetMatchResult
}

// Migration settings control the optional migration-op tracker (C11).
type MigrationSettings struct {
	CheckRatio *int // percent 0..100, nil means always sampled
}

// FeatureFlag is immutable post-deserialization (spec §3).
type FeatureFlag struct {
	Key                    string
	Version                int
	On                     bool
	Prerequisites          []Prerequisite
	Targets                map[string][]Target // contextKind(default "user") -> targets
	ContextTargets         []ContextTarget
	Rules                  []Rule
	Fallthrough            VariationOrRollout
	OffVariation           *int
	Variations             []any
	Salt                   string
	TrackEvents            bool
	TrackEventsFallthrough bool
	DebugEventsUntilDate   *int64
	ClientSide             bool
	SamplingRatio          *int
	Migration              *MigrationSettings
	Deleted                bool

	finalized bool
	preprocessed flagPreprocessed
}

// SegmentRule is an in-segment rule: clauses plus optional weighted
// inclusion (spec §3 Segment.rules).
type SegmentRule struct {
	Clauses         []Clause
	Weight          *int // 0..100000
	BucketBy        string
	RolloutContextKind string
	ID              string

	preprocessed ruleReason
}

// Segment is a named predicate over contexts (spec §3, glossary).
type Segment struct {
	Key                  string
	Version              int
	Included             map[string]struct{}
	Excluded             map[string]struct{}
	IncludedContexts     []ContextTarget
	ExcludedContexts     []ContextTarget
	Rules                []SegmentRule
	Salt                 string
	Unbounded            bool
	UnboundedContextKind string
	Generation           int
	Deleted              bool

	finalized bool
}

// ItemDescriptor is the (version, item-or-tombstone) unit held by the
// store (spec §3).
type ItemDescriptor struct {
	Version int
	Item    any // *FeatureFlag, *Segment, or nil for a tombstone
}

// Tombstone builds a deleted descriptor at the given version.
func Tombstone(version int) ItemDescriptor {
	return ItemDescriptor{Version: version, Item: nil}
}

// IsDeleted reports whether this descriptor represents a tombstone —
// deleted descriptors remain queryable for version comparison but are
// "not found" for evaluation purposes (spec §3 invariants).
func (d ItemDescriptor) IsDeleted() bool {
	return d.Item == nil
}
