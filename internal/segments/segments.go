// Package segments implements the segment matcher (C4, spec §4.4):
// include/exclude precedence, in-order rule matching with weighted
// rollouts, big-segment membership lookup, and cycle-safe recursion
// through nested segmentMatch clauses. Grounded on the teacher's
// engine.matchesAllConditions short-circuit AND flow
// (internal/engine/operators.go / evaluator.go), widened to segments'
// richer include/exclude/rule/big-segment precedence.
package segments

import (
	"context"

	"github.com/TimurManjosov/goflagship/internal/hashing"
	"github.com/TimurManjosov/goflagship/internal/ldcontext"
	"github.com/TimurManjosov/goflagship/internal/ldmodel"
	"github.com/TimurManjosov/goflagship/internal/operators"
)

// SegmentLookup resolves a segment by key, used to follow nested
// segmentMatch clauses. Implemented by the store-backed evaluator.
type SegmentLookup func(key string) (*ldmodel.Segment, bool)

// BigSegmentLookup answers unbounded-segment membership (C10's public
// surface as seen from the matcher).
type BigSegmentLookup func(ctx context.Context, segmentKey string, generation int, contextKey string) (matched bool, status ldmodel.BigSegmentsStatus, ok bool)

// Matcher evaluates segment membership against a context.
type Matcher struct {
	Segments    SegmentLookup
	BigSegments BigSegmentLookup
}

// rolloutWeightScale matches hashing's bucket-to-weight unit (spec
// §4.1/§4.4: weights are in units of 1/100000).
const rolloutWeightScale = 100000.0

// Match reports whether segment matches c, short-circuiting on the
// include/exclude lists before consulting rules or big-segment storage
// (spec §4.4). visited guards against self-referential segmentMatch
// cycles across the whole top-level evaluation.
func (m *Matcher) Match(ctx context.Context, segment *ldmodel.Segment, c ldcontext.Context, visited map[string]struct{}) (bool, *ldmodel.BigSegmentsStatus) {
	if segment == nil {
		return false, nil
	}
	if _, cyclic := visited[segment.Key]; cyclic {
		return false, nil // silent non-match, per spec §9 Open Question
	}
	visited[segment.Key] = struct{}{}
	defer delete(visited, segment.Key)

	if matchesContextTargets(segment.ExcludedContexts, c) || matchesDefaultSet(segment.Excluded, c) {
		return false, nil
	}
	if matchesContextTargets(segment.IncludedContexts, c) || matchesDefaultSet(segment.Included, c) {
		return true, nil
	}

	if segment.Unbounded {
		return m.matchUnbounded(ctx, segment, c)
	}

	for _, rule := range segment.Rules {
		if !m.MatchClauses(ctx, rule.Clauses, c, visited) {
			continue
		}
		if rule.Weight == nil {
			return true, nil
		}
		bucket := hashing.Bucket(hashing.Params{
			Context:      c,
			ContextKind:  rule.RolloutContextKind,
			BucketByAttr: bucketByRef(rule.BucketBy),
			Key:          segment.Key,
			Salt:         segment.Salt,
		})
		if bucket == hashing.NoBucket {
			continue
		}
		if bucket*rolloutWeightScale < float64(*rule.Weight) {
			return true, nil
		}
	}
	return false, nil
}

func bucketByRef(attr string) *ldcontext.Ref {
	if attr == "" {
		return nil
	}
	ref := ldcontext.NewPathRef(attr)
	return &ref
}

func (m *Matcher) matchUnbounded(ctx context.Context, segment *ldmodel.Segment, c ldcontext.Context) (bool, *ldmodel.BigSegmentsStatus) {
	single, ok := c.IndividualContext(segment.UnboundedContextKind)
	if !ok || single.Key == "" {
		status := ldmodel.BigSegmentsNotConfigured
		return false, &status
	}
	if m.BigSegments == nil {
		status := ldmodel.BigSegmentsNotConfigured
		return false, &status
	}
	matched, status, ok := m.BigSegments(ctx, segment.Key, segment.Generation, single.Key)
	if !ok {
		s := ldmodel.BigSegmentsStoreError
		return false, &s
	}
	return matched, &status
}

func matchesDefaultSet(set map[string]struct{}, c ldcontext.Context) bool {
	if len(set) == 0 {
		return false
	}
	key := c.Key()
	if key == "" {
		return false
	}
	_, ok := set[key]
	return ok
}

func matchesContextTargets(targets []ldmodel.ContextTarget, c ldcontext.Context) bool {
	for _, t := range targets {
		single, ok := c.IndividualContext(t.ContextKind)
		if !ok || single.Key == "" {
			continue
		}
		if _, ok := t.Values[single.Key]; ok {
			return true
		}
	}
	return false
}

// MatchClauses short-circuits on the first non-matching clause, mirroring
// the teacher's AND loop (internal/engine.matchesAllConditions). Exported
// so the evaluator (C5) can reuse it for flag rules, which share the same
// clause shape as segment rules.
func (m *Matcher) MatchClauses(ctx context.Context, clauses []ldmodel.Clause, c ldcontext.Context, visited map[string]struct{}) bool {
	for i := range clauses {
		if !m.matchesClause(ctx, &clauses[i], c, visited) {
			return false
		}
	}
	return true
}

func (m *Matcher) matchesClause(ctx context.Context, clause *ldmodel.Clause, c ldcontext.Context, visited map[string]struct{}) bool {
	if clause.Op == operators.SegmentMatchOp {
		matched := false
		for _, v := range clause.Values {
			key, ok := v.(string)
			if !ok || m.Segments == nil {
				continue
			}
			seg, ok := m.Segments(key)
			if !ok {
				continue
			}
			if ok, _ := m.Match(ctx, seg, c, visited); ok {
				matched = true
				break
			}
		}
		if clause.Negate {
			return !matched
		}
		return matched
	}

	single, ok := c.IndividualContext(clause.ContextKind)
	if !ok {
		return false
	}

	ref := ldcontext.NewPathRef(clause.Attribute)
	value, ok := ref.Resolve(single)
	if !ok {
		// Missing attribute is a non-match, not an error (spec §9);
		// Negate does not apply here — there is no value to negate.
		return false
	}
	return operators.Evaluate(clause, value)
}
