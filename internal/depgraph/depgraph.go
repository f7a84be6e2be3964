// Package depgraph maintains the bidirectional dependency graph over
// {flag,segment} items (C7, spec §4.7): computing a node's outgoing
// edges, producing a safe application order for a snapshot, and
// expanding a changed node into its transitive reverse-closure of
// affected items. No direct teacher analogue exists; built in the
// repo's prevailing pure-function style (as in internal/rules/validator.go),
// with cycle breaking informed by the other_examples flag.go evaluator's
// visited-map recursion guards.
package depgraph

import (
	"sort"

	"github.com/TimurManjosov/goflagship/internal/ldmodel"
	"github.com/TimurManjosov/goflagship/internal/operators"
)

// Graph holds forward and reverse adjacency over KindAndKey nodes.
type Graph struct {
	forward map[ldmodel.KindAndKey]map[ldmodel.KindAndKey]struct{}
	reverse map[ldmodel.KindAndKey]map[ldmodel.KindAndKey]struct{}
}

// New builds an empty graph.
func New() *Graph {
	return &Graph{
		forward: map[ldmodel.KindAndKey]map[ldmodel.KindAndKey]struct{}{},
		reverse: map[ldmodel.KindAndKey]map[ldmodel.KindAndKey]struct{}{},
	}
}

// ComputeDependenciesFrom returns a node's outgoing edges (spec §4.7):
// a flag depends on its prerequisites and any segmentMatch clause
// targets; a segment depends on any segmentMatch clause targets in its
// own rules.
func ComputeDependenciesFrom(kind ldmodel.DataKind, item any) []ldmodel.KindAndKey {
	switch kind {
	case ldmodel.Features:
		flag, ok := item.(*ldmodel.FeatureFlag)
		if !ok || flag == nil {
			return nil
		}
		var out []ldmodel.KindAndKey
		for _, p := range flag.Prerequisites {
			out = append(out, ldmodel.KindAndKey{Kind: ldmodel.Features, Key: p.FlagKey})
		}
		for _, rule := range flag.Rules {
			out = append(out, segmentMatchTargets(rule.Clauses)...)
		}
		return out
	case ldmodel.Segments:
		seg, ok := item.(*ldmodel.Segment)
		if !ok || seg == nil {
			return nil
		}
		var out []ldmodel.KindAndKey
		for _, rule := range seg.Rules {
			out = append(out, segmentMatchTargets(rule.Clauses)...)
		}
		return out
	default:
		return nil
	}
}

func segmentMatchTargets(clauses []ldmodel.Clause) []ldmodel.KindAndKey {
	var out []ldmodel.KindAndKey
	for _, c := range clauses {
		if c.Op != operators.SegmentMatchOp {
			continue
		}
		for _, v := range c.Values {
			if s, ok := v.(string); ok {
				out = append(out, ldmodel.KindAndKey{Kind: ldmodel.Segments, Key: s})
			}
		}
	}
	return out
}

// SetEdges replaces a node's outgoing edges, updating the reverse index.
func (g *Graph) SetEdges(node ldmodel.KindAndKey, deps []ldmodel.KindAndKey) {
	for old := range g.forward[node] {
		if rev, ok := g.reverse[old]; ok {
			delete(rev, node)
		}
	}
	next := make(map[ldmodel.KindAndKey]struct{}, len(deps))
	for _, d := range deps {
		next[d] = struct{}{}
		rev, ok := g.reverse[d]
		if !ok {
			rev = map[ldmodel.KindAndKey]struct{}{}
			g.reverse[d] = rev
		}
		rev[node] = struct{}{}
	}
	g.forward[node] = next
}

// Rebuild recomputes the entire graph from a full snapshot (used after
// C8's init).
func Rebuild(snapshot map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor) *Graph {
	g := New()
	for kind, items := range snapshot {
		for key, desc := range items {
			if desc.IsDeleted() {
				continue
			}
			node := ldmodel.KindAndKey{Kind: kind, Key: key}
			g.SetEdges(node, ComputeDependenciesFrom(kind, desc.Item))
		}
	}
	return g
}

// AddAffectedItems expands node's transitive reverse-closure (items whose
// evaluation might change because node changed) into out, using out
// itself as the visited set to guard against cycles (spec §4.7
// "addAffectedItems").
func (g *Graph) AddAffectedItems(out map[ldmodel.KindAndKey]struct{}, node ldmodel.KindAndKey) {
	if _, seen := out[node]; seen {
		return
	}
	out[node] = struct{}{}
	for dependant := range g.reverse[node] {
		g.AddAffectedItems(out, dependant)
	}
}

// SortAllCollections orders a snapshot for safe sequential application
// (spec §4.7): SEGMENTS before FEATURES; within FEATURES, a post-order
// dependency traversal so prerequisites precede dependants. Cycles are
// broken by the removal-style visited set — any re-entry is a no-op, and
// every node still appears exactly once (spec §8).
func SortAllCollections(snapshot map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor) []ldmodel.KindAndKey {
	var out []ldmodel.KindAndKey

	segKeys := sortedKeys(snapshot[ldmodel.Segments])
	for _, k := range segKeys {
		out = append(out, ldmodel.KindAndKey{Kind: ldmodel.Segments, Key: k})
	}

	features := snapshot[ldmodel.Features]
	visited := map[string]struct{}{}
	visiting := map[string]struct{}{}
	featKeys := sortedKeys(features)

	var visit func(key string)
	visit = func(key string) {
		if _, done := visited[key]; done {
			return
		}
		if _, inProgress := visiting[key]; inProgress {
			return // cycle: treat as already satisfied, break re-entry
		}
		visiting[key] = struct{}{}
		desc, ok := features[key]
		if ok && !desc.IsDeleted() {
			if flag, ok := desc.Item.(*ldmodel.FeatureFlag); ok {
				for _, p := range flag.Prerequisites {
					if _, exists := features[p.FlagKey]; exists {
						visit(p.FlagKey)
					}
				}
			}
		}
		delete(visiting, key)
		visited[key] = struct{}{}
		out = append(out, ldmodel.KindAndKey{Kind: ldmodel.Features, Key: key})
	}
	for _, k := range featKeys {
		visit(k)
	}

	return out
}

func sortedKeys(m map[string]ldmodel.ItemDescriptor) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
