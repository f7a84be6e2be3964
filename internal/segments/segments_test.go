package segments

import (
	"context"
	"testing"

	"github.com/TimurManjosov/goflagship/internal/ldcontext"
	"github.com/TimurManjosov/goflagship/internal/ldmodel"
	"github.com/TimurManjosov/goflagship/internal/operators"
)

func TestMatch_NilSegmentNeverMatches(t *testing.T) {
	m := &Matcher{}
	matched, status := m.Match(context.Background(), nil, ldcontext.New("u1"), map[string]struct{}{})
	if matched || status != nil {
		t.Fatalf("expected nil segment to never match, got matched=%v status=%v", matched, status)
	}
}

func TestMatch_ExcludedTakesPrecedenceOverIncluded(t *testing.T) {
	segment := &ldmodel.Segment{
		Key:      "seg1",
		Included: map[string]struct{}{"u1": {}},
		Excluded: map[string]struct{}{"u1": {}},
	}
	m := &Matcher{}
	matched, _ := m.Match(context.Background(), segment, ldcontext.New("u1"), map[string]struct{}{})
	if matched {
		t.Fatal("expected exclusion to take precedence over inclusion")
	}
}

func TestMatch_IncludedMatchesByKey(t *testing.T) {
	segment := &ldmodel.Segment{
		Key:      "seg1",
		Included: map[string]struct{}{"u1": {}},
	}
	m := &Matcher{}
	matched, _ := m.Match(context.Background(), segment, ldcontext.New("u1"), map[string]struct{}{})
	if !matched {
		t.Fatal("expected included key to match")
	}
	matched, _ = m.Match(context.Background(), segment, ldcontext.New("u2"), map[string]struct{}{})
	if matched {
		t.Fatal("expected a non-included key to not match")
	}
}

func TestMatch_RuleMatchWithNoWeightAlwaysMatches(t *testing.T) {
	segment := &ldmodel.Segment{
		Key: "seg1",
		Rules: []ldmodel.SegmentRule{
			{Clauses: []ldmodel.Clause{{Op: "in", Values: []any{"enterprise"}, Attribute: "plan"}}},
		},
	}
	m := &Matcher{}
	c := ldcontext.New("u1").WithAttribute("plan", "enterprise")
	matched, _ := m.Match(context.Background(), segment, c, map[string]struct{}{})
	if !matched {
		t.Fatal("expected segment rule match with no weight to always match")
	}
}

func TestMatch_RuleNoMatchFallsThrough(t *testing.T) {
	segment := &ldmodel.Segment{
		Key: "seg1",
		Rules: []ldmodel.SegmentRule{
			{Clauses: []ldmodel.Clause{{Op: "in", Values: []any{"enterprise"}, Attribute: "plan"}}},
		},
	}
	m := &Matcher{}
	c := ldcontext.New("u1").WithAttribute("plan", "free")
	matched, _ := m.Match(context.Background(), segment, c, map[string]struct{}{})
	if matched {
		t.Fatal("expected non-matching rule clause to fall through to no-match")
	}
}

func TestMatch_UnboundedSegmentWithoutBigSegmentsReturnsNotConfigured(t *testing.T) {
	segment := &ldmodel.Segment{Key: "seg1", Unbounded: true, UnboundedContextKind: "user"}
	m := &Matcher{} // no BigSegments lookup wired
	matched, status := m.Match(context.Background(), segment, ldcontext.New("u1"), map[string]struct{}{})
	if matched {
		t.Fatal("expected unbounded segment with no big-segment backend to not match")
	}
	if status == nil || *status != ldmodel.BigSegmentsNotConfigured {
		t.Fatalf("expected BigSegmentsNotConfigured status, got %v", status)
	}
}

func TestMatch_UnboundedSegmentConsultsBigSegmentLookup(t *testing.T) {
	segment := &ldmodel.Segment{Key: "seg1", Unbounded: true, UnboundedContextKind: "user", Generation: 3}
	called := false
	m := &Matcher{
		BigSegments: func(ctx context.Context, segmentKey string, generation int, contextKey string) (bool, ldmodel.BigSegmentsStatus, bool) {
			called = true
			if segmentKey != "seg1" || generation != 3 || contextKey != "u1" {
				t.Fatalf("unexpected BigSegments call args: %s %d %s", segmentKey, generation, contextKey)
			}
			return true, ldmodel.BigSegmentsHealthy, true
		},
	}
	matched, status := m.Match(context.Background(), segment, ldcontext.New("u1"), map[string]struct{}{})
	if !called {
		t.Fatal("expected BigSegments lookup to be called")
	}
	if !matched || status == nil || *status != ldmodel.BigSegmentsHealthy {
		t.Fatalf("expected a healthy match, got matched=%v status=%v", matched, status)
	}
}

func TestMatch_SelfReferentialSegmentMatchIsSilentNonMatch(t *testing.T) {
	segA := &ldmodel.Segment{
		Key: "seg-a",
		Rules: []ldmodel.SegmentRule{
			{Clauses: []ldmodel.Clause{{Op: operators.SegmentMatchOp, Values: []any{"seg-a"}}}},
		},
	}
	m := &Matcher{
		Segments: func(key string) (*ldmodel.Segment, bool) {
			if key == "seg-a" {
				return segA, true
			}
			return nil, false
		},
	}
	matched, _ := m.Match(context.Background(), segA, ldcontext.New("u1"), map[string]struct{}{})
	if matched {
		t.Fatal("expected a self-referential segmentMatch cycle to silently not match")
	}
}

func TestMatchClauses_ShortCircuitsOnFirstNonMatch(t *testing.T) {
	m := &Matcher{}
	clauses := []ldmodel.Clause{
		{Op: "in", Attribute: "plan", Values: []any{"enterprise"}},
		{Op: "in", Attribute: "country", Values: []any{"US"}},
	}
	c := ldcontext.New("u1").WithAttribute("plan", "free").WithAttribute("country", "US")
	if m.MatchClauses(context.Background(), clauses, c, map[string]struct{}{}) {
		t.Fatal("expected AND short-circuit on first failing clause")
	}
}

func TestMatchClauses_MissingAttributeIsNonMatchNotError(t *testing.T) {
	m := &Matcher{}
	clauses := []ldmodel.Clause{{Op: "in", Attribute: "nonexistent", Values: []any{"x"}}}
	c := ldcontext.New("u1")
	if m.MatchClauses(context.Background(), clauses, c, map[string]struct{}{}) {
		t.Fatal("expected missing attribute to be a non-match")
	}
}

func TestMatchClauses_SegmentMatchClauseDelegatesToMatch(t *testing.T) {
	segVIP := &ldmodel.Segment{Key: "vip", Included: map[string]struct{}{"u1": {}}}
	m := &Matcher{
		Segments: func(key string) (*ldmodel.Segment, bool) {
			if key == "vip" {
				return segVIP, true
			}
			return nil, false
		},
	}
	clauses := []ldmodel.Clause{{Op: operators.SegmentMatchOp, Values: []any{"vip"}}}
	if !m.MatchClauses(context.Background(), clauses, ldcontext.New("u1"), map[string]struct{}{}) {
		t.Fatal("expected segmentMatch clause to match via the included-key segment")
	}
	if m.MatchClauses(context.Background(), clauses, ldcontext.New("u2"), map[string]struct{}{}) {
		t.Fatal("expected segmentMatch clause to not match a non-included key")
	}
}

func TestMatchClauses_NegatedSegmentMatch(t *testing.T) {
	segVIP := &ldmodel.Segment{Key: "vip", Included: map[string]struct{}{"u1": {}}}
	m := &Matcher{
		Segments: func(key string) (*ldmodel.Segment, bool) {
			return segVIP, true
		},
	}
	clauses := []ldmodel.Clause{{Op: operators.SegmentMatchOp, Values: []any{"vip"}, Negate: true}}
	if m.MatchClauses(context.Background(), clauses, ldcontext.New("u1"), map[string]struct{}{}) {
		t.Fatal("expected negated segmentMatch to not match an included key")
	}
	if !m.MatchClauses(context.Background(), clauses, ldcontext.New("u2"), map[string]struct{}{}) {
		t.Fatal("expected negated segmentMatch to match a non-included key")
	}
}
