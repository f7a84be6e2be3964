package evaluator

import (
	"context"
	"testing"

	"github.com/TimurManjosov/goflagship/internal/ldcontext"
	"github.com/TimurManjosov/goflagship/internal/ldmodel"
	"github.com/TimurManjosov/goflagship/internal/segments"
)

func off(v int) *int { return &v }

func lookupFor(flags map[string]*ldmodel.FeatureFlag) FlagLookup {
	return func(key string) (*ldmodel.FeatureFlag, bool) {
		f, ok := flags[key]
		return f, ok
	}
}

func newTestEvaluator(flags map[string]*ldmodel.FeatureFlag) *Evaluator {
	for _, f := range flags {
		f.Finalize()
	}
	return New(lookupFor(flags), &segments.Matcher{})
}

func TestEvaluate_UnknownFlagReturnsDefault(t *testing.T) {
	e := newTestEvaluator(map[string]*ldmodel.FeatureFlag{})
	res := e.Evaluate(context.Background(), "missing", ldcontext.New("u1"), "default")
	if res.Value != "default" || res.Reason.Kind != ldmodel.ReasonError || res.Reason.ErrorKind != ldmodel.ErrorFlagNotFound {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestEvaluate_InvalidContextReturnsUserNotSpecified(t *testing.T) {
	flag := &ldmodel.FeatureFlag{Key: "f1", On: true, Variations: []any{"a", "b"}, Fallthrough: ldmodel.VariationOrRollout{Variation: off(0)}}
	e := newTestEvaluator(map[string]*ldmodel.FeatureFlag{"f1": flag})
	res := e.Evaluate(context.Background(), "f1", ldcontext.NewOfKind("user", ""), "default")
	if res.Reason.ErrorKind != ldmodel.ErrorUserNotSpecified {
		t.Fatalf("expected USER_NOT_SPECIFIED, got %+v", res.Reason)
	}
}

func TestEvaluate_OffFlagServesOffVariation(t *testing.T) {
	flag := &ldmodel.FeatureFlag{
		Key: "f1", On: false, OffVariation: off(1), Variations: []any{"a", "b"},
	}
	e := newTestEvaluator(map[string]*ldmodel.FeatureFlag{"f1": flag})
	res := e.Evaluate(context.Background(), "f1", ldcontext.New("u1"), "default")
	if res.Value != "b" || res.Reason.Kind != ldmodel.ReasonOff {
		t.Fatalf("expected off variation 'b', got %+v", res)
	}
}

func TestEvaluate_OffFlagWithNoOffVariationReturnsNilValue(t *testing.T) {
	flag := &ldmodel.FeatureFlag{Key: "f1", On: false, Variations: []any{"a", "b"}}
	e := newTestEvaluator(map[string]*ldmodel.FeatureFlag{"f1": flag})
	res := e.Evaluate(context.Background(), "f1", ldcontext.New("u1"), "default")
	if res.Value != nil || res.VariationIndex != NoVariation {
		t.Fatalf("expected nil value/no variation, got %+v", res)
	}
}

func TestEvaluate_TargetMatchTakesPrecedenceOverRulesAndFallthrough(t *testing.T) {
	flag := &ldmodel.FeatureFlag{
		Key: "f1", On: true, Variations: []any{"a", "b", "c"},
		Targets: map[string][]ldmodel.Target{
			ldcontext.DefaultKind: {{Variation: 2, Values: map[string]struct{}{"u1": {}}}},
		},
		Fallthrough: ldmodel.VariationOrRollout{Variation: off(0)},
	}
	e := newTestEvaluator(map[string]*ldmodel.FeatureFlag{"f1": flag})
	res := e.Evaluate(context.Background(), "f1", ldcontext.New("u1"), "default")
	if res.Value != "c" || res.Reason.Kind != ldmodel.ReasonTargetMatch {
		t.Fatalf("expected targeted variation 'c', got %+v", res)
	}
}

func TestEvaluate_RuleMatchAppliesInOrder(t *testing.T) {
	flag := &ldmodel.FeatureFlag{
		Key: "f1", On: true, Variations: []any{"a", "b"},
		Rules: []ldmodel.Rule{
			{
				ID:                 "r1",
				Clauses:            []ldmodel.Clause{{Op: "in", Attribute: "plan", Values: []any{"enterprise"}}},
				VariationOrRollout: ldmodel.VariationOrRollout{Variation: off(1)},
			},
		},
		Fallthrough: ldmodel.VariationOrRollout{Variation: off(0)},
	}
	e := newTestEvaluator(map[string]*ldmodel.FeatureFlag{"f1": flag})

	c := ldcontext.New("u1").WithAttribute("plan", "enterprise")
	res := e.Evaluate(context.Background(), "f1", c, "default")
	if res.Value != "b" || res.Reason.Kind != ldmodel.ReasonRuleMatch {
		t.Fatalf("expected rule-matched variation 'b', got %+v", res)
	}

	c2 := ldcontext.New("u2").WithAttribute("plan", "free")
	res2 := e.Evaluate(context.Background(), "f1", c2, "default")
	if res2.Value != "a" || res2.Reason.Kind != ldmodel.ReasonFallthrough {
		t.Fatalf("expected fallthrough variation 'a', got %+v", res2)
	}
}

func TestEvaluate_PrerequisiteFailureServesOffVariation(t *testing.T) {
	prereq := &ldmodel.FeatureFlag{
		Key: "prereq", On: true, Variations: []any{"a", "b"},
		Fallthrough: ldmodel.VariationOrRollout{Variation: off(0)},
	}
	flag := &ldmodel.FeatureFlag{
		Key: "f1", On: true, OffVariation: off(0), Variations: []any{"x", "y"},
		Prerequisites: []ldmodel.Prerequisite{{FlagKey: "prereq", RequiredVariation: 1}},
		Fallthrough:   ldmodel.VariationOrRollout{Variation: off(1)},
	}
	e := newTestEvaluator(map[string]*ldmodel.FeatureFlag{"f1": flag, "prereq": prereq})
	res := e.Evaluate(context.Background(), "f1", ldcontext.New("u1"), "default")
	if res.Value != "x" || res.Reason.Kind != ldmodel.ReasonPrerequisiteFailed {
		t.Fatalf("expected prerequisite failure to serve off variation 'x', got %+v", res)
	}
	if len(res.PrerequisiteEvents) != 1 || res.PrerequisiteEvents[0].ParentFlagKey != "f1" {
		t.Fatalf("expected a prerequisite-of event recorded, got %+v", res.PrerequisiteEvents)
	}
}

func TestEvaluate_PrerequisiteSatisfiedFallsThrough(t *testing.T) {
	prereq := &ldmodel.FeatureFlag{
		Key: "prereq", On: true, Variations: []any{"a", "b"},
		Fallthrough: ldmodel.VariationOrRollout{Variation: off(1)},
	}
	flag := &ldmodel.FeatureFlag{
		Key: "f1", On: true, OffVariation: off(0), Variations: []any{"x", "y"},
		Prerequisites: []ldmodel.Prerequisite{{FlagKey: "prereq", RequiredVariation: 1}},
		Fallthrough:   ldmodel.VariationOrRollout{Variation: off(1)},
	}
	e := newTestEvaluator(map[string]*ldmodel.FeatureFlag{"f1": flag, "prereq": prereq})
	res := e.Evaluate(context.Background(), "f1", ldcontext.New("u1"), "default")
	if res.Value != "y" || res.Reason.Kind != ldmodel.ReasonFallthrough {
		t.Fatalf("expected prerequisite satisfied to fall through to 'y', got %+v", res)
	}
}

func TestEvaluate_RolloutFallthroughDistributesAcrossVariations(t *testing.T) {
	flag := &ldmodel.FeatureFlag{
		Key: "f1", On: true, Variations: []any{"a", "b"},
		Fallthrough: ldmodel.VariationOrRollout{
			Rollout: &ldmodel.Rollout{
				Variations: []ldmodel.WeightedVariation{
					{Variation: 0, Weight: 50000},
					{Variation: 1, Weight: 50000},
				},
			},
		},
	}
	e := newTestEvaluator(map[string]*ldmodel.FeatureFlag{"f1": flag})

	seenA, seenB := false, false
	for i := 0; i < 50; i++ {
		c := ldcontext.New(string(rune('a' + i)))
		res := e.Evaluate(context.Background(), "f1", c, "default")
		if res.Value == "a" {
			seenA = true
		} else if res.Value == "b" {
			seenB = true
		}
	}
	if !seenA || !seenB {
		t.Fatalf("expected a 50/50 rollout to eventually produce both variations across distinct keys, seenA=%v seenB=%v", seenA, seenB)
	}
}

func TestEvaluate_MalformedVariationIndexOutOfRange(t *testing.T) {
	flag := &ldmodel.FeatureFlag{
		Key: "f1", On: true, Variations: []any{"a"},
		Fallthrough: ldmodel.VariationOrRollout{Variation: off(5)},
	}
	e := newTestEvaluator(map[string]*ldmodel.FeatureFlag{"f1": flag})
	res := e.Evaluate(context.Background(), "f1", ldcontext.New("u1"), "default")
	if res.Value != "default" || res.Reason.ErrorKind != ldmodel.ErrorMalformedFlag {
		t.Fatalf("expected MALFORMED_FLAG error, got %+v", res)
	}
}

func TestEvaluate_DeletedFlagIsNotFound(t *testing.T) {
	flag := &ldmodel.FeatureFlag{Key: "f1", Deleted: true}
	e := newTestEvaluator(map[string]*ldmodel.FeatureFlag{"f1": flag})
	res := e.Evaluate(context.Background(), "f1", ldcontext.New("u1"), "default")
	if res.Reason.ErrorKind != ldmodel.ErrorFlagNotFound {
		t.Fatalf("expected a deleted flag to report FLAG_NOT_FOUND, got %+v", res)
	}
}
