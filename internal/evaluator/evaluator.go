// Package evaluator implements the flag evaluation state machine (C5,
// spec §4.5): malformed/not-found, context validity, off, prerequisites
// (always visited, first failure short-circuits the return value),
// targets, rules, and fallthrough. Grounded on the teacher's
// engine.Evaluate control flow (internal/engine/evaluator.go) and on
// other_examples' evaluateExplainIndex/visited-map cycle detection
// (launchdarkly-go-server-sdk flag.go), generalized to the richer
// multi-kind/prerequisite/segment model.
package evaluator

import (
	"context"

	"github.com/TimurManjosov/goflagship/internal/hashing"
	"github.com/TimurManjosov/goflagship/internal/ldcontext"
	"github.com/TimurManjosov/goflagship/internal/ldmodel"
	"github.com/TimurManjosov/goflagship/internal/segments"
)

// NoVariation is returned when no variation index applies (error cases,
// or an off/prerequisite-failed flag with no configured variation).
const NoVariation = -1

// FlagLookup resolves a flag by key; ok=false means not found.
type FlagLookup func(key string) (*ldmodel.FeatureFlag, bool)

// Result is the outcome of one top-level Evaluate call.
type Result struct {
	Value              any
	VariationIndex     int
	Reason             ldmodel.EvaluationReason
	Flag               *ldmodel.FeatureFlag
	PrerequisiteEvents []PrerequisiteEvent
}

// PrerequisiteEvent records one prerequisite flag's evaluation so the
// caller can queue a "prerequisite-of" analytics event for it, even when
// it isn't the one that ultimately failed (spec §4.5 "prerequisite-of
// events must still be queued for each visited prereq").
type PrerequisiteEvent struct {
	ParentFlagKey string
	Prerequisite  *ldmodel.FeatureFlag
	Result        Result
}

// Evaluator holds the read-only collaborators needed to evaluate flags:
// a flag lookup, and a segment Matcher (itself wired to a segment lookup
// and an optional big-segment backend).
type Evaluator struct {
	Flags    FlagLookup
	Segments *segments.Matcher
}

// New builds an Evaluator over the given collaborators.
func New(flags FlagLookup, matcher *segments.Matcher) *Evaluator {
	return &Evaluator{Flags: flags, Segments: matcher}
}

// Evaluate runs the full state machine for flagKey against context c,
// falling back to defaultValue whenever the flag can't produce a value
// (spec §4.5).
func (e *Evaluator) Evaluate(ctx context.Context, flagKey string, c ldcontext.Context, defaultValue any) Result {
	flag, ok := e.Flags(flagKey)
	if !ok || flag == nil {
		return Result{Value: defaultValue, VariationIndex: NoVariation, Reason: ldmodel.ReasonErrorValue(ldmodel.ErrorFlagNotFound)}
	}
	if flag.Deleted {
		return Result{Value: defaultValue, VariationIndex: NoVariation, Reason: ldmodel.ReasonErrorValue(ldmodel.ErrorFlagNotFound), Flag: flag}
	}
	if !c.Valid() {
		return Result{Value: defaultValue, VariationIndex: NoVariation, Reason: ldmodel.ReasonErrorValue(ldmodel.ErrorUserNotSpecified), Flag: flag}
	}

	visited := map[string]struct{}{}
	var prereqEvents []PrerequisiteEvent
	res := e.evaluateFlag(ctx, flag, c, visited, &prereqEvents, defaultValue)
	res.Flag = flag
	res.PrerequisiteEvents = prereqEvents
	return res
}

func (e *Evaluator) evaluateFlag(ctx context.Context, flag *ldmodel.FeatureFlag, c ldcontext.Context, visited map[string]struct{}, prereqEvents *[]PrerequisiteEvent, defaultValue any) Result {
	if _, cyclic := visited[flag.Key]; cyclic {
		return Result{Value: defaultValue, VariationIndex: NoVariation, Reason: ldmodel.ReasonErrorValue(ldmodel.ErrorMalformedFlag)}
	}
	visited[flag.Key] = struct{}{}
	defer delete(visited, flag.Key)

	if !flag.On {
		return e.offResult(flag, defaultValue)
	}

	if failed := e.evaluatePrerequisites(ctx, flag, c, visited, prereqEvents); failed != nil {
		return e.variationResult(flag, flag.OffVariation, failed.Reason(), defaultValue)
	}

	if res, ok := e.matchTargets(flag, c, defaultValue); ok {
		return res
	}

	for i := range flag.Rules {
		rule := &flag.Rules[i]
		if !e.Segments.MatchClauses(ctx, rule.Clauses, c, visited) {
			continue
		}
		idx, inExperiment, ok := e.resolveVariationOrRollout(flag, &rule.VariationOrRollout, c)
		if !ok {
			return e.malformed(defaultValue)
		}
		return e.variationResult(flag, &idx, rule.Reason(inExperiment), defaultValue)
	}

	idx, inExperiment, ok := e.resolveVariationOrRollout(flag, &flag.Fallthrough, c)
	if !ok {
		return e.malformed(defaultValue)
	}
	return e.variationResult(flag, &idx, flag.FallthroughReason(inExperiment), defaultValue)
}

func (e *Evaluator) evaluatePrerequisites(ctx context.Context, flag *ldmodel.FeatureFlag, c ldcontext.Context, visited map[string]struct{}, prereqEvents *[]PrerequisiteEvent) *ldmodel.Prerequisite {
	var failed *ldmodel.Prerequisite
	for i := range flag.Prerequisites {
		p := &flag.Prerequisites[i]
		prereqFlag, ok := e.Flags(p.FlagKey)
		if !ok || prereqFlag == nil || prereqFlag.Deleted {
			if failed == nil {
				failed = p
			}
			continue
		}

		var sub []PrerequisiteEvent
		result := e.evaluateFlag(ctx, prereqFlag, c, visited, &sub, nil)
		*prereqEvents = append(*prereqEvents, sub...)
		*prereqEvents = append(*prereqEvents, PrerequisiteEvent{
			ParentFlagKey: flag.Key,
			Prerequisite:  prereqFlag,
			Result:        result,
		})

		if !(prereqFlag.On && result.VariationIndex == p.RequiredVariation) && failed == nil {
			failed = p
		}
	}
	return failed
}

func (e *Evaluator) matchTargets(flag *ldmodel.FeatureFlag, c ldcontext.Context, defaultValue any) (Result, bool) {
	for i := range flag.ContextTargets {
		ct := &flag.ContextTargets[i]
		single, ok := c.IndividualContext(ct.ContextKind)
		if !ok || single.Key == "" {
			continue
		}
		if _, in := ct.Values[single.Key]; in {
			variation := ct.Variation
			return e.variationResult(flag, &variation, ct.Reason(), defaultValue), true
		}
	}
	key := c.Key()
	if key != "" {
		for i := range flag.Targets[ldcontext.DefaultKind] {
			t := &flag.Targets[ldcontext.DefaultKind][i]
			if _, in := t.Values[key]; in {
				variation := t.Variation
				return e.variationResult(flag, &variation, t.Reason(), defaultValue), true
			}
		}
	}
	return Result{}, false
}

func (e *Evaluator) offResult(flag *ldmodel.FeatureFlag, defaultValue any) Result {
	return e.variationResult(flag, flag.OffVariation, flag.OffReason(), defaultValue)
}

func (e *Evaluator) malformed(defaultValue any) Result {
	return Result{Value: defaultValue, VariationIndex: NoVariation, Reason: ldmodel.ReasonErrorValue(ldmodel.ErrorMalformedFlag)}
}

// variationResult resolves a variation index (nil means "no variation",
// e.g. an off flag with no offVariation configured) to a value.
func (e *Evaluator) variationResult(flag *ldmodel.FeatureFlag, variation *int, reason ldmodel.EvaluationReason, defaultValue any) Result {
	if variation == nil {
		return Result{Value: nil, VariationIndex: NoVariation, Reason: reason}
	}
	idx := *variation
	if idx < 0 || idx >= len(flag.Variations) {
		return e.malformed(defaultValue)
	}
	return Result{Value: flag.Variations[idx], VariationIndex: idx, Reason: reason}
}

// resolveVariationOrRollout picks a variation index from a fixed
// variation or a weighted rollout bucket (spec §4.1, §4.5).
func (e *Evaluator) resolveVariationOrRollout(flag *ldmodel.FeatureFlag, vr *ldmodel.VariationOrRollout, c ldcontext.Context) (int, bool, bool) {
	if vr.Variation != nil {
		return *vr.Variation, false, true
	}
	if vr.Rollout == nil || len(vr.Rollout.Variations) == 0 {
		return 0, false, false
	}

	r := vr.Rollout
	isExperiment := r.Kind == ldmodel.RolloutKindExperiment
	bucket := hashing.Bucket(hashing.Params{
		Seed:         r.Seed,
		Context:      c,
		ContextKind:  r.ContextKind,
		BucketByAttr: bucketByRef(r.BucketBy),
		Key:          flag.Key,
		Salt:         flag.Salt,
		IsExperiment: isExperiment,
	})

	if bucket == hashing.NoBucket {
		first := r.Variations[0]
		return first.Variation, false, true
	}

	target := bucket * 100000.0
	cumulative := 0
	for _, wv := range r.Variations {
		cumulative += wv.Weight
		if target < float64(cumulative) {
			return wv.Variation, isExperiment && !wv.Untracked, true
		}
	}
	// Residual weight (sum < 100000): last declared variation wins
	// (spec §9 Open Question, resolved).
	last := r.Variations[len(r.Variations)-1]
	return last.Variation, isExperiment && !last.Untracked, true
}

func bucketByRef(attr string) *ldcontext.Ref {
	if attr == "" {
		return nil
	}
	ref := ldcontext.NewPathRef(attr)
	return &ref
}
