// Package legacyflag bridges the original flat flag shape (Record,
// internal/rules.Rule/Condition, an integer Rollout percentage) into the
// richer ldmodel.FeatureFlag rule tree the evaluator (C5) understands.
// Flags authored against the older shape keep working unmodified:
// Convert is the one seam where that backward compatibility lives, so
// internal/rules and its percent-based Distribution semantics stay
// reachable from real evaluation rather than sitting unexercised.
package legacyflag

import (
	"fmt"

	"github.com/TimurManjosov/goflagship/internal/ldmodel"
	"github.com/TimurManjosov/goflagship/internal/rules"
)

// offVariation is always index 0 in a converted flag: the disabled
// value. Variant-bearing flags occupy indices 1..len(Variants).
const offVariation = 0

// rolloutWeightUnit converts a legacy 0-100 percentage into the
// evaluator's 0-100000 weight unit (spec §4.1).
const rolloutWeightUnit = 1000

// opTable maps the teacher's fixed operator set onto the clause kernel's
// operator names (internal/operators).
var opTable = map[rules.Operator]string{
	rules.OpEq:       "in",
	rules.OpNeq:       "in",
	rules.OpContains: "contains",
	rules.OpIn:        "in",
	rules.OpGt:        "greaterThan",
	rules.OpLt:        "lessThan",
	rules.OpGte:       "greaterThanOrEqual",
	rules.OpLte:       "lessThanOrEqual",
	rules.OpSemVerGt: "semVerGreaterThan",
	rules.OpSemVerLt: "semVerLessThan",
}

// negatedOps holds the operators whose teacher semantics are the
// negation of the clause kernel's native operator (neq via negated in).
var negatedOps = map[rules.Operator]bool{
	rules.OpNeq: true,
}

// Convert builds an equivalent ldmodel.FeatureFlag for flag, version
// stamped by the caller (Record has no version column — callers
// typically derive one from UpdatedAt or an external counter). Every
// targeting rule is validated with rules.ValidateRule before conversion,
// so a malformed legacy rule is rejected here rather than silently
// misinterpreted downstream.
func Convert(flag Record, version int) (*ldmodel.FeatureFlag, error) {
	variations, variantIndex := buildVariations(flag.Variants)
	off := offVariation

	built := &ldmodel.FeatureFlag{
		Key:          flag.Key,
		Version:      version,
		On:           flag.Enabled,
		Variations:   variations,
		OffVariation: &off,
		Salt:         flag.Key,
	}

	built.Fallthrough = buildRolloutFallthrough(flag.Rollout, variantIndex)

	var builtRules []ldmodel.Rule
	for _, r := range flag.TargetingRules {
		if err := rules.ValidateRule(r); err != nil {
			return nil, fmt.Errorf("legacyflag: rule %s: %w", r.ID, err)
		}
		converted, err := convertRule(r, variantIndex)
		if err != nil {
			return nil, fmt.Errorf("legacyflag: rule %s: %w", r.ID, err)
		}
		builtRules = append(builtRules, converted)
	}
	built.Rules = builtRules

	built.Finalize()
	return built, nil
}

func buildVariations(variants []Variant) ([]any, map[string]int) {
	variations := make([]any, 0, len(variants)+2)
	variations = append(variations, false) // index 0: off
	index := map[string]int{}
	if len(variants) == 0 {
		variations = append(variations, true) // index 1: on, no variants configured
		return variations, index
	}
	for _, v := range variants {
		idx := len(variations)
		if v.Config != nil {
			variations = append(variations, v.Config)
		} else {
			variations = append(variations, v.Name)
		}
		index[v.Name] = idx
	}
	return variations, index
}

// buildRolloutFallthrough maps the flag-level 0-100 Rollout percentage
// onto the default "on" variation (index 1, or the sole configured
// variant when there's exactly one) versus the off variation.
func buildRolloutFallthrough(legacyRolloutPercent int32, variantIndex map[string]int) ldmodel.VariationOrRollout {
	onIdx := defaultOnVariation(variantIndex)
	if legacyRolloutPercent >= 100 {
		v := onIdx
		return ldmodel.VariationOrRollout{Variation: &v}
	}
	off := offVariation
	return ldmodel.VariationOrRollout{Rollout: &ldmodel.Rollout{
		Kind: ldmodel.RolloutKindRollout,
		Variations: []ldmodel.WeightedVariation{
			{Variation: onIdx, Weight: int(legacyRolloutPercent) * rolloutWeightUnit},
			{Variation: off, Weight: (100 - int(legacyRolloutPercent)) * rolloutWeightUnit},
		},
	}}
}

// buildRuleRollout maps a targeting rule's variant-name -> weight
// Distribution onto the evaluator's weighted-variation rollout.
func buildRuleRollout(dist map[string]int, variantIndex map[string]int) (ldmodel.VariationOrRollout, error) {
	total := 0
	for _, weight := range dist {
		total += weight
	}
	// Distribution sums to exactly 100 (percent mode) or 10000
	// (basis-points mode, spec-compatible units already); scale whichever
	// mode it's in up to the evaluator's 0-100000 weight unit.
	scale := rolloutWeightUnit
	if total == 10000 {
		scale = 10
	}

	weighted := make([]ldmodel.WeightedVariation, 0, len(dist))
	for name, weight := range dist {
		idx, ok := variantIndex[name]
		if !ok {
			return ldmodel.VariationOrRollout{}, fmt.Errorf("legacyflag: distribution references unknown variant %q", name)
		}
		weighted = append(weighted, ldmodel.WeightedVariation{Variation: idx, Weight: weight * scale})
	}
	return ldmodel.VariationOrRollout{Rollout: &ldmodel.Rollout{
		Kind:       ldmodel.RolloutKindRollout,
		Variations: weighted,
	}}, nil
}

func defaultOnVariation(variantIndex map[string]int) int {
	if len(variantIndex) == 1 {
		for _, idx := range variantIndex {
			return idx
		}
	}
	return 1
}

func convertRule(r rules.Rule, variantIndex map[string]int) (ldmodel.Rule, error) {
	clauses := make([]ldmodel.Clause, 0, len(r.Conditions))
	for _, cond := range r.Conditions {
		clause, err := convertCondition(cond)
		if err != nil {
			return ldmodel.Rule{}, err
		}
		clauses = append(clauses, clause)
	}

	vor, err := buildRuleRollout(r.Distribution, variantIndex)
	if err != nil {
		return ldmodel.Rule{}, err
	}

	return ldmodel.Rule{
		ID:                 r.ID,
		Clauses:            clauses,
		VariationOrRollout: vor,
	}, nil
}

func convertCondition(c rules.Condition) (ldmodel.Clause, error) {
	op, ok := opTable[c.Operator]
	if !ok {
		return ldmodel.Clause{}, fmt.Errorf("legacyflag: unsupported operator %q", c.Operator)
	}

	values := c.Value
	var vs []any
	if slice, ok := values.([]any); ok {
		vs = slice
	} else {
		vs = []any{values}
	}

	return ldmodel.Clause{
		Attribute: c.Property,
		Op:        op,
		Values:    vs,
		Negate:    negatedOps[c.Operator],
	}, nil
}
