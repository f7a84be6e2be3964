package ldmodel

import (
	"regexp"
	"time"

	"github.com/Masterminds/semver/v3"
)

// clausePreprocessed holds the one-shot precomputation attached to a
// Clause on Finalize (spec §4.3 C3): compiled regexes, parsed dates,
// parsed semvers index-aligned with Values, and a set for fast `in`
// membership testing when there's more than one value.
type clausePreprocessed struct {
	done    bool
	inSet   map[any]struct{}
	regexes []*regexp.Regexp
	dates   []time.Time
	semvers []*semver.Version
}

func (c *Clause) finalize() {
	p := clausePreprocessed{
		regexes: make([]*regexp.Regexp, len(c.Values)),
		dates:   make([]time.Time, len(c.Values)),
		semvers: make([]*semver.Version, len(c.Values)),
	}

	if c.Op == "in" && len(c.Values) > 1 {
		set := make(map[any]struct{}, len(c.Values))
		for _, v := range c.Values {
			key, ok := normalizeForSet(v)
			if !ok {
				set = nil
				break
			}
			set[key] = struct{}{}
		}
		p.inSet = set
	}

	for i, v := range c.Values {
		switch c.Op {
		case "matches":
			if s, ok := v.(string); ok {
				if rx, err := regexp.Compile(s); err == nil {
					p.regexes[i] = rx
				}
			}
		case "before", "after":
			if t, ok := parseDateValue(v); ok {
				p.dates[i] = t
			}
		case "semVerEqual", "semVerLessThan", "semVerGreaterThan":
			if s, ok := v.(string); ok {
				if sv, err := semver.NewVersion(permissiveSemver(s)); err == nil {
					p.semvers[i] = sv
				}
			}
		}
	}

	p.done = true
	c.preprocessed = p
}

// normalizeForSet produces a comparable key for the `in`-set. Only
// strings and bools are set keys; a clause holding any other value
// (numbers included) gets no fast set and is matched the slow way instead.
func normalizeForSet(v any) (any, bool) {
	switch val := v.(type) {
	case string, bool:
		return val, true
	default:
		return nil, false
	}
}

// InSet returns the precomputed fast-path set for an `in` clause, or
// nil,false if preprocessing hasn't happened or doesn't apply.
func (c *Clause) InSet() (map[any]struct{}, bool) {
	if !c.preprocessed.done {
		return nil, false
	}
	return c.preprocessed.inSet, c.preprocessed.inSet != nil
}

// CompiledRegex returns the compiled regex for Values[i], if any and if
// preprocessing happened.
func (c *Clause) CompiledRegex(i int) (*regexp.Regexp, bool) {
	if !c.preprocessed.done || i >= len(c.preprocessed.regexes) {
		return nil, false
	}
	rx := c.preprocessed.regexes[i]
	return rx, rx != nil
}

// ParsedDate returns the precomputed date for Values[i], if any.
func (c *Clause) ParsedDate(i int) (time.Time, bool) {
	if !c.preprocessed.done || i >= len(c.preprocessed.dates) {
		return time.Time{}, false
	}
	t := c.preprocessed.dates[i]
	return t, !t.IsZero()
}

// ParsedSemver returns the precomputed semver for Values[i], if any.
func (c *Clause) ParsedSemver(i int) (*semver.Version, bool) {
	if !c.preprocessed.done || i >= len(c.preprocessed.semvers) {
		return nil, false
	}
	sv := c.preprocessed.semvers[i]
	return sv, sv != nil
}

// Preprocessed reports whether Finalize has run for this clause — the
// evaluator must stay correct (just slower) when it hasn't (spec §4.3).
func (c *Clause) Preprocessed() bool { return c.preprocessed.done }

func parseDateValue(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, val); err == nil {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return t, true
		}
		return time.Time{}, false
	case float64:
		return time.UnixMilli(int64(val)).UTC(), true
	case int64:
		return time.UnixMilli(val).UTC(), true
	case int:
		return time.UnixMilli(int64(val)).UTC(), true
	default:
		return time.Time{}, false
	}
}

// permissiveSemver fills in missing minor/patch components with 0, per
// spec §4.2 "parsed permissively (missing minor/patch -> 0)".
func permissiveSemver(s string) string {
	dots := 0
	for _, r := range s {
		if r == '.' {
			dots++
		} else if r == '-' || r == '+' {
			break
		}
	}
	switch dots {
	case 0:
		return insertBeforeSuffix(s, ".0.0")
	case 1:
		return insertBeforeSuffix(s, ".0")
	default:
		return s
	}
}

func insertBeforeSuffix(s, ins string) string {
	for i, r := range s {
		if r == '-' || r == '+' {
			return s[:i] + ins + s[i:]
		}
	}
	return s + ins
}

// ruleReason caches the immutable RULE_MATCH reason for a rule/segment
// rule so the evaluator never allocates one on the hot path.
type ruleReason struct {
	plain        EvaluationReason
	inExperiment EvaluationReason
}

func (r *Rule) finalize(index int) {
	r.preprocessed = ruleReason{
		plain:        ReasonRuleMatchValue(index, r.ID, false),
		inExperiment: ReasonRuleMatchValue(index, r.ID, true),
	}
	for i := range r.Clauses {
		r.Clauses[i].finalize()
	}
}

// Reason returns the cached RULE_MATCH reason for this rule.
func (r *Rule) Reason(inExperiment bool) EvaluationReason {
	if inExperiment {
		return r.preprocessed.inExperiment
	}
	return r.preprocessed.plain
}

func (r *SegmentRule) finalize(index int) {
	r.preprocessed = ruleReason{
		plain: ReasonRuleMatchValue(index, r.ID, false),
	}
	for i := range r.Clauses {
		r.Clauses[i].finalize()
	}
}

// reasonPrerequisiteFailed caches a PREREQUISITE_FAILED reason.
type reasonPrerequisiteFailed struct {
	reason EvaluationReason
}

func (p *Prerequisite) finalize() {
	p.preprocessed = reasonPrerequisiteFailed{reason: ReasonPrerequisiteFailedValue(p.FlagKey)}
}

// Reason returns the cached PREREQUISITE_FAILED reason.
func (p *Prerequisite) Reason() EvaluationReason { return p.preprocessed.reason }

// targetMatchResult caches the immutable TARGET_MATCH reason, avoiding
// allocation on the hot path.
type targetMatchResult struct {
	reason EvaluationReason
}

func (t *Target) finalize() { t.preprocessed = targetMatchResult{reason: ReasonTargetMatchValue()} }
func (t *Target) Reason() EvaluationReason { return t.preprocessed.reason }

func (t *ContextTarget) finalize() { t.preprocessed = targetMatchResult{reason: ReasonTargetMatchValue()} }
func (t *ContextTarget) Reason() EvaluationReason { return t.preprocessed.reason }

// flagPreprocessed caches flag-level immutable reasons.
type flagPreprocessed struct {
	off               EvaluationReason
	fallthroughPlain  EvaluationReason
	fallthroughExp    EvaluationReason
}

// Finalize performs the one-shot precomputation a deserializer must call
// exactly once before publishing a flag (spec §9 "expose a Finalize() ...
// do not rely on implicit hooks"). Calling it twice is safe but wasteful;
// not calling it keeps the evaluator correct, just slower (spec §4.3).
func (f *FeatureFlag) Finalize() {
	for i := range f.Prerequisites {
		f.Prerequisites[i].finalize()
	}
	for kind := range f.Targets {
		targets := f.Targets[kind]
		for i := range targets {
			targets[i].finalize()
		}
		f.Targets[kind] = targets
	}
	for i := range f.ContextTargets {
		f.ContextTargets[i].finalize()
	}
	for i := range f.Rules {
		f.Rules[i].finalize(i)
	}
	f.preprocessed = flagPreprocessed{
		off:              ReasonOffValue(),
		fallthroughPlain: ReasonFallthroughValue(false),
		fallthroughExp:   ReasonFallthroughValue(true),
	}
	f.finalized = true
}

func (f *FeatureFlag) Finalized() bool { return f.finalized }

func (f *FeatureFlag) OffReason() EvaluationReason { return f.preprocessed.off }

func (f *FeatureFlag) FallthroughReason(inExperiment bool) EvaluationReason {
	if inExperiment {
		return f.preprocessed.fallthroughExp
	}
	return f.preprocessed.fallthroughPlain
}

// Finalize precomputes a segment's nested rules' clause caches.
func (s *Segment) Finalize() {
	for i := range s.Rules {
		s.Rules[i].finalize(i)
	}
	s.finalized = true
}

func (s *Segment) Finalized() bool { return s.finalized }
