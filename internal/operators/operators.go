// Package operators implements the clause-operator kernel (spec §4.2,
// C2): given a context attribute value and a clause's operator/values,
// decide whether any value matches. It is grounded on the teacher's
// internal/engine/operators.go handler-map + regexCache shape, widened
// from the teacher's fixed operator set to the spec's richer one and
// switched to read ldmodel.Clause's Finalize-precomputed caches instead
// of a package-level sync.Map.
package operators

import (
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/TimurManjosov/goflagship/internal/ldmodel"
	"github.com/TimurManjosov/goflagship/internal/ldvalue"
)

// SegmentMatchOp is handled outside this package (it needs store access
// to resolve segment membership) — callers must intercept it before
// calling Evaluate.
const SegmentMatchOp = "segmentMatch"

// handler checks a single clause value against a resolved context value.
// i is the value's index in Values, used to reach Finalize's precomputed
// per-index caches (regex, date, semver) without recompiling per call.
type handler func(clause *ldmodel.Clause, i int, contextValue any) bool

var handlers = map[string]handler{
	"in":                handleIn,
	"startsWith":        handleStartsWith,
	"endsWith":          handleEndsWith,
	"contains":          handleContains,
	"matches":           handleMatches,
	"lessThan":          numericHandler(func(a, b float64) bool { return a < b }),
	"lessThanOrEqual":   numericHandler(func(a, b float64) bool { return a <= b }),
	"greaterThan":       numericHandler(func(a, b float64) bool { return a > b }),
	"greaterThanOrEqual": numericHandler(func(a, b float64) bool { return a >= b }),
	"before":            handleBefore,
	"after":             handleAfter,
	"semVerEqual":       semverHandler(func(a, b *semver.Version) bool { return a.Equal(b) }),
	"semVerLessThan":    semverHandler(func(a, b *semver.Version) bool { return a.LessThan(b) }),
	"semVerGreaterThan": semverHandler(func(a, b *semver.Version) bool { return a.GreaterThan(b) }),
}

// Evaluate reports whether clause matches contextValue, applying Negate
// last (spec §4.2: "operator result is computed first, then negate is
// applied"). Absent contextValue is the caller's responsibility — an
// unresolved attribute reference must short-circuit to no-match before
// calling Evaluate.
func Evaluate(clause *ldmodel.Clause, contextValue any) bool {
	result := evaluateRaw(clause, contextValue)
	if clause.Negate {
		return !result
	}
	return result
}

func evaluateRaw(clause *ldmodel.Clause, contextValue any) bool {
	if clause.Op == "in" {
		if set, ok := clause.InSet(); ok {
			return inSetMatch(set, contextValue)
		}
	}

	h, ok := handlers[clause.Op]
	if !ok {
		return false
	}
	for i := range clause.Values {
		if h(clause, i, contextValue) {
			return true
		}
	}
	return false
}

func inSetMatch(set map[any]struct{}, contextValue any) bool {
	switch v := contextValue.(type) {
	case string, bool:
		_, ok := set[v]
		return ok
	case int:
		_, ok := set[int64(v)]
		return ok
	case int32:
		_, ok := set[int64(v)]
		return ok
	case int64:
		_, ok := set[v]
		return ok
	case float64:
		_, ok := set[v]
		return ok
	default:
		return false
	}
}

func handleIn(clause *ldmodel.Clause, i int, contextValue any) bool {
	return valuesEqual(clause.Values[i], contextValue)
}

func valuesEqual(ruleValue, contextValue any) bool {
	if rs, ok := ldvalue.AsString(ruleValue); ok {
		cs, ok := ldvalue.AsString(contextValue)
		return ok && rs == cs
	}
	if rf, ok := ldvalue.AsFloat64(ruleValue); ok {
		cf, ok := ldvalue.AsFloat64(contextValue)
		return ok && rf == cf
	}
	if rb, ok := ruleValue.(bool); ok {
		cb, ok := contextValue.(bool)
		return ok && rb == cb
	}
	return false
}

func handleStartsWith(clause *ldmodel.Clause, i int, contextValue any) bool {
	cs, ok := ldvalue.AsString(contextValue)
	if !ok {
		return false
	}
	rs, ok := ldvalue.AsString(clause.Values[i])
	if !ok {
		return false
	}
	return strings.HasPrefix(cs, rs)
}

func handleEndsWith(clause *ldmodel.Clause, i int, contextValue any) bool {
	cs, ok := ldvalue.AsString(contextValue)
	if !ok {
		return false
	}
	rs, ok := ldvalue.AsString(clause.Values[i])
	if !ok {
		return false
	}
	return strings.HasSuffix(cs, rs)
}

func handleContains(clause *ldmodel.Clause, i int, contextValue any) bool {
	cs, ok := ldvalue.AsString(contextValue)
	if !ok {
		return false
	}
	rs, ok := ldvalue.AsString(clause.Values[i])
	if !ok {
		return false
	}
	return strings.Contains(cs, rs)
}

func handleMatches(clause *ldmodel.Clause, i int, contextValue any) bool {
	cs, ok := ldvalue.AsString(contextValue)
	if !ok {
		return false
	}
	rx, ok := clause.CompiledRegex(i)
	if !ok {
		return false
	}
	return rx.MatchString(cs)
}

func numericHandler(cmp func(a, b float64) bool) handler {
	return func(clause *ldmodel.Clause, i int, contextValue any) bool {
		cf, ok := ldvalue.AsFloat64(contextValue)
		if !ok {
			return false
		}
		rf, ok := ldvalue.AsFloat64(clause.Values[i])
		if !ok {
			return false
		}
		return cmp(cf, rf)
	}
}

func handleBefore(clause *ldmodel.Clause, i int, contextValue any) bool {
	ct, ok := coerceTime(contextValue)
	if !ok {
		return false
	}
	rt, ok := clause.ParsedDate(i)
	if !ok {
		return false
	}
	return ct.Before(rt)
}

func handleAfter(clause *ldmodel.Clause, i int, contextValue any) bool {
	ct, ok := coerceTime(contextValue)
	if !ok {
		return false
	}
	rt, ok := clause.ParsedDate(i)
	if !ok {
		return false
	}
	return ct.After(rt)
}

// coerceTime accepts an RFC3339 string or a unix-millis number, matching
// the value shapes Finalize's ParsedDate accepts for clause values.
func coerceTime(v any) (time.Time, bool) {
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

func semverHandler(cmp func(a, b *semver.Version) bool) handler {
	return func(clause *ldmodel.Clause, i int, contextValue any) bool {
		cs, ok := ldvalue.AsString(contextValue)
		if !ok {
			return false
		}
		cv, err := semver.NewVersion(cs)
		if err != nil {
			return false
		}
		rv, ok := clause.ParsedSemver(i)
		if !ok {
			return false
		}
		return cmp(cv, rv)
	}
}
