// Package ldcontext models the hierarchical evaluation subject: either a
// single-kind context (kind, key, attributes) or a bundle of named-kind
// contexts. It generalizes the teacher's fixed-field engine.UserContext
// (internal/engine/types.go) and evaluation.Context
// (internal/evaluation/evaluation.go) into the spec's multi-kind model.
package ldcontext

// DefaultKind is the implicit kind of a clause/rollout/target that doesn't
// specify one — legacy "user" contexts.
const DefaultKind = "user"

// Single is one kind's worth of identity and attributes.
type Single struct {
	Kind       string
	Key        string
	Attributes map[string]any
}

// Context is either one Single (single-kind) or several keyed by kind
// (multi-kind bundle).
type Context struct {
	kinds map[string]Single
}

// New builds a single-kind context under DefaultKind.
func New(key string) Context {
	return NewOfKind(DefaultKind, key)
}

// NewOfKind builds a single-kind context under an explicit kind.
func NewOfKind(kind, key string) Context {
	if kind == "" {
		kind = DefaultKind
	}
	return Context{kinds: map[string]Single{
		kind: {Kind: kind, Key: key, Attributes: map[string]any{}},
	}}
}

// NewMulti builds a multi-kind bundle from its constituents.
func NewMulti(singles ...Single) Context {
	kinds := make(map[string]Single, len(singles))
	for _, s := range singles {
		k := s.Kind
		if k == "" {
			k = DefaultKind
		}
		kinds[k] = s
	}
	return Context{kinds: kinds}
}

// WithAttribute returns a copy of the default-kind single context with the
// attribute set. Convenience for tests and simple callers.
func (c Context) WithAttribute(name string, value any) Context {
	kind := DefaultKind
	single, ok := c.kinds[kind]
	if !ok {
		single = Single{Kind: kind, Attributes: map[string]any{}}
	}
	attrs := make(map[string]any, len(single.Attributes)+1)
	for k, v := range single.Attributes {
		attrs[k] = v
	}
	attrs[name] = value
	single.Attributes = attrs
	out := Context{kinds: make(map[string]Single, len(c.kinds))}
	for k, v := range c.kinds {
		out.kinds[k] = v
	}
	out.kinds[kind] = single
	return out
}

// Valid reports whether the context has at least one kind with a non-empty
// key — the evaluator's USER_NOT_SPECIFIED check (spec §4.5).
func (c Context) Valid() bool {
	if len(c.kinds) == 0 {
		return false
	}
	for _, s := range c.kinds {
		if s.Key != "" {
			return true
		}
	}
	return false
}

// IndividualContext selects the Single for the given kind ("" means
// DefaultKind). ok is false if that kind isn't present in the bundle.
func (c Context) IndividualContext(kind string) (Single, bool) {
	if kind == "" {
		kind = DefaultKind
	}
	s, ok := c.kinds[kind]
	return s, ok
}

// Key returns the key of the default-kind individual context, or "" if
// absent. Used by legacy (kind-less) targets and clauses.
func (c Context) Key() string {
	s, ok := c.IndividualContext(DefaultKind)
	if !ok {
		return ""
	}
	return s.Key
}

// Kinds returns the set of kinds present in this context.
func (c Context) Kinds() []string {
	out := make([]string, 0, len(c.kinds))
	for k := range c.kinds {
		out = append(out, k)
	}
	return out
}

// Ref is a parsed attribute reference: either a literal attribute name or a
// "/"-separated JSON-pointer-like path (spec §6, §9 "two constructors").
type Ref struct {
	literal bool
	name    string
	path    []string
}

// NewLiteralRef builds a reference that names an attribute directly
// (used when no contextKind is given, or for bucketBy = plain name).
func NewLiteralRef(name string) Ref {
	return Ref{literal: true, name: name}
}

// NewPathRef parses a "/a/b/c"-style reference. A leading "/" is required
// to distinguish a path from a literal name containing no slashes; if the
// input has no leading slash it's treated as a literal (single-segment)
// reference, matching common attribute-ref libraries in the ecosystem.
func NewPathRef(ref string) Ref {
	if ref == "" {
		return Ref{literal: true, name: ""}
	}
	if ref[0] != '/' {
		return Ref{literal: true, name: ref}
	}
	segments := splitPointer(ref[1:])
	return Ref{literal: false, path: segments}
}

func splitPointer(s string) []string {
	if s == "" {
		return []string{""}
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			out = append(out, unescapePointerSegment(s[start:i]))
			start = i + 1
		}
	}
	out = append(out, unescapePointerSegment(s[start:]))
	return out
}

func unescapePointerSegment(seg string) string {
	out := make([]byte, 0, len(seg))
	for i := 0; i < len(seg); i++ {
		if seg[i] == '~' && i+1 < len(seg) {
			switch seg[i+1] {
			case '1':
				out = append(out, '/')
				i++
				continue
			case '0':
				out = append(out, '~')
				i++
				continue
			}
		}
		out = append(out, seg[i])
	}
	return string(out)
}

// Valid reports whether the reference parsed to something resolvable.
func (r Ref) Valid() bool {
	if r.literal {
		return r.name != ""
	}
	return len(r.path) > 0
}

// Resolve looks up the reference's value on a Single context. Absence is
// reported via ok=false and must be treated as "non-match", never an error
// (spec §9 "Attribute references").
func (r Ref) Resolve(s Single) (any, bool) {
	if !r.Valid() {
		return nil, false
	}
	if r.literal {
		return resolveLiteral(s, r.name)
	}
	cur, ok := resolveLiteral(s, r.path[0])
	if !ok {
		return nil, false
	}
	for _, seg := range r.path[1:] {
		next, ok := stepInto(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func resolveLiteral(s Single, name string) (any, bool) {
	switch name {
	case "key":
		if s.Key == "" {
			return nil, false
		}
		return s.Key, true
	case "kind":
		if s.Kind == "" {
			return nil, false
		}
		return s.Kind, true
	}
	if s.Attributes == nil {
		return nil, false
	}
	v, ok := s.Attributes[name]
	return v, ok
}

func stepInto(v any, seg string) (any, bool) {
	switch m := v.(type) {
	case map[string]any:
		next, ok := m[seg]
		return next, ok
	case []any:
		idx, ok := parseIndex(seg)
		if !ok || idx < 0 || idx >= len(m) {
			return nil, false
		}
		return m[idx], true
	default:
		return nil, false
	}
}

func parseIndex(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	n := 0
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
