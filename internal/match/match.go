// Package match identifies references that a rewrite rule cares about.
//
// A Matcher is a pure predicate over the three reference shapes exposed by
// package meta. Type references match by the generic definition's name,
// member references match through their declaring type.
package match

import (
	"slices"
	"strings"

	"modpatch/internal/meta"
)

// Matcher reports whether a reference identifies its target. Implementations
// hold no mutable state and may be shared across modules and goroutines.
type Matcher interface {
	Name() string
	Matches(ref meta.Ref) bool
}

type memberKind uint8

const (
	anyMember memberKind = iota
	fieldsOnly
	methodsOnly
)

// TypeMatcher matches references whose type identity is a given full name.
type TypeMatcher struct {
	fullName string
	scope    string
	strict   []*meta.TypeRef
	members  []string
	kind     memberKind
}

// Option configures a TypeMatcher.
type Option func(*TypeMatcher)

// InScope additionally requires the matched type to come from scope.
func InScope(scope string) Option {
	return func(m *TypeMatcher) { m.scope = scope }
}

// Strict requires generic instantiations to carry exactly args. Bare
// references never match a strict matcher.
func Strict(args ...*meta.TypeRef) Option {
	return func(m *TypeMatcher) { m.strict = args }
}

// Members restricts matching to member references with one of the given
// names. Bare type references never match once a member filter is set.
func Members(names ...string) Option {
	return func(m *TypeMatcher) { m.members = append(m.members, names...) }
}

// Fields restricts matching to field references.
func Fields() Option {
	return func(m *TypeMatcher) { m.kind = fieldsOnly }
}

// Methods restricts matching to method references.
func Methods() Option {
	return func(m *TypeMatcher) { m.kind = methodsOnly }
}

// Type returns a matcher for the type named fullName.
func Type(fullName string, opts ...Option) *TypeMatcher {
	m := &TypeMatcher{fullName: fullName}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name describes the matcher for diagnostics.
func (m *TypeMatcher) Name() string {
	var sb strings.Builder
	if m.scope != "" {
		sb.WriteString("[" + m.scope + "]")
	}
	sb.WriteString(m.fullName)
	if len(m.strict) > 0 {
		sb.WriteByte('<')
		for i, a := range m.strict {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(a.FullName())
		}
		sb.WriteByte('>')
	}
	if len(m.members) > 0 {
		sb.WriteString("::{" + strings.Join(m.members, ",") + "}")
	}
	return sb.String()
}

// FullName is the target type name.
func (m *TypeMatcher) FullName() string { return m.fullName }

// Matches implements Matcher.
func (m *TypeMatcher) Matches(ref meta.Ref) bool {
	switch r := ref.(type) {
	case *meta.TypeRef:
		if len(m.members) > 0 || m.kind != anyMember {
			return false
		}
		return m.MatchesType(r)
	case *meta.FieldRef:
		if r == nil || m.kind == methodsOnly {
			return false
		}
		return m.memberName(r.Name) && m.MatchesType(r.DeclaringType)
	case *meta.MethodRef:
		if r == nil || m.kind == fieldsOnly {
			return false
		}
		return m.memberName(r.Name) && m.MatchesType(r.DeclaringType)
	default:
		return false
	}
}

// MatchesType checks a type reference's own identity, ignoring member
// filters. Placeholders, arrays and byrefs never match as a whole.
func (m *TypeMatcher) MatchesType(t *meta.TypeRef) bool {
	if t == nil {
		return false
	}
	if m.scope != "" && t.Scope != m.scope {
		return false
	}
	switch t.Kind {
	case meta.RefNamed:
		return len(m.strict) == 0 && t.DefinitionName() == m.fullName
	case meta.RefGenericInst:
		if t.DefinitionName() != m.fullName {
			return false
		}
		return len(m.strict) == 0 || meta.EqualAll(t.Args, m.strict)
	default:
		return false
	}
}

func (m *TypeMatcher) memberName(name string) bool {
	return len(m.members) == 0 || slices.Contains(m.members, name)
}

// ScopeMatcher matches every type from one scope.
type ScopeMatcher struct {
	scope string
}

// Scope returns a matcher for all types declared in scope. Member
// references match through their declaring type.
func Scope(scope string) *ScopeMatcher {
	return &ScopeMatcher{scope: scope}
}

// Name describes the matcher for diagnostics.
func (m *ScopeMatcher) Name() string { return "[" + m.scope + "]*" }

// Matches implements Matcher.
func (m *ScopeMatcher) Matches(ref meta.Ref) bool {
	switch r := ref.(type) {
	case *meta.TypeRef:
		return r != nil && (r.Kind == meta.RefNamed || r.Kind == meta.RefGenericInst) && r.Scope == m.scope
	case *meta.FieldRef:
		return r != nil && m.Matches(r.DeclaringType)
	case *meta.MethodRef:
		return r != nil && m.Matches(r.DeclaringType)
	default:
		return false
	}
}

type anyOf []Matcher

// Any matches when at least one of ms matches.
func Any(ms ...Matcher) Matcher {
	return anyOf(ms)
}

func (a anyOf) Name() string {
	names := make([]string, len(a))
	for i, m := range a {
		names[i] = m.Name()
	}
	return "any(" + strings.Join(names, "|") + ")"
}

func (a anyOf) Matches(ref meta.Ref) bool {
	for _, m := range a {
		if m.Matches(ref) {
			return true
		}
	}
	return false
}

// First returns the first matcher in ms that matches ref.
func First(ms []Matcher, ref meta.Ref) (Matcher, bool) {
	for _, m := range ms {
		if m.Matches(ref) {
			return m, true
		}
	}
	return nil, false
}
