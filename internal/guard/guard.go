// Package guard refuses mod access to reserved host namespaces.
//
// The rewriting core never calls the guard; hosts run it when a loaded mod
// first touches a member.
package guard

import (
	"fmt"
	"slices"
	"strings"

	"modpatch/internal/meta"
)

// Member is anything that can name its declaring type: *meta.FieldRef,
// *meta.MethodRef or *meta.TypeRef.
type Member = meta.Ref

// AccessDeniedError names the mod and the member it tried to reach.
type AccessDeniedError struct {
	Mod    string
	Member string
	Space  string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("mod %s may not access %s (namespace %s is reserved)", e.Mod, e.Member, e.Space)
}

// Guard holds the reserved namespaces. It is immutable and safe for
// concurrent use.
type Guard struct {
	reserved []string
}

// New returns a guard for the given namespaces. Empty entries are ignored.
func New(reserved ...string) *Guard {
	g := &Guard{}
	for _, ns := range reserved {
		ns = strings.Trim(ns, ".")
		if ns != "" && !slices.Contains(g.reserved, ns) {
			g.reserved = append(g.reserved, ns)
		}
	}
	slices.Sort(g.reserved)
	return g
}

// Reserved lists the guarded namespaces in sorted order.
func (g *Guard) Reserved() []string {
	return slices.Clone(g.reserved)
}

// Check returns *AccessDeniedError when m is declared in a reserved
// namespace or below one.
func (g *Guard) Check(modID string, m Member) error {
	ns := namespaceOf(m)
	for _, r := range g.reserved {
		if ns == r || strings.HasPrefix(ns, r+".") {
			return &AccessDeniedError{Mod: modID, Member: m.FullName(), Space: r}
		}
	}
	return nil
}

// CheckModule checks every member reference in mod's method bodies and
// returns all denials.
func (g *Guard) CheckModule(mod *meta.Module) []error {
	var errs []error
	seen := make(map[string]bool)
	for _, t := range mod.AllTypes() {
		for _, m := range t.Methods {
			if m.Body == nil {
				continue
			}
			for _, in := range m.Body.Instructions {
				ref, ok := in.RefOperand()
				if !ok || seen[ref.FullName()] {
					continue
				}
				seen[ref.FullName()] = true
				if err := g.Check(mod.Name, ref); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}
	return errs
}

func namespaceOf(m Member) string {
	var t *meta.TypeRef
	switch r := m.(type) {
	case *meta.TypeRef:
		t = r
	case *meta.FieldRef:
		t = r.DeclaringType
	case *meta.MethodRef:
		t = r.DeclaringType
	}
	for t != nil && (t.Kind == meta.RefArray || t.Kind == meta.RefByRef) {
		t = t.Elem
	}
	if t == nil {
		return ""
	}
	return t.Namespace
}
