// Package host indexes the current host module set so rewrite rules can
// check that replacement targets and redirected members actually exist.
package host

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"modpatch/internal/meta"
)

// maxBaseDepth bounds base-type walks over malformed hierarchies.
const maxBaseDepth = 32

type entry struct {
	scope string
	def   *meta.TypeDef
}

// Catalog is a read-only index once populated. Populate it before any
// rewrite pass starts; concurrent lookups are then safe.
type Catalog struct {
	types  map[string]entry
	scopes []string
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{types: make(map[string]entry, 64)}
}

// ErrDuplicateType is returned when a full name is registered by two
// different definitions. Lookups are by full name, so the catalog cannot
// hold both.
var ErrDuplicateType = errors.New("host type registered twice")

// AddModule registers every type of m under scope m.Name. Every duplicate
// is reported; the other types are still registered.
func (c *Catalog) AddModule(m *meta.Module) error {
	var errs []error
	for _, t := range m.AllTypes() {
		if err := c.AddType(m.Name, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AddType registers a single type definition under scope. Registering the
// same definition under the same scope again is a no-op.
func (c *Catalog) AddType(scope string, def *meta.TypeDef) error {
	name := def.FullName()
	if prev, ok := c.types[name]; ok {
		if prev.def == def && prev.scope == scope {
			return nil
		}
		return fmt.Errorf("%w: %s in scope %s and scope %s", ErrDuplicateType, name, prev.scope, scope)
	}
	c.types[name] = entry{scope: scope, def: def}
	if !slices.Contains(c.scopes, scope) {
		c.scopes = append(c.scopes, scope)
		sort.Strings(c.scopes)
	}
	return nil
}

// Scopes lists the registered host scopes in sorted order.
func (c *Catalog) Scopes() []string {
	return slices.Clone(c.scopes)
}

// HasScope reports whether scope belongs to the host module set.
func (c *Catalog) HasScope(scope string) bool {
	return slices.Contains(c.scopes, scope)
}

// Len returns the number of registered types.
func (c *Catalog) Len() int {
	return len(c.types)
}

// Type looks a definition up by full name.
func (c *Catalog) Type(fullName string) (*meta.TypeDef, string, bool) {
	e, ok := c.types[fullName]
	if !ok {
		return nil, "", false
	}
	return e.def, e.scope, true
}

// Ref returns a named reference to the host type fullName.
func (c *Catalog) Ref(fullName string) (*meta.TypeRef, error) {
	e, ok := c.types[fullName]
	if !ok {
		return nil, fmt.Errorf("host type %s not found", fullName)
	}
	return e.def.Ref(e.scope), nil
}

// ResolveType reports whether t can be satisfied. References into scopes
// outside the host set are assumed resolvable; they are not ours to check.
func (c *Catalog) ResolveType(t *meta.TypeRef) bool {
	return c.resolveType(t, 0)
}

func (c *Catalog) resolveType(t *meta.TypeRef, depth int) bool {
	if t == nil || depth > maxBaseDepth {
		return false
	}
	switch t.Kind {
	case meta.RefNamed, meta.RefGenericInst:
		if c.HasScope(t.Scope) {
			e, ok := c.types[t.DefinitionName()]
			if !ok || e.scope != t.Scope {
				return false
			}
			if t.Kind == meta.RefGenericInst && len(e.def.GenericParams) != len(t.Args) {
				return false
			}
		}
		for _, a := range t.Args {
			if !c.resolveType(a, depth+1) {
				return false
			}
		}
		return true
	case meta.RefArray, meta.RefByRef:
		return c.resolveType(t.Elem, depth+1)
	case meta.RefGenericParam:
		return t.Param != nil
	default:
		return false
	}
}

// Owns reports whether t's scope is a host scope, i.e. whether the catalog
// is authoritative for it.
func (c *Catalog) Owns(t *meta.TypeRef) bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case meta.RefArray, meta.RefByRef:
		return c.Owns(t.Elem)
	case meta.RefNamed, meta.RefGenericInst:
		return c.HasScope(t.Scope)
	default:
		return false
	}
}
