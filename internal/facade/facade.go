// Package facade defines synthetic stand-in types for host types whose
// member shapes changed. A facade derives from the current host type and
// re-declares the old shapes with bodies that forward to the current
// members. Facades are redirection targets only and are never constructed.
package facade

import (
	"errors"
	"fmt"

	"modpatch/internal/meta"
)

var (
	// ErrFacadeConstructed is returned by every attempt to build an instance
	// of a facade type.
	ErrFacadeConstructed = errors.New("facade types cannot be constructed")
	// ErrUnresolvedTarget means a shim forwards to a member the host does
	// not have.
	ErrUnresolvedTarget = errors.New("facade forwarding target does not exist")
	// ErrDuplicateFacade is returned when a facade name is registered twice.
	ErrDuplicateFacade = errors.New("facade already registered")
	// ErrGenericHost rejects facades over generic host types. A facade has
	// no generic parameters to carry an instantiation's arguments.
	ErrGenericHost = errors.New("facade host type is generic")
)

// Shim maps one old member shape onto the current host member.
type Shim struct {
	Old    *meta.MethodRef
	Target *meta.MethodRef
}

// Facade is a built, immutable facade definition.
type Facade struct {
	scope       string
	def         *meta.TypeDef
	substitutes *meta.TypeRef
	shims       []Shim
}

// Name returns the facade's full type name.
func (f *Facade) Name() string { return f.def.FullName() }

// Scope returns the module scope the facade is published under.
func (f *Facade) Scope() string { return f.scope }

// Def returns the synthetic type definition. Callers must not modify it.
func (f *Facade) Def() *meta.TypeDef { return f.def }

// Ref returns a fresh named reference to the facade type.
func (f *Facade) Ref() *meta.TypeRef { return f.def.Ref(f.scope) }

// Substitutes returns the host type this facade stands in for.
func (f *Facade) Substitutes() *meta.TypeRef { return f.substitutes }

// Shims returns the re-declared old shapes.
func (f *Facade) Shims() []Shim { return f.shims }

// Declares reports whether the facade itself re-declares mr's shape.
func (f *Facade) Declares(mr *meta.MethodRef) bool {
	for _, s := range f.shims {
		if meta.SameShape(s.Old, mr) {
			return true
		}
	}
	return false
}

// Construct always fails. Facades exist to be pointed at, never to be
// instantiated, and no partially built value is ever returned.
func (f *Facade) Construct(args ...any) (any, error) {
	return nil, fmt.Errorf("%w: %s (%d args)", ErrFacadeConstructed, f.Name(), len(args))
}
