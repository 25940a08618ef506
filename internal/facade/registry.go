package facade

import (
	"fmt"
	"sort"

	"modpatch/internal/host"
	"modpatch/internal/meta"
)

// Registry is the fixed set of facades available to rules. Populate it
// before rewriting starts; it is read-only afterwards.
type Registry struct {
	byName map[string]*Facade
	byHost map[string][]*Facade
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Facade),
		byHost: make(map[string][]*Facade),
	}
}

// Register adds f. Names must be unique.
func (r *Registry) Register(f *Facade) error {
	if _, ok := r.byName[f.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateFacade, f.Name())
	}
	r.byName[f.Name()] = f
	hostName := f.Substitutes().DefinitionName()
	r.byHost[hostName] = append(r.byHost[hostName], f)
	return nil
}

// Install publishes every facade definition in cat so that references to
// facades resolve like references to ordinary host types. A facade named
// like an existing host type is rejected.
func (r *Registry) Install(cat *host.Catalog) error {
	for _, f := range r.Facades() {
		if err := cat.AddType(f.Scope(), f.Def()); err != nil {
			return fmt.Errorf("install facade %s: %w", f.Name(), err)
		}
	}
	return nil
}

// Lookup finds a facade by full name.
func (r *Registry) Lookup(fullName string) (*Facade, bool) {
	f, ok := r.byName[fullName]
	return f, ok
}

// ForHost lists the facades standing in for the host type hostName.
func (r *Registry) ForHost(hostName string) []*Facade {
	return r.byHost[hostName]
}

// IsFacade reports whether t names a registered facade type.
func (r *Registry) IsFacade(t *meta.TypeRef) bool {
	if r == nil || t == nil {
		return false
	}
	_, ok := r.byName[t.DefinitionName()]
	return ok
}

// Facades returns all facades ordered by name.
func (r *Registry) Facades() []*Facade {
	out := make([]*Facade, 0, len(r.byName))
	for _, f := range r.byName {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of registered facades.
func (r *Registry) Len() int { return len(r.byName) }

// ResolveMethod reports whether mr, declared on a facade, binds to a
// member: either a re-declared old shape or, through the facade's base, a
// current host member.
func (r *Registry) ResolveMethod(mr *meta.MethodRef, cat *host.Catalog) bool {
	f, ok := r.Lookup(mr.DeclaringType.DefinitionName())
	if !ok {
		return false
	}
	if f.Declares(mr) {
		return true
	}
	if mr.IsCtor() {
		return false
	}
	inherited := mr.Copy()
	inherited.DeclaringType = f.Substitutes()
	_, ok = cat.ResolveMethod(inherited)
	return ok
}

// ResolveField reports whether fr, declared on a facade, binds to a field
// of the substituted host type.
func (r *Registry) ResolveField(fr *meta.FieldRef, cat *host.Catalog) bool {
	f, ok := r.Lookup(fr.DeclaringType.DefinitionName())
	if !ok {
		return false
	}
	inherited := fr.Copy()
	inherited.DeclaringType = f.Substitutes()
	_, ok = cat.ResolveField(inherited)
	return ok
}
