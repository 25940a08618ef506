package meta

import "slices"

// Module is the unit being rewritten: the types a mod declares plus the
// external scopes and references it uses.
type Module struct {
	Name string
	// Platform is the platform variant the module was built for.
	Platform string
	// Scopes lists the external module scopes this module references.
	Scopes []string
	Types  []*TypeDef

	imports *importTable
}

// NewModule returns an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// HasScope reports whether scope is already referenced.
func (m *Module) HasScope(scope string) bool {
	return slices.Contains(m.Scopes, scope)
}

func (m *Module) addScope(scope string) {
	if scope == "" || m.HasScope(scope) {
		return
	}
	m.Scopes = append(m.Scopes, scope)
}

// AllTypes returns every type definition, nested ones following their
// declaring type.
func (m *Module) AllTypes() []*TypeDef {
	out := make([]*TypeDef, 0, len(m.Types))
	var walk func(ts []*TypeDef)
	walk = func(ts []*TypeDef) {
		for _, t := range ts {
			out = append(out, t)
			walk(t.Nested)
		}
	}
	walk(m.Types)
	return out
}

// FindType returns the definition with the given dotted name.
func (m *Module) FindType(fullName string) *TypeDef {
	for _, t := range m.AllTypes() {
		if t.FullName() == fullName {
			return t
		}
	}
	return nil
}

// MethodCount is the number of method definitions across all types.
func (m *Module) MethodCount() int {
	n := 0
	for _, t := range m.AllTypes() {
		n += len(t.Methods)
	}
	return n
}

func (m *Module) table() *importTable {
	if m.imports == nil {
		m.imports = newImportTable()
	}
	return m.imports
}
