package host

import (
	"strings"

	"modpatch/internal/meta"
)

// ResolveMethod finds the definition mr binds to, walking base types. The
// declaring type's generic arguments are substituted into the candidate's
// signature before comparison.
func (c *Catalog) ResolveMethod(mr *meta.MethodRef) (*meta.MethodDef, bool) {
	if mr == nil {
		return nil, false
	}
	owner := mr.DeclaringType
	for depth := 0; owner != nil && depth < maxBaseDepth; depth++ {
		e, ok := c.types[owner.DefinitionName()]
		if !ok {
			return nil, false
		}
		args := owner.Args
		for _, m := range e.def.Methods {
			if m.Name != mr.Name || m.Static == mr.HasThis || len(m.Params) != len(mr.Params) {
				continue
			}
			if len(m.GenericParams) != len(mr.GenericArgs) {
				continue
			}
			if !meta.Equal(substitute(m.Return, args, mr.GenericArgs), mr.Return) {
				continue
			}
			same := true
			for i, p := range m.Params {
				if !meta.Equal(substitute(p.Type, args, mr.GenericArgs), mr.Params[i]) {
					same = false
					break
				}
			}
			if same {
				return m, true
			}
		}
		if mr.IsCtor() {
			return nil, false
		}
		owner = substitute(e.def.BaseType, args, nil)
	}
	return nil, false
}

// ResolveField finds the field fr binds to, walking base types.
func (c *Catalog) ResolveField(fr *meta.FieldRef) (*meta.FieldDef, bool) {
	if fr == nil {
		return nil, false
	}
	owner := fr.DeclaringType
	for depth := 0; owner != nil && depth < maxBaseDepth; depth++ {
		e, ok := c.types[owner.DefinitionName()]
		if !ok {
			return nil, false
		}
		if f := e.def.Field(fr.Name); f != nil {
			if meta.Equal(substitute(f.Type, owner.Args, nil), fr.Type) {
				return f, true
			}
			return nil, false
		}
		owner = substitute(e.def.BaseType, owner.Args, nil)
	}
	return nil, false
}

// substitute replaces generic placeholders in t: type-owned parameters
// from typeArgs, method-owned ones from methodArgs. The input is never
// modified; unchanged subtrees are returned as-is.
func substitute(t *meta.TypeRef, typeArgs, methodArgs []*meta.TypeRef) *meta.TypeRef {
	if t == nil || (len(typeArgs) == 0 && len(methodArgs) == 0) {
		return t
	}
	switch t.Kind {
	case meta.RefGenericParam:
		if t.Param == nil {
			return t
		}
		args := typeArgs
		if isMethodOwned(t.Param) {
			args = methodArgs
		}
		if t.Param.Position < 0 || t.Param.Position >= len(args) {
			return t
		}
		return args[t.Param.Position]
	case meta.RefGenericInst:
		var out []*meta.TypeRef
		for i, a := range t.Args {
			s := substitute(a, typeArgs, methodArgs)
			if s != a && out == nil {
				out = make([]*meta.TypeRef, len(t.Args))
				copy(out, t.Args[:i])
			}
			if out != nil {
				out[i] = s
			}
		}
		if out == nil {
			return t
		}
		clone := *t
		clone.Args = out
		return &clone
	case meta.RefArray, meta.RefByRef:
		elem := substitute(t.Elem, typeArgs, methodArgs)
		if elem == t.Elem {
			return t
		}
		clone := *t
		clone.Elem = elem
		return &clone
	default:
		return t
	}
}

// isMethodOwned reports whether p belongs to a method. Method owners are
// rendered "Type::Method".
func isMethodOwned(p *meta.GenericParam) bool {
	return strings.Contains(p.Owner, "::")
}
