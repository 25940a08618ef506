package meta

// Clone deep-copies m. References shared inside m stay shared inside the
// copy, including import-table handles.
func Clone(m *Module) *Module {
	if m == nil {
		return nil
	}
	c := newCloner()
	out := &Module{
		Name:     m.Name,
		Platform: m.Platform,
		Scopes:   append([]string(nil), m.Scopes...),
		Types:    make([]*TypeDef, len(m.Types)),
	}
	for i, t := range m.Types {
		out.Types[i] = c.typeDef(t)
	}
	if m.imports != nil {
		tbl := newImportTable()
		for _, h := range m.imports.handles {
			tbl.handles = append(tbl.handles, c.typeRef(h))
		}
		for k, id := range m.imports.index {
			tbl.index[k] = id
		}
		for h, id := range m.imports.owned {
			tbl.owned[c.typeRef(h)] = id
		}
		for k, r := range m.imports.members {
			tbl.members[k] = c.ref(r)
		}
		out.imports = tbl
	}
	return out
}

// CloneTypeRef deep-copies a single reference graph.
func CloneTypeRef(t *TypeRef) *TypeRef {
	return newCloner().typeRef(t)
}

type cloner struct {
	types   map[*TypeRef]*TypeRef
	params  map[*GenericParam]*GenericParam
	fields  map[*FieldRef]*FieldRef
	methods map[*MethodRef]*MethodRef
}

func newCloner() *cloner {
	return &cloner{
		types:   make(map[*TypeRef]*TypeRef),
		params:  make(map[*GenericParam]*GenericParam),
		fields:  make(map[*FieldRef]*FieldRef),
		methods: make(map[*MethodRef]*MethodRef),
	}
}

func (c *cloner) typeRef(t *TypeRef) *TypeRef {
	if t == nil {
		return nil
	}
	if out, ok := c.types[t]; ok {
		return out
	}
	out := &TypeRef{Kind: t.Kind, Scope: t.Scope, Namespace: t.Namespace, Name: t.Name}
	c.types[t] = out
	out.Args = c.typeRefs(t.Args)
	out.Elem = c.typeRef(t.Elem)
	out.Param = c.param(t.Param)
	return out
}

func (c *cloner) typeRefs(ts []*TypeRef) []*TypeRef {
	if ts == nil {
		return nil
	}
	out := make([]*TypeRef, len(ts))
	for i, t := range ts {
		out[i] = c.typeRef(t)
	}
	return out
}

func (c *cloner) param(p *GenericParam) *GenericParam {
	if p == nil {
		return nil
	}
	if out, ok := c.params[p]; ok {
		return out
	}
	out := &GenericParam{Name: p.Name, Position: p.Position, Owner: p.Owner}
	c.params[p] = out
	out.Constraints = c.typeRefs(p.Constraints)
	return out
}

func (c *cloner) paramList(ps []*GenericParam) []*GenericParam {
	if ps == nil {
		return nil
	}
	out := make([]*GenericParam, len(ps))
	for i, p := range ps {
		out[i] = c.param(p)
	}
	return out
}

func (c *cloner) fieldRef(f *FieldRef) *FieldRef {
	if f == nil {
		return nil
	}
	if out, ok := c.fields[f]; ok {
		return out
	}
	out := &FieldRef{Name: f.Name}
	c.fields[f] = out
	out.DeclaringType = c.typeRef(f.DeclaringType)
	out.Type = c.typeRef(f.Type)
	return out
}

func (c *cloner) methodRef(m *MethodRef) *MethodRef {
	if m == nil {
		return nil
	}
	if out, ok := c.methods[m]; ok {
		return out
	}
	out := &MethodRef{Name: m.Name, HasThis: m.HasThis}
	c.methods[m] = out
	out.DeclaringType = c.typeRef(m.DeclaringType)
	out.Return = c.typeRef(m.Return)
	out.Params = c.typeRefs(m.Params)
	out.GenericArgs = c.typeRefs(m.GenericArgs)
	return out
}

func (c *cloner) ref(r Ref) Ref {
	switch r := r.(type) {
	case *TypeRef:
		return c.typeRef(r)
	case *FieldRef:
		return c.fieldRef(r)
	case *MethodRef:
		return c.methodRef(r)
	default:
		return r
	}
}

func (c *cloner) typeDef(t *TypeDef) *TypeDef {
	out := &TypeDef{
		Namespace:     t.Namespace,
		Name:          t.Name,
		BaseType:      c.typeRef(t.BaseType),
		Interfaces:    c.typeRefs(t.Interfaces),
		GenericParams: c.paramList(t.GenericParams),
		Synthetic:     t.Synthetic,
	}
	for _, f := range t.Fields {
		out.Fields = append(out.Fields, &FieldDef{Name: f.Name, Type: c.typeRef(f.Type), Static: f.Static})
	}
	for _, m := range t.Methods {
		out.Methods = append(out.Methods, c.methodDef(m))
	}
	for _, n := range t.Nested {
		out.Nested = append(out.Nested, c.typeDef(n))
	}
	return out
}

func (c *cloner) methodDef(m *MethodDef) *MethodDef {
	out := &MethodDef{
		Name:          m.Name,
		Static:        m.Static,
		Return:        c.typeRef(m.Return),
		GenericParams: c.paramList(m.GenericParams),
	}
	for _, p := range m.Params {
		out.Params = append(out.Params, &ParamDef{Name: p.Name, Type: c.typeRef(p.Type)})
	}
	if m.Body != nil {
		body := &Body{}
		for _, l := range m.Body.Locals {
			body.Locals = append(body.Locals, &Local{Index: l.Index, Type: c.typeRef(l.Type)})
		}
		for _, in := range m.Body.Instructions {
			op := in.Operand
			if r, ok := in.RefOperand(); ok {
				op = c.ref(r)
			}
			body.Instructions = append(body.Instructions, &Instruction{Op: in.Op, Operand: op})
		}
		out.Body = body
	}
	return out
}
