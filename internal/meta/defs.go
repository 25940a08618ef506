package meta

// TypeDef is a type declared by a module.
type TypeDef struct {
	Namespace     string
	Name          string
	BaseType      *TypeRef
	Interfaces    []*TypeRef
	GenericParams []*GenericParam
	Fields        []*FieldDef
	Methods       []*MethodDef
	Nested        []*TypeDef
	// Synthetic marks definitions that were generated rather than loaded,
	// such as facades.
	Synthetic bool
}

// FullName returns the dotted type name.
func (t *TypeDef) FullName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// Ref builds a named reference to t within scope.
func (t *TypeDef) Ref(scope string) *TypeRef {
	return &TypeRef{Kind: RefNamed, Scope: scope, Namespace: t.Namespace, Name: t.Name}
}

// Method returns the first method named name, or nil.
func (t *TypeDef) Method(name string) *MethodDef {
	for _, m := range t.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Field returns the field named name, or nil.
func (t *TypeDef) Field(name string) *FieldDef {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FieldDef is a field declared by a type.
type FieldDef struct {
	Name   string
	Type   *TypeRef
	Static bool
}

// ParamDef is a declared method parameter.
type ParamDef struct {
	Name string
	Type *TypeRef
}

// MethodDef is a method declared by a type.
type MethodDef struct {
	Name          string
	Static        bool
	Return        *TypeRef
	Params        []*ParamDef
	GenericParams []*GenericParam
	Body          *Body
}

// RefOn builds a reference to m as declared on owner.
func (m *MethodDef) RefOn(owner *TypeRef) *MethodRef {
	params := make([]*TypeRef, len(m.Params))
	for i, p := range m.Params {
		params[i] = p.Type
	}
	return &MethodRef{
		DeclaringType: owner,
		Name:          m.Name,
		HasThis:       !m.Static,
		Return:        m.Return,
		Params:        params,
	}
}

// Body is the executable part of a method.
type Body struct {
	Instructions []*Instruction
	Locals       []*Local
}

// Local is a local variable slot.
type Local struct {
	Index int
	Type  *TypeRef
}

// Instruction is one opcode plus its operand. Operand is one of *TypeRef,
// *FieldRef, *MethodRef, int64, float64, string or nil depending on
// Op.Operand().
type Instruction struct {
	Op      OpCode
	Operand any
}

// RefOperand returns the operand as a Ref when it is one.
func (in *Instruction) RefOperand() (Ref, bool) {
	switch op := in.Operand.(type) {
	case *TypeRef:
		return op, op != nil
	case *FieldRef:
		return op, op != nil
	case *MethodRef:
		return op, op != nil
	default:
		return nil, false
	}
}
