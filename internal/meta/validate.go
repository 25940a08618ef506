package meta

import (
	"errors"
	"fmt"
)

// ErrInvalidModule wraps every structural problem reported by Validate.
var ErrInvalidModule = errors.New("invalid module")

// Validate checks the structural invariants a loadable module must hold:
// well-formed references, contiguous generic parameter positions and local
// indices, and operands that agree with their opcodes.
func Validate(m *Module) error {
	if m == nil {
		return fmt.Errorf("%w: nil module", ErrInvalidModule)
	}
	v := &validator{seen: make(map[*TypeRef]struct{}), path: make(map[*TypeRef]struct{})}
	for _, t := range m.AllTypes() {
		v.typeDef(t)
	}
	if len(v.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidModule, errors.Join(v.errs...))
}

type validator struct {
	seen map[*TypeRef]struct{}
	// path holds the references currently being descended through Args
	// and Elem. Constraints are not followed and may cycle freely.
	path map[*TypeRef]struct{}
	errs []error
}

func (v *validator) fail(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) typeDef(t *TypeDef) {
	where := t.FullName()
	if t.Name == "" {
		v.fail("type with empty name in namespace %q", t.Namespace)
	}
	if t.BaseType != nil {
		v.typeRef(t.BaseType, where+" base")
	}
	for i, iface := range t.Interfaces {
		v.typeRef(iface, fmt.Sprintf("%s interface %d", where, i))
	}
	v.genericParams(t.GenericParams, where)
	for _, f := range t.Fields {
		v.typeRef(f.Type, where+"::"+f.Name)
	}
	for _, m := range t.Methods {
		v.method(m, where+"::"+m.Name)
	}
}

func (v *validator) genericParams(ps []*GenericParam, where string) {
	for i, p := range ps {
		if p == nil {
			v.fail("%s: nil generic parameter %d", where, i)
			continue
		}
		if p.Position != i {
			v.fail("%s: generic parameter %s at index %d has position %d", where, p.Name, i, p.Position)
		}
		for j, c := range p.Constraints {
			v.typeRef(c, fmt.Sprintf("%s generic %s constraint %d", where, p.Name, j))
		}
	}
}

func (v *validator) method(m *MethodDef, where string) {
	v.typeRef(m.Return, where+" return")
	for i, p := range m.Params {
		v.typeRef(p.Type, fmt.Sprintf("%s param %d", where, i))
	}
	v.genericParams(m.GenericParams, where)
	if m.Body == nil {
		return
	}
	for i, l := range m.Body.Locals {
		if l.Index != i {
			v.fail("%s: local at slot %d has index %d", where, i, l.Index)
		}
		v.typeRef(l.Type, fmt.Sprintf("%s local %d", where, i))
	}
	for i, in := range m.Body.Instructions {
		v.instruction(in, fmt.Sprintf("%s IL_%04x", where, i))
	}
}

func (v *validator) instruction(in *Instruction, where string) {
	if in == nil {
		v.fail("%s: nil instruction", where)
		return
	}
	if !in.Op.Valid() {
		v.fail("%s: unknown opcode %d", where, in.Op)
		return
	}
	switch in.Op.Operand() {
	case OperandNone:
		if in.Operand != nil {
			v.fail("%s: %s takes no operand", where, in.Op)
		}
	case OperandValue:
		switch in.Operand.(type) {
		case int64, float64, string:
		default:
			v.fail("%s: %s expects a value operand, got %T", where, in.Op, in.Operand)
		}
	case OperandType:
		t, ok := in.Operand.(*TypeRef)
		if !ok {
			v.fail("%s: %s expects a type operand, got %T", where, in.Op, in.Operand)
			return
		}
		v.typeRef(t, where)
	case OperandField:
		f, ok := in.Operand.(*FieldRef)
		if !ok {
			v.fail("%s: %s expects a field operand, got %T", where, in.Op, in.Operand)
			return
		}
		v.fieldRef(f, where)
	case OperandMethod:
		mr, ok := in.Operand.(*MethodRef)
		if !ok {
			v.fail("%s: %s expects a method operand, got %T", where, in.Op, in.Operand)
			return
		}
		v.methodRef(mr, where)
	case OperandToken:
		switch op := in.Operand.(type) {
		case *TypeRef:
			v.typeRef(op, where)
		case *FieldRef:
			v.fieldRef(op, where)
		case *MethodRef:
			v.methodRef(op, where)
		default:
			v.fail("%s: %s expects a reference operand, got %T", where, in.Op, in.Operand)
		}
	}
}

func (v *validator) fieldRef(f *FieldRef, where string) {
	if f == nil {
		v.fail("%s: nil field reference", where)
		return
	}
	if f.Name == "" {
		v.fail("%s: field reference without name", where)
	}
	v.typeRef(f.DeclaringType, where+" declaring type")
	v.typeRef(f.Type, where+" field type")
}

func (v *validator) methodRef(m *MethodRef, where string) {
	if m == nil {
		v.fail("%s: nil method reference", where)
		return
	}
	if m.Name == "" {
		v.fail("%s: method reference without name", where)
	}
	v.typeRef(m.DeclaringType, where+" declaring type")
	v.typeRef(m.Return, where+" return")
	for i, p := range m.Params {
		v.typeRef(p, fmt.Sprintf("%s param %d", where, i))
	}
	for i, a := range m.GenericArgs {
		v.typeRef(a, fmt.Sprintf("%s generic arg %d", where, i))
	}
}

func (v *validator) typeRef(t *TypeRef, where string) {
	if t == nil {
		v.fail("%s: missing type reference", where)
		return
	}
	if _, ok := v.path[t]; ok {
		v.fail("%s: %s reference contains itself", where, t.Kind)
		return
	}
	if _, ok := v.seen[t]; ok {
		return
	}
	v.seen[t] = struct{}{}
	v.path[t] = struct{}{}
	defer delete(v.path, t)
	switch t.Kind {
	case RefNamed:
		if t.Name == "" {
			v.fail("%s: unnamed type reference", where)
		}
	case RefGenericInst:
		if t.Name == "" {
			v.fail("%s: unnamed generic instantiation", where)
		}
		if len(t.Args) == 0 {
			v.fail("%s: generic instantiation %s without arguments", where, t.DefinitionName())
		}
		for _, a := range t.Args {
			v.typeRef(a, where+" <"+t.DefinitionName()+">")
		}
	case RefGenericParam:
		if t.Param == nil {
			v.fail("%s: generic parameter reference %q without owner", where, t.Name)
		}
	case RefArray, RefByRef:
		v.typeRef(t.Elem, where)
	default:
		v.fail("%s: invalid reference kind %s", where, t.Kind)
	}
}
