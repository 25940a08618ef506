package modfile

import (
	"fmt"

	"modpatch/internal/meta"
)

type decoder struct {
	p       *payload
	refs    []*meta.TypeRef
	params  []*meta.GenericParam
	fields  []*meta.FieldRef
	methods []*meta.MethodRef
}

// decode allocates every table entry first and links them afterwards, so
// forward and cyclic indices resolve.
func decode(p *payload) (*meta.Module, error) {
	d := &decoder{
		p:       p,
		refs:    make([]*meta.TypeRef, len(p.Refs)),
		params:  make([]*meta.GenericParam, len(p.Params)),
		fields:  make([]*meta.FieldRef, len(p.Fields)),
		methods: make([]*meta.MethodRef, len(p.Methods)),
	}
	for i := range d.refs {
		d.refs[i] = &meta.TypeRef{}
	}
	for i := range d.params {
		d.params[i] = &meta.GenericParam{}
	}
	if err := d.link(); err != nil {
		return nil, err
	}

	m := meta.NewModule(p.Name)
	m.Platform = p.Platform
	m.Scopes = append([]string(nil), p.Scopes...)
	for _, t := range p.Types {
		td, err := d.typeDef(t)
		if err != nil {
			return nil, err
		}
		m.Types = append(m.Types, td)
	}
	return m, nil
}

func (d *decoder) link() error {
	for i, dto := range d.p.Refs {
		kind := meta.RefKind(dto.Kind)
		if kind == meta.RefInvalid || kind > meta.RefByRef {
			return fmt.Errorf("%w: reference %d has kind %d", ErrCorrupt, i+1, dto.Kind)
		}
		r := d.refs[i]
		r.Kind, r.Scope, r.Namespace, r.Name = kind, dto.Scope, dto.Namespace, dto.Name
		var err error
		if r.Args, err = d.typeRefs(dto.Args); err != nil {
			return err
		}
		if r.Elem, err = d.typeRef(dto.Elem); err != nil {
			return err
		}
		if r.Param, err = d.param(dto.Param); err != nil {
			return err
		}
	}
	for i, dto := range d.p.Params {
		p := d.params[i]
		p.Name, p.Position, p.Owner = dto.Name, dto.Position, dto.Owner
		var err error
		if p.Constraints, err = d.typeRefs(dto.Constraints); err != nil {
			return err
		}
	}
	for i, dto := range d.p.Fields {
		decl, err := d.typeRef(dto.Declaring)
		if err != nil {
			return err
		}
		typ, err := d.typeRef(dto.Type)
		if err != nil {
			return err
		}
		d.fields[i] = &meta.FieldRef{DeclaringType: decl, Name: dto.Name, Type: typ}
	}
	for i, dto := range d.p.Methods {
		mr := &meta.MethodRef{Name: dto.Name, HasThis: dto.HasThis}
		var err error
		if mr.DeclaringType, err = d.typeRef(dto.Declaring); err != nil {
			return err
		}
		if mr.Return, err = d.typeRef(dto.Return); err != nil {
			return err
		}
		if mr.Params, err = d.typeRefs(dto.Params); err != nil {
			return err
		}
		if mr.GenericArgs, err = d.typeRefs(dto.GenericArgs); err != nil {
			return err
		}
		d.methods[i] = mr
	}
	return nil
}

func lookup[T any](table []T, idx uint32, what string) (T, error) {
	var zero T
	if idx == 0 {
		return zero, nil
	}
	if int(idx) > len(table) {
		return zero, fmt.Errorf("%w: %s index %d out of range", ErrCorrupt, what, idx)
	}
	return table[idx-1], nil
}

func (d *decoder) typeRef(idx uint32) (*meta.TypeRef, error) {
	return lookup(d.refs, idx, "type")
}

func (d *decoder) param(idx uint32) (*meta.GenericParam, error) {
	return lookup(d.params, idx, "generic parameter")
}

func (d *decoder) typeRefs(idx []uint32) ([]*meta.TypeRef, error) {
	if len(idx) == 0 {
		return nil, nil
	}
	out := make([]*meta.TypeRef, len(idx))
	for i, id := range idx {
		t, err := d.typeRef(id)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func (d *decoder) paramList(idx []uint32) ([]*meta.GenericParam, error) {
	if len(idx) == 0 {
		return nil, nil
	}
	out := make([]*meta.GenericParam, len(idx))
	for i, id := range idx {
		p, err := d.param(id)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func (d *decoder) typeDef(dto typeDefDTO) (*meta.TypeDef, error) {
	t := &meta.TypeDef{Namespace: dto.Namespace, Name: dto.Name, Synthetic: dto.Synthetic}
	var err error
	if t.BaseType, err = d.typeRef(dto.Base); err != nil {
		return nil, err
	}
	if t.Interfaces, err = d.typeRefs(dto.Interfaces); err != nil {
		return nil, err
	}
	if t.GenericParams, err = d.paramList(dto.GenericParams); err != nil {
		return nil, err
	}
	for _, f := range dto.Fields {
		typ, err := d.typeRef(f.Type)
		if err != nil {
			return nil, err
		}
		t.Fields = append(t.Fields, &meta.FieldDef{Name: f.Name, Type: typ, Static: f.Static})
	}
	for _, md := range dto.Methods {
		m, err := d.methodDef(md)
		if err != nil {
			return nil, fmt.Errorf("%s::%s: %w", t.FullName(), md.Name, err)
		}
		t.Methods = append(t.Methods, m)
	}
	for _, nd := range dto.Nested {
		n, err := d.typeDef(nd)
		if err != nil {
			return nil, err
		}
		t.Nested = append(t.Nested, n)
	}
	return t, nil
}

func (d *decoder) methodDef(dto methodDefDTO) (*meta.MethodDef, error) {
	m := &meta.MethodDef{Name: dto.Name, Static: dto.Static}
	var err error
	if m.Return, err = d.typeRef(dto.Return); err != nil {
		return nil, err
	}
	if m.GenericParams, err = d.paramList(dto.GenericParams); err != nil {
		return nil, err
	}
	for _, p := range dto.Params {
		typ, err := d.typeRef(p.Type)
		if err != nil {
			return nil, err
		}
		m.Params = append(m.Params, &meta.ParamDef{Name: p.Name, Type: typ})
	}
	if !dto.HasBody {
		return m, nil
	}
	m.Body = &meta.Body{}
	for _, l := range dto.Locals {
		typ, err := d.typeRef(l.Type)
		if err != nil {
			return nil, err
		}
		m.Body.Locals = append(m.Body.Locals, &meta.Local{Index: l.Index, Type: typ})
	}
	for i, in := range dto.Code {
		ins, err := d.instruction(in)
		if err != nil {
			return nil, fmt.Errorf("IL_%04x: %w", i, err)
		}
		m.Body.Instructions = append(m.Body.Instructions, ins)
	}
	return m, nil
}

func (d *decoder) instruction(dto instructionDTO) (*meta.Instruction, error) {
	op := meta.OpCode(dto.Op)
	if !op.Valid() {
		return nil, fmt.Errorf("%w: opcode %d", ErrCorrupt, dto.Op)
	}
	in := &meta.Instruction{Op: op}
	var err error
	switch dto.Operand {
	case operandNil:
	case operandType:
		in.Operand, err = d.typeRef(dto.Ref)
	case operandField:
		var f *meta.FieldRef
		f, err = lookup(d.fields, dto.Ref, "field")
		in.Operand = f
	case operandMethod:
		var mr *meta.MethodRef
		mr, err = lookup(d.methods, dto.Ref, "method")
		in.Operand = mr
	case operandInt:
		in.Operand = dto.Int
	case operandFloat:
		in.Operand = dto.Float
	case operandString:
		in.Operand = dto.Str
	default:
		err = fmt.Errorf("%w: operand kind %d", ErrCorrupt, dto.Operand)
	}
	return in, err
}
