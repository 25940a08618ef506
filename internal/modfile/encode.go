package modfile

import (
	"fmt"

	"fortio.org/safecast"

	"modpatch/internal/meta"
)

type encoder struct {
	p       *payload
	refs    map[*meta.TypeRef]uint32
	params  map[*meta.GenericParam]uint32
	fields  map[*meta.FieldRef]uint32
	methods map[*meta.MethodRef]uint32
}

func encode(m *meta.Module) (*payload, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil module", ErrCorrupt)
	}
	e := &encoder{
		p: &payload{
			Schema:   SchemaVersion,
			Name:     m.Name,
			Platform: m.Platform,
			Scopes:   append([]string(nil), m.Scopes...),
		},
		refs:    make(map[*meta.TypeRef]uint32),
		params:  make(map[*meta.GenericParam]uint32),
		fields:  make(map[*meta.FieldRef]uint32),
		methods: make(map[*meta.MethodRef]uint32),
	}
	for _, t := range m.Types {
		dto, err := e.typeDef(t)
		if err != nil {
			return nil, err
		}
		e.p.Types = append(e.p.Types, dto)
	}
	return e.p, nil
}

// slot turns a table length into the 1-based index of its last entry.
func slot(n int) (uint32, error) {
	idx, err := safecast.Conv[uint32](n)
	if err != nil {
		return 0, fmt.Errorf("%w: table overflow", ErrCorrupt)
	}
	return idx, nil
}

func (e *encoder) typeRef(t *meta.TypeRef) (uint32, error) {
	if t == nil {
		return 0, nil
	}
	if idx, ok := e.refs[t]; ok {
		return idx, nil
	}
	e.p.Refs = append(e.p.Refs, typeRefDTO{})
	idx, err := slot(len(e.p.Refs))
	if err != nil {
		return 0, err
	}
	e.refs[t] = idx

	dto := typeRefDTO{Kind: uint8(t.Kind), Scope: t.Scope, Namespace: t.Namespace, Name: t.Name}
	if dto.Args, err = e.typeRefs(t.Args); err != nil {
		return 0, err
	}
	if dto.Elem, err = e.typeRef(t.Elem); err != nil {
		return 0, err
	}
	if dto.Param, err = e.param(t.Param); err != nil {
		return 0, err
	}
	e.p.Refs[idx-1] = dto
	return idx, nil
}

func (e *encoder) typeRefs(ts []*meta.TypeRef) ([]uint32, error) {
	if len(ts) == 0 {
		return nil, nil
	}
	out := make([]uint32, len(ts))
	for i, t := range ts {
		idx, err := e.typeRef(t)
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}

func (e *encoder) param(p *meta.GenericParam) (uint32, error) {
	if p == nil {
		return 0, nil
	}
	if idx, ok := e.params[p]; ok {
		return idx, nil
	}
	e.p.Params = append(e.p.Params, paramDTO{})
	idx, err := slot(len(e.p.Params))
	if err != nil {
		return 0, err
	}
	e.params[p] = idx

	dto := paramDTO{Name: p.Name, Position: p.Position, Owner: p.Owner}
	if dto.Constraints, err = e.typeRefs(p.Constraints); err != nil {
		return 0, err
	}
	e.p.Params[idx-1] = dto
	return idx, nil
}

func (e *encoder) paramList(ps []*meta.GenericParam) ([]uint32, error) {
	if len(ps) == 0 {
		return nil, nil
	}
	out := make([]uint32, len(ps))
	for i, p := range ps {
		idx, err := e.param(p)
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}

func (e *encoder) fieldRef(f *meta.FieldRef) (uint32, error) {
	if idx, ok := e.fields[f]; ok {
		return idx, nil
	}
	decl, err := e.typeRef(f.DeclaringType)
	if err != nil {
		return 0, err
	}
	typ, err := e.typeRef(f.Type)
	if err != nil {
		return 0, err
	}
	e.p.Fields = append(e.p.Fields, fieldRefDTO{Declaring: decl, Name: f.Name, Type: typ})
	idx, err := slot(len(e.p.Fields))
	if err != nil {
		return 0, err
	}
	e.fields[f] = idx
	return idx, nil
}

func (e *encoder) methodRef(m *meta.MethodRef) (uint32, error) {
	if idx, ok := e.methods[m]; ok {
		return idx, nil
	}
	dto := methodRefDTO{Name: m.Name, HasThis: m.HasThis}
	var err error
	if dto.Declaring, err = e.typeRef(m.DeclaringType); err != nil {
		return 0, err
	}
	if dto.Return, err = e.typeRef(m.Return); err != nil {
		return 0, err
	}
	if dto.Params, err = e.typeRefs(m.Params); err != nil {
		return 0, err
	}
	if dto.GenericArgs, err = e.typeRefs(m.GenericArgs); err != nil {
		return 0, err
	}
	e.p.Methods = append(e.p.Methods, dto)
	idx, err := slot(len(e.p.Methods))
	if err != nil {
		return 0, err
	}
	e.methods[m] = idx
	return idx, nil
}

func (e *encoder) typeDef(t *meta.TypeDef) (typeDefDTO, error) {
	dto := typeDefDTO{Namespace: t.Namespace, Name: t.Name, Synthetic: t.Synthetic}
	var err error
	if dto.Base, err = e.typeRef(t.BaseType); err != nil {
		return dto, err
	}
	if dto.Interfaces, err = e.typeRefs(t.Interfaces); err != nil {
		return dto, err
	}
	if dto.GenericParams, err = e.paramList(t.GenericParams); err != nil {
		return dto, err
	}
	for _, f := range t.Fields {
		typ, err := e.typeRef(f.Type)
		if err != nil {
			return dto, err
		}
		dto.Fields = append(dto.Fields, fieldDefDTO{Name: f.Name, Type: typ, Static: f.Static})
	}
	for _, m := range t.Methods {
		md, err := e.methodDef(m)
		if err != nil {
			return dto, fmt.Errorf("%s::%s: %w", t.FullName(), m.Name, err)
		}
		dto.Methods = append(dto.Methods, md)
	}
	for _, n := range t.Nested {
		nd, err := e.typeDef(n)
		if err != nil {
			return dto, err
		}
		dto.Nested = append(dto.Nested, nd)
	}
	return dto, nil
}

func (e *encoder) methodDef(m *meta.MethodDef) (methodDefDTO, error) {
	dto := methodDefDTO{Name: m.Name, Static: m.Static}
	var err error
	if dto.Return, err = e.typeRef(m.Return); err != nil {
		return dto, err
	}
	if dto.GenericParams, err = e.paramList(m.GenericParams); err != nil {
		return dto, err
	}
	for _, p := range m.Params {
		typ, err := e.typeRef(p.Type)
		if err != nil {
			return dto, err
		}
		dto.Params = append(dto.Params, paramDefDTO{Name: p.Name, Type: typ})
	}
	if m.Body == nil {
		return dto, nil
	}
	dto.HasBody = true
	for _, l := range m.Body.Locals {
		typ, err := e.typeRef(l.Type)
		if err != nil {
			return dto, err
		}
		dto.Locals = append(dto.Locals, localDTO{Index: l.Index, Type: typ})
	}
	for i, in := range m.Body.Instructions {
		ins, err := e.instruction(in)
		if err != nil {
			return dto, fmt.Errorf("IL_%04x: %w", i, err)
		}
		dto.Code = append(dto.Code, ins)
	}
	return dto, nil
}

func (e *encoder) instruction(in *meta.Instruction) (instructionDTO, error) {
	dto := instructionDTO{Op: uint8(in.Op)}
	var err error
	switch op := in.Operand.(type) {
	case nil:
	case *meta.TypeRef:
		dto.Operand = operandType
		dto.Ref, err = e.typeRef(op)
	case *meta.FieldRef:
		if op != nil {
			dto.Operand = operandField
			dto.Ref, err = e.fieldRef(op)
		}
	case *meta.MethodRef:
		if op != nil {
			dto.Operand = operandMethod
			dto.Ref, err = e.methodRef(op)
		}
	case int64:
		dto.Operand, dto.Int = operandInt, op
	case float64:
		dto.Operand, dto.Float = operandFloat, op
	case string:
		dto.Operand, dto.Str = operandString, op
	default:
		err = fmt.Errorf("%w: operand of type %T", ErrCorrupt, op)
	}
	return dto, err
}
